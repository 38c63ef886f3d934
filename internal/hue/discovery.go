package hue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog/log"
)

// DefaultDiscoveryURL is the N-UPnP endpoint listing bridges on the caller's network.
const DefaultDiscoveryURL = "https://discovery.meethue.com/"

const (
	mdnsService        = "_hue._tcp"
	defaultMDNSTimeout = 3 * time.Second
)

// DiscoveryOption configures a Discoverer.
type DiscoveryOption func(*Discoverer)

// WithDiscoveryURL overrides the N-UPnP endpoint.
func WithDiscoveryURL(url string) DiscoveryOption {
	return func(d *Discoverer) {
		if url != "" {
			d.url = url
		}
	}
}

// WithDiscoveryHTTPClient sets the client used for the N-UPnP lookup.
func WithDiscoveryHTTPClient(client *http.Client) DiscoveryOption {
	return func(d *Discoverer) {
		if client != nil {
			d.httpClient = client
		}
	}
}

// WithMDNSTimeout sets how long DiscoverMDNS listens for answers.
func WithMDNSTimeout(timeout time.Duration) DiscoveryOption {
	return func(d *Discoverer) {
		if timeout > 0 {
			d.mdnsTimeout = timeout
		}
	}
}

// WithBridgeOptions sets the options applied to every discovered Bridge.
func WithBridgeOptions(opts ...Option) DiscoveryOption {
	return func(d *Discoverer) {
		d.bridgeOpts = append(d.bridgeOpts, opts...)
	}
}

// Discoverer finds bridges on the local network.
type Discoverer struct {
	url         string
	httpClient  *http.Client
	mdnsTimeout time.Duration
	bridgeOpts  []Option
}

// NewDiscoverer creates a Discoverer using the public N-UPnP endpoint by default.
func NewDiscoverer(opts ...DiscoveryOption) *Discoverer {
	d := &Discoverer{
		url:         DefaultDiscoveryURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		mdnsTimeout: defaultMDNSTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DiscoverAll asks the N-UPnP endpoint with default settings.
func DiscoverAll(ctx context.Context) ([]*Bridge, error) {
	return NewDiscoverer().DiscoverAll(ctx)
}

// discoveredBridge is one element of the N-UPnP response.
type discoveredBridge struct {
	InternalIPAddress string `json:"internalipaddress"`
	ID                string `json:"id"`
	MACAddress        string `json:"macaddress"`
	Name              string `json:"name"`
	Port              int    `json:"port,omitempty"`
}

// DiscoverAll asks the N-UPnP endpoint for the bridges on this network.
// No bridges is not an error.
func (d *Discoverer) DiscoverAll(ctx context.Context) ([]*Bridge, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return nil, &DiscoveryError{Source: d.url, Err: err}
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, &DiscoveryError{Source: d.url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &DiscoveryError{Source: d.url, Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &DiscoveryError{Source: d.url, Err: err}
	}

	var found []discoveredBridge
	if err := json.Unmarshal(data, &found); err != nil {
		return nil, &DiscoveryError{Source: d.url, Err: fmt.Errorf("malformed response: %w", err)}
	}

	bridges := make([]*Bridge, 0, len(found))
	for _, f := range found {
		if f.InternalIPAddress == "" {
			return nil, &DiscoveryError{Source: d.url, Err: fmt.Errorf("bridge %q has no address", f.ID)}
		}
		address := f.InternalIPAddress
		if f.Port != 0 && f.Port != 80 && f.Port != 443 {
			address = net.JoinHostPort(address, strconv.Itoa(f.Port))
		}
		bridges = append(bridges, d.newBridge(address, f.ID, f.MACAddress, f.Name))
	}

	log.Info().Str("source", d.url).Int("bridges", len(bridges)).Msg("Discovery complete")
	return bridges, nil
}

// DiscoverMDNS browses _hue._tcp on the local link.
// It waits for the configured timeout or until ctx is done.
func (d *Discoverer) DiscoverMDNS(ctx context.Context) ([]*Bridge, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	queryErr := make(chan error, 1)

	go func() {
		params := &mdns.QueryParam{
			Service:             mdnsService,
			Domain:              "local",
			Timeout:             d.mdnsTimeout,
			Entries:             entries,
			DisableIPv6:         true,
			WantUnicastResponse: true,
		}
		queryErr <- mdns.Query(params)
		close(entries)
	}()

	seen := make(map[string]bool)
	var bridges []*Bridge

	for {
		select {
		case <-ctx.Done():
			go func() {
				for range entries {
				}
			}()
			return bridges, nil
		case entry, ok := <-entries:
			if !ok {
				if err := <-queryErr; err != nil {
					return nil, &DiscoveryError{Source: "mdns", Err: err}
				}
				log.Info().Str("source", "mdns").Int("bridges", len(bridges)).Msg("Discovery complete")
				return bridges, nil
			}
			bridge := d.bridgeFromEntry(entry)
			if bridge == nil || seen[bridge.Address()] {
				continue
			}
			seen[bridge.Address()] = true
			bridges = append(bridges, bridge)
		}
	}
}

func (d *Discoverer) bridgeFromEntry(entry *mdns.ServiceEntry) *Bridge {
	if entry == nil || entry.AddrV4 == nil {
		return nil
	}

	var id string
	for _, field := range entry.InfoFields {
		if v, ok := strings.CutPrefix(field, "bridgeid="); ok {
			id = v
		}
	}

	name := strings.TrimSuffix(entry.Name, "."+mdnsService+".local.")
	log.Debug().Str("name", name).Str("addr", entry.AddrV4.String()).Msg("mDNS bridge entry")
	return d.newBridge(entry.AddrV4.String(), id, "", name)
}

func (d *Discoverer) newBridge(address, id, mac, name string) *Bridge {
	opts := append([]Option{}, d.bridgeOpts...)
	opts = append(opts, WithIdentity(id, mac, name))
	return NewBridge(address, opts...)
}
