// Package hue is a client for the v1 API of a local Hue bridge.
//
// Lights are loaded lazily through Bridge.Lights and cached. Each Light keeps
// the state last confirmed by the bridge next to a locally proposed state;
// setters only touch the proposed state and Commit sends the difference.
package hue

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const defaultTimeout = 30 * time.Second

// CommitRecord describes one committed diff and how the bridge answered it.
type CommitRecord struct {
	Bridge    string
	LightID   int
	LightName string
	Changes   State
	Success   bool
	Errors    []*BridgeError
}

// CommitRecorder receives a record after every commit round trip.
type CommitRecorder interface {
	RecordCommit(ctx context.Context, rec CommitRecord) error
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithHTTPClient sets the HTTP client used for every call.
func WithHTTPClient(client *http.Client) Option {
	return func(b *Bridge) {
		if client != nil {
			b.httpClient = client
		}
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(b *Bridge) {
		if timeout > 0 {
			b.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// WithRateLimit limits requests to rps per second (0 = unlimited).
func WithRateLimit(rps float64) Option {
	return func(b *Bridge) {
		if rps <= 0 {
			b.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithIdentity sets the metadata discovery reports for a bridge.
func WithIdentity(id, macAddress, name string) Option {
	return func(b *Bridge) {
		b.id = id
		b.macAddress = macAddress
		b.name = name
	}
}

// WithCommitRecorder registers rec to be told about every commit.
func WithCommitRecorder(rec CommitRecorder) Option {
	return func(b *Bridge) {
		b.recorder = rec
	}
}

// Bridge is one Hue bridge on the network.
type Bridge struct {
	address    string
	id         string
	macAddress string
	name       string

	httpClient *http.Client
	limiter    *rate.Limiter
	recorder   CommitRecorder

	mu       sync.RWMutex
	username string

	lights *Lights
}

// NewBridge creates an unpaired bridge handle for address (host or host:port).
func NewBridge(address string, opts ...Option) *Bridge {
	b := &Bridge{
		address:    address,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(b)
	}
	b.lights = newLights(b)
	return b
}

// Address returns the network address of the bridge.
func (b *Bridge) Address() string { return b.address }

// ID returns the bridge id reported by discovery, if any.
func (b *Bridge) ID() string { return b.id }

// MACAddress returns the hardware address reported by discovery, if any.
func (b *Bridge) MACAddress() string { return b.macAddress }

// Name returns the display name reported by discovery, if any.
func (b *Bridge) Name() string { return b.name }

// Username returns the paired application credential ("" when unpaired).
func (b *Bridge) Username() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.username
}

// IsPaired reports whether a credential is set.
func (b *Bridge) IsPaired() bool {
	return b.Username() != ""
}

// Lights returns the light collection of this bridge.
// Nothing is fetched until the collection is first read.
func (b *Bridge) Lights() *Lights {
	return b.lights
}

// Transport returns a transport rooted at the bridge API. When authenticated
// is true and the bridge is paired, calls are scoped under the credential.
func (b *Bridge) Transport(authenticated bool) *Transport {
	username := ""
	if authenticated {
		username = b.Username()
	}
	return b.transportFor(username)
}

func (b *Bridge) transportFor(username string) *Transport {
	base := fmt.Sprintf("http://%s/api/", b.address)
	if username != "" {
		base += username + "/"
	}
	return newTransport(base, b.httpClient, b.limiter)
}

// Pair runs the link-button handshake for username.
//
// If username is already accepted by the bridge nothing else is sent.
// Otherwise a new application is registered, which only succeeds within a
// short window after the physical link button was pressed; if it was not,
// the returned error matches ErrLinkButtonNotPressed. The credential is
// stored only on success.
func (b *Bridge) Pair(ctx context.Context, deviceType, username string) error {
	if username != "" {
		var config map[string]any
		err := b.transportFor(username).Get(ctx, "", &config)
		if err == nil {
			b.setUsername(username)
			log.Info().Str("bridge", b.address).Msg("Bridge already paired")
			return nil
		}
		var bridgeErr *BridgeError
		if !errors.As(err, &bridgeErr) {
			return err
		}
	}

	body := map[string]string{"devicetype": deviceType}
	if username != "" {
		body["username"] = username
	}

	unauthenticated := b.transportFor("")
	responses, err := unauthenticated.Post(ctx, "", body)
	if err != nil {
		return err
	}
	if len(responses) == 0 {
		return &TransportError{Method: http.MethodPost, URL: unauthenticated.BaseURL(), Err: fmt.Errorf("empty pairing response")}
	}

	first := responses[0]
	if first.Error != nil {
		log.Warn().
			Str("bridge", b.address).
			Int("type", int(first.Error.Type)).
			Str("description", first.Error.Description).
			Msg("Pairing rejected")
		return first.Error
	}

	if username == "" {
		issued, _ := first.Success["username"].(string)
		if issued == "" {
			return &TransportError{Method: http.MethodPost, URL: unauthenticated.BaseURL(), Err: fmt.Errorf("pairing response carries no username")}
		}
		username = issued
	}

	b.setUsername(username)
	log.Info().Str("bridge", b.address).Str("device_type", deviceType).Msg("Paired with bridge")
	return nil
}

func (b *Bridge) setUsername(username string) {
	b.mu.Lock()
	b.username = username
	b.mu.Unlock()
}

func (b *Bridge) recordCommit(ctx context.Context, rec CommitRecord) {
	if b.recorder == nil {
		return
	}
	rec.Bridge = b.address
	if err := b.recorder.RecordCommit(ctx, rec); err != nil {
		log.Warn().Err(err).Int("light", rec.LightID).Msg("Failed to record commit")
	}
}
