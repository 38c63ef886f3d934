package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/huelink/internal/config"
	"github.com/dokzlo13/huelink/internal/hue"
)

// ErrNoBridge is returned when no bridge is configured and discovery finds none.
var ErrNoBridge = errors.New("app: no bridge found")

// ErrNotPaired is returned when hue.username is not configured.
var ErrNotPaired = errors.New("app: hue.username is not set, run pair and add it to the config")

// HueService owns the discoverer and the bridge handle used by commands.
type HueService struct {
	cfg        *config.Config
	bridgeOpts []hue.Option

	Discoverer *hue.Discoverer

	mu     sync.Mutex
	bridge *hue.Bridge
}

// NewHueService creates a HueService; the bridge is resolved on first use.
func NewHueService(cfg *config.Config, recorder hue.CommitRecorder) *HueService {
	opts := []hue.Option{
		hue.WithTimeout(cfg.Hue.Timeout.Duration()),
		hue.WithRateLimit(cfg.Hue.RateLimitRPS),
	}
	if recorder != nil {
		opts = append(opts, hue.WithCommitRecorder(recorder))
	}

	discoverer := hue.NewDiscoverer(
		hue.WithDiscoveryURL(cfg.Discovery.URL),
		hue.WithDiscoveryHTTPClient(&http.Client{Timeout: cfg.Discovery.Timeout.Duration()}),
		hue.WithMDNSTimeout(cfg.Discovery.Timeout.Duration()),
		hue.WithBridgeOptions(opts...),
	)

	return &HueService{
		cfg:        cfg,
		bridgeOpts: opts,
		Discoverer: discoverer,
	}
}

// Discover lists the bridges on the network using the configured method.
func (s *HueService) Discover(ctx context.Context) ([]*hue.Bridge, error) {
	if s.cfg.Discovery.MDNS {
		return s.Discoverer.DiscoverMDNS(ctx)
	}
	return s.Discoverer.DiscoverAll(ctx)
}

// Bridge returns the configured bridge, or the first discovered one.
func (s *HueService) Bridge(ctx context.Context) (*hue.Bridge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bridge != nil {
		return s.bridge, nil
	}

	if s.cfg.Hue.Bridge != "" {
		s.bridge = hue.NewBridge(s.cfg.Hue.Bridge, s.bridgeOpts...)
		return s.bridge, nil
	}

	bridges, err := s.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover bridge: %w", err)
	}
	if len(bridges) == 0 {
		return nil, ErrNoBridge
	}
	if len(bridges) > 1 {
		log.Warn().Int("count", len(bridges)).Str("using", bridges[0].Address()).
			Msg("Several bridges found, set hue.bridge to pick one")
	}
	s.bridge = bridges[0]
	log.Info().Str("bridge", s.bridge.Address()).Str("id", s.bridge.ID()).Msg("Using discovered bridge")
	return s.bridge, nil
}

// Pair pairs the bridge with username. An already whitelisted username
// costs one request and no button press.
func (s *HueService) Pair(ctx context.Context, username string) (*hue.Bridge, error) {
	bridge, err := s.Bridge(ctx)
	if err != nil {
		return nil, err
	}
	if err := bridge.Pair(ctx, s.cfg.Hue.DeviceType, username); err != nil {
		return nil, err
	}
	log.Info().Str("bridge", bridge.Address()).Msg("Paired with bridge")
	return bridge, nil
}

// Connected returns the bridge paired with the configured username.
func (s *HueService) Connected(ctx context.Context) (*hue.Bridge, error) {
	bridge, err := s.Bridge(ctx)
	if err != nil {
		return nil, err
	}
	if bridge.IsPaired() {
		return bridge, nil
	}

	if s.cfg.Hue.Username == "" {
		return nil, ErrNotPaired
	}
	return s.Pair(ctx, s.cfg.Hue.Username)
}
