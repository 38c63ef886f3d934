package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/huelink/internal/config"
	"github.com/dokzlo13/huelink/internal/hue"
	"github.com/dokzlo13/huelink/internal/ledger"
)

// ErrLedgerDisabled is returned by History when ledger.enabled is false.
var ErrLedgerDisabled = errors.New("app: commit ledger is disabled")

// App is the application container behind the huectl commands.
type App struct {
	cfg      *config.Config
	services *Services
}

// New creates a new App instance with all services initialized.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	services, err := NewServices(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		services: services,
	}, nil
}

// Close releases all resources.
func (a *App) Close() {
	if a.services != nil {
		a.services.Close()
	}
}

// Discover lists the bridges on the network.
func (a *App) Discover(ctx context.Context) ([]*hue.Bridge, error) {
	return a.services.Hue.Discover(ctx)
}

// DiscoverMDNS browses the local network for bridges regardless of discovery.mdns.
func (a *App) DiscoverMDNS(ctx context.Context) ([]*hue.Bridge, error) {
	return a.services.Hue.Discoverer.DiscoverMDNS(ctx)
}

// Pair pairs with the bridge. An empty username falls back to the configured
// one; when both are empty the bridge issues a username.
func (a *App) Pair(ctx context.Context, username string) (*hue.Bridge, error) {
	if username == "" {
		username = a.cfg.Hue.Username
	}
	return a.services.Hue.Pair(ctx, username)
}

// Lights returns every light on the bridge in id order.
func (a *App) Lights(ctx context.Context) ([]*hue.Light, error) {
	bridge, err := a.services.Hue.Connected(ctx)
	if err != nil {
		return nil, err
	}
	return bridge.Lights().All(ctx)
}

// LightChange lists the fields to set on a light; nil fields are left alone.
type LightChange struct {
	On               *bool
	Brightness       *int
	Hue              *int
	Saturation       *int
	Effect           *string
	ColorTemperature *int
	Alert            *string
}

// Empty reports whether the change sets nothing.
func (c LightChange) Empty() bool {
	return c.On == nil && c.Brightness == nil && c.Hue == nil && c.Saturation == nil &&
		c.Effect == nil && c.ColorTemperature == nil && c.Alert == nil
}

func (c LightChange) apply(light *hue.Light) error {
	if c.On != nil {
		if err := light.SetOn(*c.On); err != nil {
			return err
		}
	}
	if c.Brightness != nil {
		if err := light.SetBrightness(*c.Brightness); err != nil {
			return err
		}
	}
	if c.Hue != nil {
		if err := light.SetHue(*c.Hue); err != nil {
			return err
		}
	}
	if c.Saturation != nil {
		if err := light.SetSaturation(*c.Saturation); err != nil {
			return err
		}
	}
	if c.Effect != nil {
		if err := light.SetEffect(hue.Effect(*c.Effect)); err != nil {
			return err
		}
	}
	if c.ColorTemperature != nil {
		if err := light.SetColorTemperature(*c.ColorTemperature); err != nil {
			return err
		}
	}
	if c.Alert != nil {
		if err := light.SetAlert(hue.Alert(*c.Alert)); err != nil {
			return err
		}
	}
	return nil
}

// SetLight applies change to the light named or numbered key and commits it.
// A validation failure leaves the light untouched.
func (a *App) SetLight(ctx context.Context, key string, change LightChange) (*hue.Light, bool, error) {
	bridge, err := a.services.Hue.Connected(ctx)
	if err != nil {
		return nil, false, err
	}
	light, err := bridge.Lights().Get(ctx, key)
	if err != nil {
		return nil, false, err
	}

	if err := change.apply(light); err != nil {
		light.Revert()
		return light, false, err
	}

	ok, err := light.Commit(ctx)
	if err != nil {
		return light, false, err
	}
	if !ok {
		log.Warn().Str("light", light.Name()).Msg("Bridge rejected part of the change")
	}
	return light, ok, nil
}

// History returns recorded commits, newest first. An empty key lists all
// lights; otherwise key is resolved on the bridge like SetLight.
func (a *App) History(ctx context.Context, key string, limit int) ([]*ledger.Entry, error) {
	if a.services.Ledger == nil {
		return nil, ErrLedgerDisabled
	}
	if key == "" {
		return a.services.Ledger.Recent(ctx, limit)
	}

	bridge, err := a.services.Hue.Connected(ctx)
	if err != nil {
		return nil, err
	}
	light, err := bridge.Lights().Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return a.services.Ledger.ForLight(ctx, bridge.Address(), light.ID(), limit)
}

// SignalContext creates a context that is cancelled when SIGINT or SIGTERM is received.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Received signal, cancelling")
		cancel()
	}()

	return ctx
}
