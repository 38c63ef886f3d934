package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/huelink/internal/config"
	"github.com/dokzlo13/huelink/internal/db"
	"github.com/dokzlo13/huelink/internal/hue"
	"github.com/dokzlo13/huelink/internal/ledger"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Commit history, both nil when the ledger is disabled
	DB     *db.DB
	Ledger *ledger.Ledger

	Hue *HueService
}

// NewServices creates all services with proper dependency injection.
func NewServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	var recorder hue.CommitRecorder
	if cfg.Ledger.IsEnabled() {
		database, err := db.Open(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		s.DB = database
		s.Ledger = ledger.New(database.DB)
		recorder = s.Ledger

		deleted, err := s.Ledger.DeleteOlderThan(ctx, cfg.Ledger.Retention())
		if err != nil {
			log.Warn().Err(err).Msg("Failed to apply ledger retention")
		} else if deleted > 0 {
			log.Info().Int64("deleted", deleted).Int("retention_days", cfg.Ledger.RetentionDays).Msg("Pruned commit ledger")
		}
	}

	s.Hue = NewHueService(cfg, recorder)
	return s, nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
		s.DB = nil
	}
}
