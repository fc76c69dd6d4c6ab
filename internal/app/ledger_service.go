package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightsd/internal/config"
	"github.com/dokzlo13/lightsd/internal/eventbus"
	"github.com/dokzlo13/lightsd/internal/ledger"
	"github.com/dokzlo13/lightsd/internal/lights"
)

// LedgerService records applied events and prunes old entries.
type LedgerService struct {
	cfg    *config.Config
	Ledger *ledger.Ledger
}

// NewLedgerService subscribes the ledger to applied events.
func NewLedgerService(cfg *config.Config, l *ledger.Ledger, bus *eventbus.Bus) *LedgerService {
	bus.Subscribe(eventbus.EventTypeLightApplied, func(e eventbus.Event) {
		ev, ok := e.Payload.(lights.Event)
		if !ok {
			return
		}
		if err := l.Record(ev); err != nil {
			log.Error().Err(err).Str("light", ev.Light.String()).Msg("Failed to record light event")
		}
	})

	return &LedgerService{cfg: cfg, Ledger: l}
}

// Start runs the retention cleanup loop.
func (s *LedgerService) Start(ctx context.Context) {
	interval := s.cfg.Ledger.CleanupInterval.Duration()
	retention := time.Duration(s.cfg.Ledger.RetentionDays) * 24 * time.Hour
	if interval <= 0 || retention <= 0 {
		log.Debug().Msg("Ledger retention disabled")
		return
	}
	go s.Ledger.RunCleanup(ctx, interval, retention)
}
