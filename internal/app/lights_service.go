package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightsd/internal/config"
	"github.com/dokzlo13/lightsd/internal/eventbus"
	"github.com/dokzlo13/lightsd/internal/lights"
	"github.com/dokzlo13/lightsd/internal/metrics"
	"github.com/dokzlo13/lightsd/internal/sysfs"
)

// LightsService owns the hardware store, the controller and the event bus
// that fans applied events out to the ledger and scripts.
type LightsService struct {
	Store      sysfs.Store
	Controller *lights.Controller
	Bus        *eventbus.Bus
}

// NewStore builds the control-file store described by cfg. Dry runs keep
// every write in memory.
func NewStore(cfg *config.Config) (sysfs.Store, error) {
	if cfg.Sysfs.DryRun {
		log.Warn().Msg("Dry run: control-file writes are kept in memory")
		store := sysfs.NewMemoryStore()
		store.Set(sysfs.EndpointLCDMaxBrightness, "255")
		return store, nil
	}

	paths, err := cfg.Sysfs.EndpointPaths()
	if err != nil {
		return nil, err
	}
	return sysfs.NewFileStore(paths), nil
}

// NewLightsService creates the controller stack.
func NewLightsService(cfg *config.Config) (*LightsService, error) {
	store, err := NewStore(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Metrics.Enabled {
		store = metrics.InstrumentStore(store)
	}

	s := &LightsService{
		Store:      store,
		Controller: lights.NewController(store),
		Bus:        eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize()),
	}

	if cfg.Metrics.Enabled {
		s.Controller.Subscribe(metrics.ObserveLights)
		metrics.ObserveBus(s.Bus)
	}
	s.Controller.Subscribe(func(e lights.Event) {
		s.Bus.Publish(eventbus.Event{Type: eventbus.EventTypeLightApplied, Payload: e})
	})

	return s, nil
}

// Start reads the backlight limit up front so the first update does not pay
// for it.
func (s *LightsService) Start(ctx context.Context) {
	log.Info().Int("max_brightness", s.Controller.MaxBrightness()).Msg("Lights controller ready")
}

// Close drains the event bus.
func (s *LightsService) Close(ctx context.Context) {
	s.Bus.Close(ctx)
}
