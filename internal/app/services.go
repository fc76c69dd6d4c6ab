package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightsd/internal/api"
	"github.com/dokzlo13/lightsd/internal/config"
	"github.com/dokzlo13/lightsd/internal/db"
	"github.com/dokzlo13/lightsd/internal/eventbus"
	"github.com/dokzlo13/lightsd/internal/ledger"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB *db.DB

	// High-level services
	Lights *LightsService
	Ledger *LedgerService
	Lua    *LuaService
	API    *APIService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	var err error
	s.Lights, err = NewLightsService(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Ledger.IsEnabled() {
		database, err := db.Open(cfg.Database.Path)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.DB = database
		s.Ledger = NewLedgerService(cfg, ledger.New(database.DB), s.Lights.Bus)
	}

	// Webhooks are only accepted when a script can handle them.
	var webhookBus *eventbus.Bus
	if cfg.Script.Path != "" {
		s.Lua = NewLuaService(cfg, s.Lights.Controller)
		webhookBus = s.Lights.Bus
	}

	var history api.LedgerReader
	if s.Ledger != nil {
		history = s.Ledger.Ledger
	}

	s.API, err = NewAPIService(cfg, s.Lights.Controller, webhookBus, history)
	if err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

// Start starts all services in the correct order.
// The onFatalError callback is called when a fatal error occurs (e.g. the API cannot bind).
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	s.Lights.Start(ctx)

	if s.Lua != nil {
		// Load Lua script before starting worker
		if err := s.Lua.LoadScript(); err != nil {
			return err
		}
		s.Lua.RegisterHandlers(ctx, s.Lights.Bus)
		s.Lua.Start(ctx)
	}

	if s.Ledger != nil {
		s.Ledger.Start(ctx)
	}
	s.API.Start(ctx, onFatalError)

	return nil
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// Close releases all resources. The bus is drained before the Lua state and
// the database go away.
func (s *Services) Close() {
	if s.Lights != nil {
		timeout := s.cfg.ShutdownTimeout.Duration()
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		s.Lights.Close(ctx)
		cancel()
	}
	if s.Lua != nil {
		s.Lua.Close()
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}
}
