package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightsd/internal/api"
	"github.com/dokzlo13/lightsd/internal/config"
	"github.com/dokzlo13/lightsd/internal/eventbus"
	"github.com/dokzlo13/lightsd/internal/lights"
)

// APIService wraps the HTTP API server.
type APIService struct {
	cfg    *config.Config
	Server *api.Server
}

// NewAPIService creates a new APIService. bus is nil when scripting is off
// and history is nil when the ledger is off.
func NewAPIService(cfg *config.Config, ctrl *lights.Controller, bus *eventbus.Bus, history api.LedgerReader) (*APIService, error) {
	opts := api.Options{
		Addr:         cfg.API.Addr(),
		RateLimitRPS: cfg.API.RateLimitRPS,
		Ledger:       history,
	}
	if cfg.Metrics.Enabled {
		opts.MetricsPath = cfg.Metrics.Path
	}

	server, err := api.NewServer(opts, ctrl, bus)
	if err != nil {
		return nil, err
	}
	return &APIService{cfg: cfg, Server: server}, nil
}

// Start begins the API server if enabled.
func (s *APIService) Start(ctx context.Context, onFatalError func(error)) {
	if !s.cfg.API.Enabled {
		log.Debug().Msg("API server disabled")
		return
	}

	go func() {
		if err := s.Server.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
			onFatalError(err)
		}
	}()
	s.Server.SetReady(true)
}
