package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightsd/internal/config"
	"github.com/dokzlo13/lightsd/internal/eventbus"
	"github.com/dokzlo13/lightsd/internal/lights"
	luart "github.com/dokzlo13/lightsd/internal/lua"
)

// LuaService wraps the Lua runtime and provides thread-safe execution.
type LuaService struct {
	cfg     *config.Config
	Runtime *luart.Runtime
	watcher *luart.Watcher
}

// NewLuaService creates a new LuaService.
func NewLuaService(cfg *config.Config, ctrl *lights.Controller) *LuaService {
	return &LuaService{
		cfg:     cfg,
		Runtime: luart.NewRuntime(ctrl, cfg.Script.Path),
	}
}

// LoadScript loads and executes the Lua script.
// Must be called before Start().
func (s *LuaService) LoadScript() error {
	return s.Runtime.LoadScript()
}

// RegisterHandlers routes bus events to the script.
func (s *LuaService) RegisterHandlers(ctx context.Context, bus *eventbus.Bus) {
	bus.Subscribe(eventbus.EventTypeWebhook, func(e eventbus.Event) {
		if req, ok := e.Payload.(eventbus.WebhookRequest); ok {
			s.Runtime.HandleWebhook(ctx, req)
		}
	})
	bus.Subscribe(eventbus.EventTypeLightApplied, func(e eventbus.Event) {
		if ev, ok := e.Payload.(lights.Event); ok {
			s.Runtime.HandleApplied(ctx, ev)
		}
	})
}

// Start begins the Lua worker goroutine and the script watcher.
func (s *LuaService) Start(ctx context.Context) {
	// Start Lua worker goroutine - this is the ONLY goroutine that touches Lua
	go s.Runtime.Run(ctx)

	if s.cfg.Script.Watch && s.cfg.Script.Path != "" {
		s.watcher = luart.NewWatcher(s.Runtime, 0)
		if err := s.watcher.Start(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to start script watcher")
			s.watcher = nil
		}
	}
}

// Close stops the watcher and closes the Lua runtime.
func (s *LuaService) Close() {
	if s.watcher != nil {
		s.watcher.Stop()
	}
	if s.Runtime != nil {
		s.Runtime.Close()
	}
}
