// Package lua hosts user scripts that drive the lights. All Lua execution
// happens on a single worker goroutine fed by a work queue.
package lua

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/lightsd/internal/eventbus"
	"github.com/dokzlo13/lightsd/internal/lights"
	"github.com/dokzlo13/lightsd/internal/lua/modules"
)

// ErrRuntimeClosed is returned when the Lua runtime is closed
var ErrRuntimeClosed = errors.New("lua runtime closed")

// DefaultQueueSize is the capacity of the work queue.
const DefaultQueueSize = 100

// LuaWork represents work to be executed on the Lua VM
// All Lua execution MUST go through this to ensure thread safety
type LuaWork func(ctx context.Context)

// Runtime manages the Lua VM with single-threaded execution
type Runtime struct {
	L          *lua.LState
	scriptPath string

	lightsModule *modules.LightsModule

	// Work queue for thread-safe Lua execution
	workQueue chan LuaWork

	// Shutdown signaling - closing this channel signals senders to stop
	closing   chan struct{}
	closeOnce sync.Once
	running   atomic.Bool
	done      chan struct{}
	stateOnce sync.Once
}

// NewRuntime creates a Lua runtime bound to ctrl. scriptPath may be empty,
// in which case no script is loaded.
func NewRuntime(ctrl *lights.Controller, scriptPath string) *Runtime {
	r := &Runtime{
		L:            lua.NewState(),
		scriptPath:   scriptPath,
		lightsModule: modules.NewLightsModule(ctrl),
		workQueue:    make(chan LuaWork, DefaultQueueSize),
		closing:      make(chan struct{}),
		done:         make(chan struct{}),
	}

	r.L.PreloadModule("log", modules.NewLogModule().Loader)
	r.L.PreloadModule("lights", r.lightsModule.Loader)

	return r
}

// ScriptPath returns the configured script path.
func (r *Runtime) ScriptPath() string {
	return r.scriptPath
}

// Close signals the runtime to stop accepting new work, waits for the worker
// to exit and closes the Lua state.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		close(r.closing)
	})
	if r.running.Load() {
		<-r.done
	}
	r.stateOnce.Do(r.L.Close)
}

// Do queues work to be executed on the Lua VM (thread-safe, non-blocking)
// Returns false if the runtime is closing, queue is full, or context is cancelled.
func (r *Runtime) Do(ctx context.Context, work LuaWork) bool {
	if r.isClosing() {
		log.Warn().Msg("Lua runtime closing, dropping work")
		return false
	}
	select {
	case <-ctx.Done():
		log.Warn().Msg("Context cancelled, dropping Lua work")
		return false
	case r.workQueue <- work:
		return true
	default:
		log.Warn().Msg("Lua work queue full, dropping work")
		return false
	}
}

// DoSyncWithResult queues work, waits for space, and waits for the result.
func (r *Runtime) DoSyncWithResult(ctx context.Context, work func(context.Context) error) error {
	done := make(chan error, 1)
	wrappedWork := LuaWork(func(c context.Context) {
		done <- work(c)
	})

	if r.isClosing() {
		return ErrRuntimeClosed
	}
	select {
	case <-r.closing:
		return ErrRuntimeClosed
	case <-ctx.Done():
		return ctx.Err()
	case r.workQueue <- wrappedWork:
	}

	select {
	case <-r.closing:
		return ErrRuntimeClosed
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (r *Runtime) isClosing() bool {
	select {
	case <-r.closing:
		return true
	default:
		return false
	}
}

// Run starts the Lua worker goroutine - this is the ONLY goroutine that touches Lua
// once started. Exits when context is cancelled or runtime is closed.
func (r *Runtime) Run(ctx context.Context) {
	if !r.running.CompareAndSwap(false, true) {
		return
	}
	defer close(r.done)

	for {
		select {
		case <-ctx.Done():
			r.drainQueue(ctx)
			return
		case <-r.closing:
			r.drainQueue(ctx)
			return
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		}
	}
}

// drainQueue processes any remaining work in the queue before exiting
func (r *Runtime) drainQueue(ctx context.Context) {
	for {
		select {
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		default:
			return
		}
	}
}

// executeWork runs a single work item with panic recovery
func (r *Runtime) executeWork(ctx context.Context, work LuaWork) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Msg("Lua work panicked - worker continuing")
		}
	}()
	r.L.SetContext(ctx)
	work(ctx)
}

// LoadScript executes the configured script. Must be called before Run.
func (r *Runtime) LoadScript() error {
	if r.scriptPath == "" {
		log.Debug().Msg("No Lua script configured")
		return nil
	}

	log.Info().Str("path", r.scriptPath).Msg("Loading Lua script")
	if err := r.L.DoFile(r.scriptPath); err != nil {
		return fmt.Errorf("failed to execute Lua script: %w", err)
	}

	log.Info().Msg("Lua script loaded successfully")
	return nil
}

// Reload executes the script again on the worker goroutine with empty
// handler lists. If the script fails the previous handlers are kept.
func (r *Runtime) Reload(ctx context.Context) error {
	return r.DoSyncWithResult(ctx, func(context.Context) error {
		prev := r.lightsModule.Reset()
		if err := r.LoadScript(); err != nil {
			r.lightsModule.Restore(prev)
			return err
		}
		return nil
	})
}

// HandleWebhook queues the script's handlers for req.
func (r *Runtime) HandleWebhook(ctx context.Context, req eventbus.WebhookRequest) bool {
	return r.Do(ctx, func(context.Context) {
		if n := r.lightsModule.DispatchWebhook(r.L, req); n == 0 {
			log.Debug().Str("method", req.Method).Str("path", req.Path).Msg("No Lua handler for webhook")
		}
	})
}

// HandleApplied queues the script's on_applied handlers for e.
func (r *Runtime) HandleApplied(ctx context.Context, e lights.Event) bool {
	return r.Do(ctx, func(context.Context) {
		r.lightsModule.DispatchApplied(r.L, e)
	})
}
