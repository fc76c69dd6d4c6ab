package modules

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/lightsd/internal/eventbus"
	"github.com/dokzlo13/lightsd/internal/lights"
)

// webhookHandler is a Lua function bound to a path pattern such as
// "/door/{state}".
type webhookHandler struct {
	method string
	path   string
	fn     *lua.LFunction
}

// LightsModule exposes the light controller to Lua scripts.
//
//	local lights = require("lights")
//	lights.set("notifications", {color = "#00ff00", flash = "timed", on_ms = 500, off_ms = 2000})
//	lights.on_webhook("POST", "/alarm/{state}", function(req) ... end)
//	lights.on_applied(function(ev) ... end)
type LightsModule struct {
	ctrl *lights.Controller

	devMu   sync.Mutex
	devices map[lights.ID]*lights.Device

	// Everything below is only touched from the Lua goroutine.
	handlers Handlers

	// Newest sequence delivered per kind of hardware; older events arriving
	// late from the bus are dropped.
	lastLEDSeq       uint64
	lastBacklightSeq uint64
}

// Handlers is the set of callbacks a script registered.
type Handlers struct {
	webhooks []webhookHandler
	applied  []*lua.LFunction
}

// NewLightsModule creates a lights module bound to ctrl.
func NewLightsModule(ctrl *lights.Controller) *LightsModule {
	return &LightsModule{
		ctrl:    ctrl,
		devices: make(map[lights.ID]*lights.Device),
	}
}

// Loader is the module loader for Lua
func (m *LightsModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "set", L.NewFunction(m.set))
	L.SetField(mod, "state", L.NewFunction(m.state))
	L.SetField(mod, "duty", L.NewFunction(m.duty))
	L.SetField(mod, "on_webhook", L.NewFunction(m.onWebhook))
	L.SetField(mod, "on_applied", L.NewFunction(m.onApplied))

	L.Push(mod)
	return 1
}

// Reset drops every registered handler and returns them, before a script
// reload.
func (m *LightsModule) Reset() Handlers {
	prev := m.handlers
	m.handlers = Handlers{}
	return prev
}

// Restore reinstates handlers returned by Reset, after a failed reload.
func (m *LightsModule) Restore(h Handlers) {
	m.handlers = h
}

func (m *LightsModule) device(name string) (*lights.Device, error) {
	id, err := lights.ParseID(name)
	if err != nil {
		return nil, err
	}

	m.devMu.Lock()
	defer m.devMu.Unlock()
	if dev, ok := m.devices[id]; ok {
		return dev, nil
	}
	dev, err := m.ctrl.Open(id)
	if err != nil {
		return nil, err
	}
	m.devices[id] = dev
	return dev, nil
}

// set(name, {color=, flash=, on_ms=, off_ms=})
func (m *LightsModule) set(L *lua.LState) int {
	name := L.CheckString(1)
	opts := L.OptTable(2, L.NewTable())

	state, err := stateFromTable(opts)
	if err != nil {
		L.ArgError(2, err.Error())
		return 0
	}

	dev, err := m.device(name)
	if err != nil {
		L.ArgError(1, err.Error())
		return 0
	}
	if err := dev.SetLight(state); err != nil {
		L.RaiseError("lights.set(%q): %v", name, err)
		return 0
	}

	L.Push(lua.LTrue)
	return 1
}

// state() returns the current slots and the displayed slot.
func (m *LightsModule) state(L *lua.LState) int {
	snap := m.ctrl.Snapshot()

	tbl := L.NewTable()
	L.SetField(tbl, "attention", stateToTable(L, snap.Attention))
	L.SetField(tbl, "notifications", stateToTable(L, snap.Notification))
	L.SetField(tbl, "battery", stateToTable(L, snap.Battery))
	L.SetField(tbl, "active", lua.LString(snap.Active.String()))
	L.SetField(tbl, "backlight", lua.LNumber(snap.Backlight))
	L.SetField(tbl, "max_brightness", lua.LNumber(snap.MaxBrightness))

	L.Push(tbl)
	return 1
}

// duty(brightness) returns the encoded duty-cycle list.
func (m *LightsModule) duty(L *lua.LState) int {
	b := L.CheckInt(1)
	if b < 0 || b > lights.DefaultMaxBrightness {
		L.ArgError(1, "brightness must be within 0-255")
		return 0
	}
	L.Push(lua.LString(lights.EncodeDutyCycle(b)))
	return 1
}

// on_webhook(method, path, fn)
func (m *LightsModule) onWebhook(L *lua.LState) int {
	method := strings.ToUpper(L.CheckString(1))
	path := L.CheckString(2)
	fn := L.CheckFunction(3)

	m.handlers.webhooks = append(m.handlers.webhooks, webhookHandler{method: method, path: path, fn: fn})
	log.Info().Str("method", method).Str("path", path).Msg("Registered webhook handler")
	return 0
}

// on_applied(fn)
func (m *LightsModule) onApplied(L *lua.LState) int {
	m.handlers.applied = append(m.handlers.applied, L.CheckFunction(1))
	return 0
}

// DispatchWebhook calls every handler matching req. Must run on the Lua goroutine.
func (m *LightsModule) DispatchWebhook(L *lua.LState, req eventbus.WebhookRequest) int {
	called := 0
	for _, h := range m.handlers.webhooks {
		if h.method != req.Method {
			continue
		}
		params, ok := matchPath(h.path, req.Path)
		if !ok {
			continue
		}

		arg := MapToLuaTable(L, map[string]any{
			"id":      req.ID,
			"method":  req.Method,
			"path":    req.Path,
			"body":    req.Body,
			"json":    req.JSON,
			"headers": req.Headers,
		})
		paramsTbl := L.NewTable()
		for k, v := range params {
			paramsTbl.RawSetString(k, lua.LString(v))
		}
		L.SetField(arg, "params", paramsTbl)

		if err := L.CallByParam(lua.P{Fn: h.fn, NRet: 0, Protect: true}, arg); err != nil {
			log.Error().Err(err).Str("path", req.Path).Msg("Webhook handler failed")
		}
		called++
	}
	return called
}

// DispatchApplied calls every on_applied handler. Must run on the Lua goroutine.
// Events older than one already delivered for the same hardware are dropped.
func (m *LightsModule) DispatchApplied(L *lua.LState, e lights.Event) {
	last := &m.lastLEDSeq
	if e.Light == lights.IDBacklight {
		last = &m.lastBacklightSeq
	}
	if e.Seq != 0 && e.Seq <= *last {
		log.Debug().Uint64("seq", e.Seq).Uint64("last", *last).Msg("Dropping stale applied event")
		return
	}
	if e.Seq != 0 {
		*last = e.Seq
	}

	if len(m.handlers.applied) == 0 {
		return
	}

	arg := L.NewTable()
	L.SetField(arg, "light", lua.LString(e.Light.String()))
	L.SetField(arg, "state", stateToTable(L, e.State))
	L.SetField(arg, "seq", lua.LNumber(e.Seq))
	if e.Light == lights.IDBacklight {
		L.SetField(arg, "brightness", lua.LNumber(e.Brightness))
	} else {
		L.SetField(arg, "active", lua.LString(e.Active.String()))
		if e.Program != nil {
			L.SetField(arg, "blink", lua.LBool(e.Program.Blink))
		}
	}

	for _, fn := range m.handlers.applied {
		if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, arg); err != nil {
			log.Error().Err(err).Str("light", e.Light.String()).Msg("on_applied handler failed")
		}
	}
}

func stateFromTable(tbl *lua.LTable) (lights.LightState, error) {
	var state lights.LightState

	switch c := tbl.RawGetString("color").(type) {
	case lua.LNumber:
		state.Color = uint32(int64(c))
	case lua.LString:
		color, err := lights.ParseColor(string(c))
		if err != nil {
			return state, err
		}
		state.Color = color
	case *lua.LNilType:
	default:
		return state, fmt.Errorf("color must be a number or string, got %s", c.Type())
	}

	mode, err := lights.ParseFlashMode(lua.LVAsString(tbl.RawGetString("flash")))
	if err != nil {
		return state, err
	}
	state.FlashMode = mode

	if n, ok := tbl.RawGetString("on_ms").(lua.LNumber); ok {
		state.FlashOnMS = int(n)
	}
	if n, ok := tbl.RawGetString("off_ms").(lua.LNumber); ok {
		state.FlashOffMS = int(n)
	}
	if state.FlashOnMS < 0 || state.FlashOffMS < 0 {
		return state, fmt.Errorf("flash durations must not be negative")
	}
	return state, nil
}

func stateToTable(L *lua.LState, s lights.LightState) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "color", lua.LNumber(s.Color))
	L.SetField(tbl, "flash", lua.LString(s.FlashMode.String()))
	L.SetField(tbl, "on_ms", lua.LNumber(s.FlashOnMS))
	L.SetField(tbl, "off_ms", lua.LNumber(s.FlashOffMS))
	L.SetField(tbl, "lit", lua.LBool(s.Lit()))
	return tbl
}

// matchPath matches a path pattern against an actual path.
// Pattern: "/alarm/{state}"
// Path: "/alarm/on"
// Returns extracted params {"state": "on"} and true if matched.
func matchPath(pattern, path string) (map[string]string, bool) {
	patternParts := strings.Split(strings.Trim(pattern, "/"), "/")
	pathParts := strings.Split(strings.Trim(path, "/"), "/")

	if len(patternParts) != len(pathParts) {
		return nil, false
	}

	params := make(map[string]string)
	for i, patternPart := range patternParts {
		pathPart := pathParts[i]

		if len(patternPart) > 2 && patternPart[0] == '{' && patternPart[len(patternPart)-1] == '}' {
			params[patternPart[1:len(patternPart)-1]] = pathPart
		} else if patternPart != pathPart {
			return nil, false
		}
	}

	return params, true
}
