package lights

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// ID identifies one of the lights a caller can open.
type ID int

const (
	IDBacklight ID = iota + 1
	IDBattery
	IDNotifications
	IDAttention
)

var idNames = map[ID]string{
	IDBacklight:     "backlight",
	IDBattery:       "battery",
	IDNotifications: "notifications",
	IDAttention:     "attention",
}

// IDs lists every light in a stable order.
var IDs = []ID{IDBacklight, IDBattery, IDNotifications, IDAttention}

func (id ID) String() string {
	if name, ok := idNames[id]; ok {
		return name
	}
	return fmt.Sprintf("ID(%d)", int(id))
}

// Valid reports whether id names a known light.
func (id ID) Valid() bool {
	_, ok := idNames[id]
	return ok
}

// MarshalJSON renders the light name.
func (id ID) MarshalJSON() ([]byte, error) {
	if !id.Valid() {
		return []byte("null"), nil
	}
	return json.Marshal(id.String())
}

// ParseID resolves a light name.
func ParseID(name string) (ID, error) {
	for id, n := range idNames {
		if n == name {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown light %q", ErrInvalidArgument, name)
}

// Handler applies a light state to one light.
type Handler interface {
	SetLight(state LightState) error
}

type backlightHandler struct{ c *Controller }

func (h backlightHandler) SetLight(state LightState) error {
	return h.c.SetBacklight(state)
}

type slotHandler struct {
	c    *Controller
	slot ID
}

func (h slotHandler) SetLight(state LightState) error {
	h.c.update(h.slot, state)
	return nil
}

// Device is an open handle on one light. Its handler is bound at open time.
type Device struct {
	id      ID
	handler Handler
	closed  atomic.Bool
}

// Open returns a device for id. The first open reads the panel's maximum
// brightness.
func (c *Controller) Open(id ID) (*Device, error) {
	var h Handler
	switch id {
	case IDBacklight:
		h = backlightHandler{c: c}
	case IDBattery, IDNotifications, IDAttention:
		h = slotHandler{c: c, slot: id}
	default:
		return nil, fmt.Errorf("%w: unknown light %s", ErrInvalidArgument, id)
	}

	c.MaxBrightness()

	return &Device{id: id, handler: h}, nil
}

// OpenName parses name and opens the matching light.
func (c *Controller) OpenName(name string) (*Device, error) {
	id, err := ParseID(name)
	if err != nil {
		return nil, err
	}
	return c.Open(id)
}

// ID returns the light this device drives.
func (d *Device) ID() ID {
	if d == nil {
		return 0
	}
	return d.id
}

// SetLight applies state to the device's light.
func (d *Device) SetLight(state LightState) error {
	if d == nil || d.handler == nil {
		return fmt.Errorf("%w: nil device", ErrInvalidArgument)
	}
	if d.closed.Load() {
		return ErrClosed
	}
	return d.handler.SetLight(state)
}

// Close releases the handle. The light keeps its current state.
func (d *Device) Close() error {
	if d == nil {
		return fmt.Errorf("%w: nil device", ErrInvalidArgument)
	}
	d.closed.Store(true)
	return nil
}
