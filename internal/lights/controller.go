package lights

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightsd/internal/sysfs"
)

// Event is emitted after a request has been applied to the hardware.
type Event struct {
	// Light is the light the request was made for.
	Light ID
	State LightState
	// Active is the slot now shown on the LED. Unset for backlight events.
	Active ID
	// Program is what the LED was programmed with; nil for backlight events.
	Program *Program
	// Brightness is the panel value written; only set for backlight events.
	Brightness int
	// Seq increases by one for every write batch, in hardware order.
	Seq uint64
	At  time.Time
}

// Listener receives applied events in the order they reached the hardware.
// Listeners run on the caller's goroutine, must not block and must not call
// back into the controller.
type Listener func(Event)

// Controller owns the priority slots, the panel brightness scale and the
// single lock serialising every LED and backlight write.
type Controller struct {
	store      sysfs.Store
	programmer *Programmer

	mu           sync.Mutex
	attention    LightState
	notification LightState
	battery      LightState
	active       ID
	backlight    int
	seq          uint64

	// emitMu is taken before mu is released, so events leave in the order
	// their writes were made.
	emitMu sync.Mutex

	maxOnce       sync.Once
	maxBrightness int

	listenersMu sync.RWMutex
	listeners   []Listener
}

// NewController creates a controller writing through store.
func NewController(store sysfs.Store) *Controller {
	return &Controller{
		store:      store,
		programmer: NewProgrammer(store),
		active:     IDBattery,
	}
}

// Subscribe registers a listener for applied events.
func (c *Controller) Subscribe(l Listener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, l)
}

// unlockAndEmit stamps e, releases mu and delivers e to the listeners.
// The caller must hold mu.
func (c *Controller) unlockAndEmit(e Event) {
	c.seq++
	e.Seq = c.seq
	e.At = time.Now()

	c.emitMu.Lock()
	c.mu.Unlock()
	defer c.emitMu.Unlock()

	c.emit(e)
}

func (c *Controller) emit(e Event) {
	c.listenersMu.RLock()
	listeners := c.listeners
	c.listenersMu.RUnlock()

	for _, l := range listeners {
		l(e)
	}
}

// MaxBrightness returns the panel's maximum brightness. It is read from the
// hardware once; an unreadable, zero or negative value falls back to
// DefaultMaxBrightness.
func (c *Controller) MaxBrightness() int {
	c.maxOnce.Do(func() {
		v, err := c.store.ReadInt(sysfs.EndpointLCDMaxBrightness)
		switch {
		case err != nil:
			ev := log.Error()
			if errors.Is(err, sysfs.ErrZeroValue) {
				ev = log.Warn()
			}
			ev.Err(err).Int("fallback", DefaultMaxBrightness).Msg("Failed to read max panel brightness")
			v = DefaultMaxBrightness
		case v < 0:
			log.Warn().Int("value", v).Int("fallback", DefaultMaxBrightness).Msg("Negative max panel brightness")
			v = DefaultMaxBrightness
		}
		c.maxBrightness = v
	})
	return c.maxBrightness
}

// Snapshot is a consistent view of the controller state.
type Snapshot struct {
	Attention     LightState `json:"attention"`
	Notification  LightState `json:"notification"`
	Battery       LightState `json:"battery"`
	Active        ID         `json:"active"`
	Backlight     int        `json:"backlight"`
	MaxBrightness int        `json:"max_brightness"`
}

// Snapshot returns the current slots and arbitration result.
func (c *Controller) Snapshot() Snapshot {
	max := c.MaxBrightness()

	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Attention:     c.attention,
		Notification:  c.notification,
		Battery:       c.battery,
		Active:        c.active,
		Backlight:     c.backlight,
		MaxBrightness: max,
	}
}

func colorHex(c uint32) string {
	return fmt.Sprintf("%08X", c)
}
