package lights

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/dokzlo13/lightsd/internal/sysfs"
)

func newTestController(t *testing.T) (*Controller, *sysfs.MemoryStore) {
	t.Helper()
	store := sysfs.NewMemoryStore()
	store.Set(sysfs.EndpointLCDMaxBrightness, "255")
	return NewController(store), store
}

// recorder captures applied events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) last(t *testing.T) Event {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		t.Fatal("no events recorded")
	}
	return r.events[len(r.events)-1]
}

func ledValue(t *testing.T, store *sysfs.MemoryStore, ep sysfs.Endpoint) int {
	t.Helper()
	raw, _ := store.Value(ep)
	v, err := strconv.Atoi(raw)
	if err != nil {
		t.Fatalf("%s = %q is not an integer", ep, raw)
	}
	return v
}

var (
	attentionState    = LightState{Color: 0xffff0000, FlashMode: FlashTimed, FlashOnMS: 1000, FlashOffMS: 500}
	notificationState = LightState{Color: 0xff00ff00, FlashMode: FlashTimed, FlashOnMS: 2000, FlashOffMS: 3000}
	batteryState      = LightState{Color: 0xff0000ff}
)

func TestArbitration(t *testing.T) {
	tests := []struct {
		name         string
		attention    LightState
		notification LightState
		battery      LightState
		wantActive   ID
		wantProgram  Program
	}{
		{
			name:         "attention_wins_over_all",
			attention:    attentionState,
			notification: notificationState,
			battery:      batteryState,
			wantActive:   IDAttention,
			wantProgram:  Plan(attentionState),
		},
		{
			name:         "notification_when_attention_dark",
			notification: notificationState,
			battery:      batteryState,
			wantActive:   IDNotifications,
			wantProgram:  Plan(notificationState),
		},
		{
			name:         "alpha_only_attention_is_not_lit",
			attention:    LightState{Color: 0xff000000, FlashMode: FlashTimed, FlashOnMS: 100, FlashOffMS: 100},
			notification: notificationState,
			battery:      batteryState,
			wantActive:   IDNotifications,
			wantProgram:  Plan(notificationState),
		},
		{
			name:        "battery_fallback",
			battery:     batteryState,
			wantActive:  IDBattery,
			wantProgram: Plan(batteryState),
		},
		{
			name:        "battery_shown_even_when_dark",
			battery:     LightState{},
			wantActive:  IDBattery,
			wantProgram: Program{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestController(t)
			rec := &recorder{}
			c.Subscribe(rec.listen)

			c.UpdateBattery(tt.battery)
			c.UpdateNotification(tt.notification)
			c.UpdateAttention(tt.attention)

			ev := rec.last(t)
			if ev.Active != tt.wantActive {
				t.Errorf("Active = %s, want %s", ev.Active, tt.wantActive)
			}
			if ev.Program == nil || *ev.Program != tt.wantProgram {
				t.Errorf("Program = %+v, want %+v", ev.Program, tt.wantProgram)
			}
			if snap := c.Snapshot(); snap.Active != tt.wantActive {
				t.Errorf("Snapshot().Active = %s, want %s", snap.Active, tt.wantActive)
			}
		})
	}
}

func TestArbitration_ClearingAttentionFallsBack(t *testing.T) {
	c, store := newTestController(t)

	c.UpdateBattery(batteryState)
	c.UpdateAttention(LightState{Color: 0x00ff0000})
	if got := ledValue(t, store, sysfs.Brightness(sysfs.Red)); got != 255 {
		t.Fatalf("red brightness = %d, want 255", got)
	}

	c.UpdateAttention(LightState{})
	if got := ledValue(t, store, sysfs.Brightness(sysfs.Red)); got != 0 {
		t.Errorf("red brightness = %d, want 0 after attention cleared", got)
	}
	if got := ledValue(t, store, sysfs.Brightness(sysfs.Blue)); got != 255 {
		t.Errorf("blue brightness = %d, want 255 from battery", got)
	}
}

func TestArbitration_LastWriteWins(t *testing.T) {
	c, _ := newTestController(t)

	c.UpdateNotification(notificationState)
	c.UpdateNotification(LightState{Color: 0x00123456})

	snap := c.Snapshot()
	if snap.Notification != (LightState{Color: 0x00123456}) {
		t.Errorf("Notification = %+v, want the last request only", snap.Notification)
	}
}

// Each update writes a contiguous batch that starts with the blink reset.
// Concurrent updates must never interleave inside a batch.
func TestArbitration_ConcurrentUpdatesAreSerialized(t *testing.T) {
	c, store := newTestController(t)

	states := []LightState{
		attentionState,
		notificationState,
		batteryState,
		{},
		{Color: 0x00ffffff, FlashMode: FlashTimed, FlashOnMS: 100, FlashOffMS: 100},
	}
	updates := []func(LightState){c.UpdateAttention, c.UpdateNotification, c.UpdateBattery}

	var wg sync.WaitGroup
	for g := 0; g < 3; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				updates[g](states[(g+i)%len(states)])
			}
		}(g)
	}
	wg.Wait()

	writes := store.Writes()
	for i := 0; i < len(writes); {
		if writes[i] != blinkReset[0] || writes[i+1] != blinkReset[1] || writes[i+2] != blinkReset[2] {
			t.Fatalf("batch at %d does not start with blink reset: %+v", i, writes[i:i+3])
		}
		// Static batches are reset + 3 brightness writes; blink batches are
		// reset + 15 parameter writes + 3 enables.
		switch writes[i+3].Endpoint {
		case sysfs.Brightness(sysfs.Red):
			for j := 3; j < 6; j++ {
				if writes[i+j].Endpoint != sysfs.Brightness(sysfs.Colors[j-3]) {
					t.Fatalf("interleaved static batch at %d: %+v", i, writes[i:i+6])
				}
			}
			i += 6
		case sysfs.StartIdx(sysfs.Red):
			pauseLo := writes[i+5].Value
			for _, wr := range writes[i+3 : i+18] {
				if wr.Endpoint == sysfs.PauseLo(sysfs.Green) || wr.Endpoint == sysfs.PauseLo(sysfs.Blue) {
					if wr.Value != pauseLo {
						t.Fatalf("blink batch at %d mixes timings: %+v", i, writes[i:i+21])
					}
				}
			}
			for j := 18; j < 21; j++ {
				if writes[i+j].Endpoint != sysfs.Blink(sysfs.Colors[j-18]) {
					t.Fatalf("interleaved blink batch at %d: %+v", i, writes[i:i+21])
				}
			}
			i += 21
		default:
			t.Fatalf("unexpected write at %d: %+v", i+3, writes[i+3])
		}
	}

	// The hardware reflects the arbitration of the final slots.
	snap := c.Snapshot()
	var want LightState
	switch {
	case snap.Attention.Lit():
		want = snap.Attention
	case snap.Notification.Lit():
		want = snap.Notification
	default:
		want = snap.Battery
	}
	p := Plan(want)
	if !p.Blink {
		for _, col := range sysfs.Colors {
			if got := ledValue(t, store, sysfs.Brightness(col)); got != p.intensity(col) {
				t.Errorf("%s brightness = %d, want %d", col, got, p.intensity(col))
			}
		}
	} else {
		for _, col := range sysfs.Colors {
			if got := ledValue(t, store, sysfs.Blink(col)); got != p.intensity(col) {
				t.Errorf("%s blink = %d, want %d", col, got, p.intensity(col))
			}
		}
	}
}

func waitForWrite(t *testing.T, store *sysfs.MemoryStore, ep sysfs.Endpoint) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, w := range store.Writes() {
			if w.Endpoint == ep {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no write to %s", ep)
}

// A slow listener must not let a later update overtake it: listeners see
// events in the order the batches reached the hardware.
func TestListenersSeeHardwareOrder(t *testing.T) {
	c, store := newTestController(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	c.Subscribe(func(e Event) {
		if e.Program != nil && e.Program.Blink {
			once.Do(func() {
				close(entered)
				<-release
			})
		}
	})
	rec := &recorder{}
	c.Subscribe(rec.listen)

	blink := LightState{Color: 0x0000ff00, FlashMode: FlashTimed, FlashOnMS: 1000, FlashOffMS: 1000}
	static := LightState{Color: 0x0000ff00}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.UpdateNotification(blink)
	}()
	<-entered
	go func() {
		defer wg.Done()
		c.UpdateNotification(static)
	}()

	// The static batch is the only one writing brightness nodes.
	waitForWrite(t, store, sysfs.Brightness(sysfs.Green))
	close(release)
	wg.Wait()

	if len(rec.events) != 2 {
		t.Fatalf("got %d events, want 2", len(rec.events))
	}
	first, second := rec.events[0], rec.events[1]
	if !first.Program.Blink || second.Program.Blink {
		t.Errorf("event order = blink:%v, blink:%v; want blink then static", first.Program.Blink, second.Program.Blink)
	}
	if second.Seq != first.Seq+1 {
		t.Errorf("Seq = %d then %d, want consecutive", first.Seq, second.Seq)
	}
	if second.At.Before(first.At) {
		t.Errorf("At went backwards: %v then %v", first.At, second.At)
	}
	if v, _ := store.Value(sysfs.Blink(sysfs.Green)); v != "0" {
		t.Errorf("green blink = %q, want 0 (static shown last)", v)
	}
}

func TestEventSeqSpansLEDAndBacklight(t *testing.T) {
	c, _ := newTestController(t)
	rec := &recorder{}
	c.Subscribe(rec.listen)

	c.UpdateBattery(batteryState)
	if err := c.SetBacklight(LightState{Color: 0x00ffffff}); err != nil {
		t.Fatal(err)
	}
	c.UpdateAttention(attentionState)

	for i, e := range rec.events {
		if e.Seq != uint64(i+1) {
			t.Errorf("events[%d].Seq = %d, want %d", i, e.Seq, i+1)
		}
		if e.At.IsZero() {
			t.Errorf("events[%d].At is zero", i)
		}
	}
}
