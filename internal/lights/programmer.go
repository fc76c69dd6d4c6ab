package lights

import (
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightsd/internal/sysfs"
)

// channel binds an LED color to its slot in the shared hardware LUT.
type channel struct {
	color    sysfs.Color
	startIdx int
}

var channels = [3]channel{
	{color: sysfs.Red, startIdx: 0},
	{color: sysfs.Green, startIdx: RampSize},
	{color: sysfs.Blue, startIdx: RampSize * 2},
}

// Program describes what was written to the LED for one state.
type Program struct {
	Red         int  `json:"red"`
	Green       int  `json:"green"`
	Blue        int  `json:"blue"`
	Blink       bool `json:"blink"`
	OnMS        int  `json:"on_ms"`
	OffMS       int  `json:"off_ms"`
	StepMS      int  `json:"step_ms"`
	PauseHighMS int  `json:"pause_hi_ms"`
}

func (p Program) intensity(c sysfs.Color) int {
	switch c {
	case sysfs.Red:
		return p.Red
	case sysfs.Green:
		return p.Green
	default:
		return p.Blue
	}
}

// BlinkTiming derives the ramp step and the extra hold at the top of the
// ramp from the requested on-time. The driver ramps up and then back down,
// so one blink spends 2*RampSize steps ramping. When that does not fit into
// onMS the step is shortened so it does, and no extra hold is added.
func BlinkTiming(onMS int) (stepMS, pauseHighMS int) {
	stepMS = RampStepDuration
	pauseHighMS = onMS - stepMS*RampSize*2
	if stepMS*RampSize*2 > onMS {
		stepMS = onMS / (RampSize * 2)
		pauseHighMS = 0
	}
	return stepMS, pauseHighMS
}

// Programmer drives the tri-color LED through a control-file store.
// Write failures are logged by the store and otherwise ignored: a device
// may lack some LED nodes and partial programming is still useful.
type Programmer struct {
	store sysfs.Store
}

// NewProgrammer creates a programmer writing to store.
func NewProgrammer(store sysfs.Store) *Programmer {
	return &Programmer{store: store}
}

// Plan computes the program for a state without touching hardware.
func Plan(state LightState) Program {
	var p Program
	p.Red, p.Green, p.Blue = state.Channels()

	if state.FlashMode == FlashTimed {
		p.OnMS = state.FlashOnMS
		p.OffMS = state.FlashOffMS
	}
	p.Blink = p.OnMS > 0 && p.OffMS > 0
	if p.Blink {
		p.StepMS, p.PauseHighMS = BlinkTiming(p.OnMS)
	}
	return p
}

// Program writes state to the LED and returns what was programmed.
func (pr *Programmer) Program(state LightState) Program {
	p := Plan(state)

	// Stop any running waveform before reprogramming.
	for _, ch := range channels {
		pr.writeInt(sysfs.Blink(ch.color), 0)
	}

	if p.Blink {
		for _, ch := range channels {
			pr.programBlink(ch, p)
		}
		for _, ch := range channels {
			pr.writeInt(sysfs.Blink(ch.color), p.intensity(ch.color))
		}
	} else {
		for _, ch := range channels {
			pr.writeInt(sysfs.Brightness(ch.color), p.intensity(ch.color))
		}
	}

	log.Debug().
		Str("mode", state.FlashMode.String()).
		Str("color", colorHex(state.Color)).
		Int("on_ms", p.OnMS).
		Int("off_ms", p.OffMS).
		Bool("blink", p.Blink).
		Msg("LED programmed")

	return p
}

// programBlink loads one channel's waveform. The waveform does not start
// until the channel's blink endpoint is written.
func (pr *Programmer) programBlink(ch channel, p Program) {
	pr.writeInt(sysfs.StartIdx(ch.color), ch.startIdx)
	pr.writeString(sysfs.DutyPcts(ch.color), EncodeDutyCycle(p.intensity(ch.color)))
	pr.writeInt(sysfs.PauseLo(ch.color), p.OffMS)
	pr.writeInt(sysfs.PauseHi(ch.color), p.PauseHighMS)
	pr.writeInt(sysfs.RampStepMS(ch.color), p.StepMS)
}

func (pr *Programmer) writeInt(ep sysfs.Endpoint, v int) {
	_ = pr.store.WriteInt(ep, v)
}

func (pr *Programmer) writeString(ep sysfs.Endpoint, v string) {
	_ = pr.store.WriteString(ep, v)
}
