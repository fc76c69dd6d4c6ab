package lights

import (
	"strconv"
	"strings"
)

const (
	// RampSize is the number of duty-cycle steps in one ramp.
	RampSize = 8

	// RampStepDuration is the default duration of one ramp step in ms.
	RampStepDuration = 50

	// DefaultMaxBrightness is the full-scale brightness of LEDs and the panel.
	DefaultMaxBrightness = 255
)

// brightnessRamp holds the ramp breakpoints in percent.
var brightnessRamp = [RampSize]int{0, 12, 25, 37, 50, 72, 85, 100}

// DutyCycle scales the ramp to a 0-255 brightness.
func DutyCycle(brightness int) [RampSize]int {
	var out [RampSize]int
	for i, pct := range brightnessRamp {
		out[i] = pct * brightness / DefaultMaxBrightness
	}
	return out
}

// EncodeDutyCycle renders DutyCycle as the comma separated list expected by
// the duty_pcts control file.
func EncodeDutyCycle(brightness int) string {
	steps := DutyCycle(brightness)
	var b strings.Builder
	for i, v := range steps {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(v))
	}
	return b.String()
}
