// Package sysfs provides access to the kernel control files that drive the
// panel backlight and the tri-color indicator LED.
package sysfs

import (
	"fmt"
	"path/filepath"
)

// Endpoint is the logical name of a hardware control file.
type Endpoint string

// Color identifies one channel of the tri-color LED.
type Color string

const (
	Red   Color = "red"
	Green Color = "green"
	Blue  Color = "blue"
)

// Colors lists the LED channels in programming order.
var Colors = []Color{Red, Green, Blue}

const (
	EndpointLCDBrightness    Endpoint = "lcd.brightness"
	EndpointLCDMaxBrightness Endpoint = "lcd.max_brightness"
)

// Per-channel control file names under /sys/class/leds/<color>/.
const (
	fileBrightness = "brightness"
	fileDutyPcts   = "duty_pcts"
	fileStartIdx   = "start_idx"
	filePauseLo    = "pause_lo"
	filePauseHi    = "pause_hi"
	fileRampStepMS = "ramp_step_ms"
	fileBlink      = "blink"
)

var channelFiles = []string{
	fileBrightness, fileDutyPcts, fileStartIdx, filePauseLo, filePauseHi, fileRampStepMS, fileBlink,
}

func channelEndpoint(c Color, file string) Endpoint {
	return Endpoint(fmt.Sprintf("%s.%s", c, file))
}

// Brightness is the static intensity endpoint of a channel.
func Brightness(c Color) Endpoint { return channelEndpoint(c, fileBrightness) }

// DutyPcts is the comma separated duty-cycle list of a channel.
func DutyPcts(c Color) Endpoint { return channelEndpoint(c, fileDutyPcts) }

// StartIdx is the offset of the channel's steps in the shared LUT.
func StartIdx(c Color) Endpoint { return channelEndpoint(c, fileStartIdx) }

// PauseLo is the hold time at the bottom of the ramp.
func PauseLo(c Color) Endpoint { return channelEndpoint(c, filePauseLo) }

// PauseHi is the hold time at the top of the ramp.
func PauseHi(c Color) Endpoint { return channelEndpoint(c, filePauseHi) }

// RampStepMS is the duration of a single ramp step.
func RampStepMS(c Color) Endpoint { return channelEndpoint(c, fileRampStepMS) }

// Blink starts the waveform when written with a non-zero intensity.
func Blink(c Color) Endpoint { return channelEndpoint(c, fileBlink) }

// Endpoints returns every endpoint known to the daemon.
func Endpoints() []Endpoint {
	eps := []Endpoint{EndpointLCDBrightness, EndpointLCDMaxBrightness}
	for _, c := range Colors {
		for _, f := range channelFiles {
			eps = append(eps, channelEndpoint(c, f))
		}
	}
	return eps
}

// DefaultPaths maps every endpoint to its location below root
// (normally /sys/class).
func DefaultPaths(root string) map[Endpoint]string {
	paths := map[Endpoint]string{
		EndpointLCDBrightness:    filepath.Join(root, "backlight", "panel0-backlight", "brightness"),
		EndpointLCDMaxBrightness: filepath.Join(root, "backlight", "panel0-backlight", "max_brightness"),
	}
	for _, c := range Colors {
		for _, f := range channelFiles {
			paths[channelEndpoint(c, f)] = filepath.Join(root, "leds", string(c), f)
		}
	}
	return paths
}

// ResolvePaths merges overrides (keyed by endpoint name) on top of the
// defaults for root. Unknown endpoint names are rejected.
func ResolvePaths(root string, overrides map[string]string) (map[Endpoint]string, error) {
	paths := DefaultPaths(root)
	for name, path := range overrides {
		ep := Endpoint(name)
		if _, ok := paths[ep]; !ok {
			return nil, fmt.Errorf("unknown sysfs endpoint %q", name)
		}
		paths[ep] = path
	}
	return paths, nil
}
