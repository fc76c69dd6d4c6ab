// Package lights arbitrates indicator-light requests and programs the
// tri-color LED and panel backlight through sysfs control files.
package lights

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInvalidArgument is returned for unknown light names and nil devices.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrClosed is returned when a closed device is used.
	ErrClosed = errors.New("device closed")
)

// FlashMode selects how a light state is displayed.
type FlashMode int

const (
	FlashNone FlashMode = iota
	FlashTimed
	// FlashHardware is accepted from callers but displayed like FlashNone.
	FlashHardware
)

func (m FlashMode) String() string {
	switch m {
	case FlashNone:
		return "none"
	case FlashTimed:
		return "timed"
	case FlashHardware:
		return "hardware"
	default:
		return fmt.Sprintf("FlashMode(%d)", int(m))
	}
}

// ParseFlashMode parses "none", "timed" or "hardware". Empty means none.
func ParseFlashMode(s string) (FlashMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return FlashNone, nil
	case "timed":
		return FlashTimed, nil
	case "hardware":
		return FlashHardware, nil
	}
	return FlashNone, fmt.Errorf("%w: flash mode %q", ErrInvalidArgument, s)
}

// LightState is one requested light configuration. Color is ARGB; the alpha
// byte is ignored. FlashOnMS and FlashOffMS only matter for FlashTimed.
type LightState struct {
	Color      uint32    `json:"color"`
	FlashMode  FlashMode `json:"flash_mode"`
	FlashOnMS  int       `json:"flash_on_ms"`
	FlashOffMS int       `json:"flash_off_ms"`
}

// RGB returns the color with alpha masked out.
func (s LightState) RGB() uint32 {
	return s.Color & 0x00ffffff
}

// Lit reports whether the state shows any color.
func (s LightState) Lit() bool {
	return s.RGB() != 0
}

// Channels splits the color into red, green and blue intensities.
func (s LightState) Channels() (red, green, blue int) {
	c := s.RGB()
	return int(c>>16) & 0xff, int(c>>8) & 0xff, int(c) & 0xff
}

// ParseColor accepts "#RRGGBB", "#AARRGGBB", "0x"-prefixed hex, or a decimal
// number.
func ParseColor(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	var (
		v   uint64
		err error
	)
	switch {
	case strings.HasPrefix(s, "#"):
		hex := s[1:]
		if len(hex) != 6 && len(hex) != 8 {
			return 0, fmt.Errorf("%w: color %q", ErrInvalidArgument, s)
		}
		v, err = strconv.ParseUint(hex, 16, 32)
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		v, err = strconv.ParseUint(s[2:], 16, 32)
	default:
		v, err = strconv.ParseUint(s, 10, 32)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: color %q", ErrInvalidArgument, s)
	}
	return uint32(v), nil
}
