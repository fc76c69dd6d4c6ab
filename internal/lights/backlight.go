package lights

import (
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightsd/internal/sysfs"
)

// Luma converts an RGB color to perceived brightness in 0-255.
func Luma(color uint32) int {
	c := color & 0x00ffffff
	r := int(c>>16) & 0xff
	g := int(c>>8) & 0xff
	b := int(c) & 0xff
	return (77*r + 150*g + 29*b) >> 8
}

// ScaleBrightness maps a 0-255 value onto a panel with the given maximum.
func ScaleBrightness(brightness, max int) int {
	if max == DefaultMaxBrightness {
		return brightness
	}
	return brightness * max / DefaultMaxBrightness
}

// SetBacklight writes the panel brightness for state. Nothing is written
// when the panel has no brightness node. Unlike LED updates, a write error
// is returned.
func (c *Controller) SetBacklight(state LightState) error {
	max := c.MaxBrightness()
	luma := Luma(state.Color)
	brightness := ScaleBrightness(luma, max)

	c.mu.Lock()
	if brightness != luma {
		log.Debug().Int("from", luma).Int("to", brightness).Msg("Scaling backlight brightness")
	}

	if !c.store.Exists(sysfs.EndpointLCDBrightness) {
		c.mu.Unlock()
		return nil
	}
	if err := c.store.WriteInt(sysfs.EndpointLCDBrightness, brightness); err != nil {
		c.mu.Unlock()
		return err
	}
	c.backlight = brightness

	c.unlockAndEmit(Event{
		Light:      IDBacklight,
		State:      state,
		Brightness: brightness,
	})
	return nil
}
