package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/lightsd/internal/app"
	"github.com/dokzlo13/lightsd/internal/lights"
)

var setFlags struct {
	color string
	flash string
	onMS  int
	offMS int
}

var setCmd = &cobra.Command{
	Use:   "set <light>",
	Short: "Apply one light state directly to the hardware",
	Long: `Apply one light state and exit. Lights are backlight, battery,
notifications and attention. Other slots start empty, so use the HTTP API
while the daemon is running.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		id, err := lights.ParseID(args[0])
		if err != nil {
			return err
		}
		color, err := lights.ParseColor(setFlags.color)
		if err != nil {
			return err
		}
		mode, err := lights.ParseFlashMode(setFlags.flash)
		if err != nil {
			return err
		}

		store, err := app.NewStore(cfg)
		if err != nil {
			return err
		}
		dev, err := lights.NewController(store).Open(id)
		if err != nil {
			return err
		}
		defer dev.Close()

		state := lights.LightState{
			Color:      color,
			FlashMode:  mode,
			FlashOnMS:  setFlags.onMS,
			FlashOffMS: setFlags.offMS,
		}
		if err := dev.SetLight(state); err != nil {
			return err
		}

		log.Info().Str("light", id.String()).Str("color", setFlags.color).Str("flash", mode.String()).Msg("Light set")
		return nil
	},
}

func init() {
	setCmd.Flags().StringVar(&setFlags.color, "color", "0", "Color as #RRGGBB, #AARRGGBB, 0x hex or decimal")
	setCmd.Flags().StringVar(&setFlags.flash, "flash", "none", "Flash mode: none, timed or hardware")
	setCmd.Flags().IntVar(&setFlags.onMS, "on-ms", 0, "Timed flash on duration in milliseconds")
	setCmd.Flags().IntVar(&setFlags.offMS, "off-ms", 0, "Timed flash off duration in milliseconds")
}
