package main

import (
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/lightsd/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		log.Info().Str("config", configPath).Msg("Starting lightsd")

		application, err := app.New(cfg)
		if err != nil {
			return err
		}

		// Create context that cancels on shutdown signal
		ctx := app.SignalContext()

		if err := application.Start(ctx); err != nil {
			application.Stop()
			return err
		}
		notify(daemon.SdNotifyReady)

		application.Wait()

		notify(daemon.SdNotifyStopping)
		return application.Stop()
	},
}

// notify reports state to systemd when running under a notify unit.
func notify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn().Err(err).Str("state", state).Msg("Failed to notify systemd")
		return
	}
	if sent {
		log.Debug().Str("state", state).Msg("Notified systemd")
	}
}
