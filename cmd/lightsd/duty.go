package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dokzlo13/lightsd/internal/lights"
)

var dutyCmd = &cobra.Command{
	Use:   "duty <brightness>",
	Short: "Print the blink duty-cycle ramp for a channel brightness",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := strconv.Atoi(args[0])
		if err != nil || b < 0 || b > lights.DefaultMaxBrightness {
			return fmt.Errorf("brightness must be an integer within 0-%d", lights.DefaultMaxBrightness)
		}
		fmt.Fprintln(cmd.OutOrStdout(), lights.EncodeDutyCycle(b))
		return nil
	},
}
