// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"os"

	"beat/internal/audio"
	"beat/internal/tui"

	"github.com/spf13/cobra"
)

func newDevicesCommand() *cobra.Command {
	var pick bool
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List available audio devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			if pick {
				sel, ok, err := tui.PickDevice()
				if err != nil || !ok {
					return err
				}
				fmt.Printf("--source portaudio --device %d --sample-rate %.0f --channels %d  # %s\n",
					sel.DeviceID, sel.SampleRate, sel.Channels, sel.Name)
				return nil
			}

			if err := audio.Initialize(); err != nil {
				return err
			}
			defer audio.Terminate()
			return audio.ListDevices(os.Stdout)
		},
	}
	cmd.Flags().BoolVarP(&pick, "pick", "p", false, "Choose a device interactively and print the flags to use it")
	return cmd
}
