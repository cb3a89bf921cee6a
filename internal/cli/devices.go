package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/oszuidwest/zwfm-capture/internal/devices"
)

func NewDevicesCmd(deps *Dependencies) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List cameras and microphones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			found := deps.Lister.List(cmd.Context(), deps.EncoderPath, deps.Platform)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(found)
			}
			printDevices(cmd.OutOrStdout(), "Cameras", found.Cameras)
			printDevices(cmd.OutOrStdout(), "Microphones", found.Microphones)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printDevices(w io.Writer, title string, list []devices.Device) {
	fmt.Fprintf(w, "%s:\n", title)
	if len(list) == 0 {
		fmt.Fprintln(w, "  (none found)")
		return
	}
	for _, d := range list {
		if d.Name == d.ID {
			fmt.Fprintf(w, "  %s\n", d.ID)
			continue
		}
		fmt.Fprintf(w, "  %s\t%s\n", d.ID, d.Name)
	}
}
