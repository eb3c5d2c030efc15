package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/walnutpair/previewd/internal/core/backend"
)

func NewDevicesCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List cameras known to the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := backend.NewClient(deps.Config.Backend.BaseURL, deps.Log)
			cameras, err := client.ListCameras(cmd.Context())
			if err != nil {
				return err
			}

			if len(cameras) == 0 {
				fmt.Println("no cameras found")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "UNIQUE ID\tINDEX\tNAME")
			for _, cam := range cameras {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", cam.UniqueID, cam.Index, cam.Name)
			}
			return tw.Flush()
		},
	}
}
