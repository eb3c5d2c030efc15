package cli

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/walnutpair/previewd/internal/core/backend"
	"github.com/walnutpair/previewd/internal/dispatch"
)

func NewCaptureCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "capture",
		Short: "Capture a still from every camera in one backend call",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := backend.NewClient(deps.Config.Backend.BaseURL, deps.Log)
			res, err := client.CaptureAll(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Println(dispatch.FormatCaptureSummary(res))

			ids := make([]string, 0, len(res.SavedPaths))
			for id := range res.SavedPaths {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				fmt.Printf("  %s: %s\n", id, res.SavedPaths[id])
			}

			if res.TotalCameras > 0 && res.CapturedCount == 0 {
				fmt.Fprintln(os.Stderr, "capture failed on all cameras")
				os.Exit(1)
			}
			return nil
		},
	}
}
