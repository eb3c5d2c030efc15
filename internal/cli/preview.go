package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/walnutpair/previewd/internal/core/backend"
)

func NewStartCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "start <camera_unique_id>",
		Short: "Ask the backend to start a preview stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := backend.NewClient(deps.Config.Backend.BaseURL, deps.Log)
			res, err := client.StartPreview(cmd.Context(), args[0],
				deps.Config.Stream.Width, deps.Config.Stream.Height)
			if err != nil {
				return err
			}
			fmt.Printf("preview started for %s (index %d)\n", res.CameraUniqueID, res.CameraIndex)
			return nil
		},
	}
}

func NewStopCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <camera_unique_id>",
		Short: "Ask the backend to stop a preview stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := backend.NewClient(deps.Config.Backend.BaseURL, deps.Log)
			res, err := client.StopPreview(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("preview stopped for %s\n", res.CameraUniqueID)
			return nil
		},
	}
}
