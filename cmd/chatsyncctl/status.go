package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and sync status",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newDaemonClient()
		if err != nil {
			return err
		}

		var resp struct {
			Profile         string `json:"profile"`
			UptimeSecs      int64  `json:"uptime_secs"`
			LastReconcileAt int64  `json:"last_reconcile_at"`
			SyncFailed      bool   `json:"sync_failed"`
		}
		if err := client.get("/v1/status", &resp); err != nil {
			return err
		}

		fmt.Printf("Profile:        %s\n", resp.Profile)
		fmt.Printf("Uptime:         %ds\n", resp.UptimeSecs)
		fmt.Printf("Last reconcile: %s\n", formatTime(resp.LastReconcileAt))
		if resp.SyncFailed {
			fmt.Println("Sync:           FAILED (serving cached data)")
		} else {
			fmt.Println("Sync:           ok")
		}
		return nil
	},
}
