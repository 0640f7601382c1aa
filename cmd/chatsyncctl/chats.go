package main

import (
	"fmt"

	"github.com/otaviocarvalho/chatsync/internal/model"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(chatsCmd)
}

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List chats, most recently active first",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newDaemonClient()
		if err != nil {
			return err
		}

		var resp struct {
			Chats      []model.Chat `json:"chats"`
			SyncFailed bool         `json:"sync_failed"`
		}
		if err := client.get("/v1/chats", &resp); err != nil {
			return err
		}

		if resp.SyncFailed {
			fmt.Println("warning: last sync failed, showing cached data")
		}
		if len(resp.Chats) == 0 {
			fmt.Println("No chats.")
			return nil
		}
		for _, c := range resp.Chats {
			name := c.Name
			if name == "" {
				name = c.ID
			}
			unread := ""
			if c.UnreadCount > 0 {
				unread = fmt.Sprintf(" (%d unread)", c.UnreadCount)
			}
			preview := ""
			if c.LastMessage != nil {
				preview = c.LastMessage.Content
				if len(preview) > 60 {
					preview = preview[:57] + "..."
				}
			}
			fmt.Printf("%-24s  %s  %s%s\n", name, formatTime(c.Recency()), preview, unread)
		}
		return nil
	},
}
