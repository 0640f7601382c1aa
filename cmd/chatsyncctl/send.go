package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sendCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send <chat-id> <text>...",
	Short: "Queue a message for sending",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newDaemonClient()
		if err != nil {
			return err
		}
		chatID := args[0]
		content := strings.Join(args[1:], " ")

		var resp struct {
			ClientID string `json:"client_id"`
		}
		body := map[string]string{"content": content}
		if err := client.post("/v1/chats/"+url.PathEscape(chatID)+"/messages", body, &resp); err != nil {
			return err
		}
		fmt.Printf("queued %s\n", resp.ClientID)
		return nil
	},
}
