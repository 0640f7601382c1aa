package main

import (
	"fmt"
	"net/url"

	"github.com/otaviocarvalho/chatsync/internal/model"
	"github.com/spf13/cobra"
)

var markRead bool

func init() {
	messagesCmd.Flags().BoolVar(&markRead, "read", false, "mark the chat read after listing")
	rootCmd.AddCommand(messagesCmd)
}

var messagesCmd = &cobra.Command{
	Use:   "messages <chat-id>",
	Short: "Show a chat's messages in chronological order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newDaemonClient()
		if err != nil {
			return err
		}
		chatID := args[0]

		var resp struct {
			Messages []model.Message `json:"messages"`
		}
		if err := client.get("/v1/chats/"+url.PathEscape(chatID)+"/messages", &resp); err != nil {
			return err
		}

		if len(resp.Messages) == 0 {
			fmt.Println("No messages.")
		}
		for _, m := range resp.Messages {
			marker := ""
			switch m.Status {
			case model.StatusSending:
				marker = " [sending]"
			case model.StatusFailed:
				marker = fmt.Sprintf(" [failed: %s]", m.Error)
			}
			fmt.Printf("%s  %s: %s%s\n", formatTime(m.CreatedAt), m.SenderID, m.Content, marker)
		}

		if markRead {
			if err := client.post("/v1/chats/"+url.PathEscape(chatID)+"/read", nil, nil); err != nil {
				return err
			}
		}
		return nil
	},
}
