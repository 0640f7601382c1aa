package main

import (
	"fmt"
	"net/url"

	"github.com/otaviocarvalho/chatsync/internal/model"
	"github.com/spf13/cobra"
)

var searchChat string

func init() {
	searchCmd.Flags().StringVar(&searchChat, "chat", "", "restrict the search to one chat")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search messages and chat names",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newDaemonClient()
		if err != nil {
			return err
		}

		q := url.Values{"q": {args[0]}}
		if searchChat != "" {
			q.Set("chat", searchChat)
		}

		var resp struct {
			Messages []model.Message `json:"messages"`
			Chats    []model.Chat    `json:"chats"`
		}
		if err := client.get("/v1/search?"+q.Encode(), &resp); err != nil {
			return err
		}

		if len(resp.Chats) > 0 {
			fmt.Println("Chats:")
			for _, c := range resp.Chats {
				fmt.Printf("  %s  %s\n", c.ID, c.Name)
			}
		}
		if len(resp.Messages) > 0 {
			fmt.Println("Messages:")
			for _, m := range resp.Messages {
				fmt.Printf("  %s  [%s] %s: %s\n", formatTime(m.CreatedAt), m.ChatID, m.SenderID, m.Content)
			}
		}
		if len(resp.Chats) == 0 && len(resp.Messages) == 0 {
			fmt.Println("No results.")
		}
		return nil
	},
}
