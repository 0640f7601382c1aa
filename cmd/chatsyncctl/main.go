package main

import (
	"os"

	"github.com/spf13/cobra"
)

var profileFlag string

var rootCmd = &cobra.Command{
	Use:   "chatsyncctl",
	Short: "Control a running chatsync daemon",
	Long:  "Command-line interface for chatsyncd.\nList chats, read and send messages, and inspect sync status over the daemon socket.",
}

func main() {
	rootCmd.PersistentFlags().StringVar(&profileFlag, "profile", "", "profile name (overrides config default)")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
