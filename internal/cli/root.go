// Package cli defines the Cobra commands for nudgeeqctl, a terminal
// client for sending help requests and answering incoming ones.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/heiloMeow/nudgeeq/internal/inbox"
)

var (
	apiBase string
	roleID  string
	version = "dev" // set via ldflags at build time
)

var rootCmd = &cobra.Command{
	Use:   "nudgeeqctl",
	Short: "Seat-to-seat help requests from the terminal",
	Long: `nudgeeqctl talks to a NudgeeQ server as one seated role.
Send a request to another role, page through your inbox and outbox,
or watch for incoming requests and answer them live.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newClient builds the REST client for the configured server.
func newClient() *inbox.Client {
	return inbox.NewClient(apiBase)
}

// requireRole rejects commands that can't run without --role.
func requireRole() error {
	if roleID == "" {
		return fmt.Errorf("--role is required (your role id)")
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiBase, "api", "http://127.0.0.1:8000/api", "API base URL")
	rootCmd.PersistentFlags().StringVar(&roleID, "role", "", "Acting role id")

	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(sentCmd)
	rootCmd.AddCommand(receivedCmd)
	rootCmd.AddCommand(watchCmd)
}
