package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teamauresta/agent-harbor/internal/cli"
	"github.com/teamauresta/agent-harbor/internal/cli/admin"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "harbord",
		Short: "Agent Harbor daemon and CLI",
		Long:  "Agent Harbor daemon for running the webhook server and managing per-client knowledge bases",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.KBCmd())
	rootCmd.AddCommand(admin.SyncCmd())
	rootCmd.AddCommand(admin.IngestCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
