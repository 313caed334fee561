// Command gorelay runs the billing, generation and analytics relay.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serve := serveCmd()

	root := &cobra.Command{
		Use:           "gorelay",
		Short:         "Authenticated relay to Stripe, Gemini and the analytics API",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		// Running without a subcommand serves.
		RunE: serve.RunE,
	}

	root.AddCommand(serve)
	root.AddCommand(healthcheckCmd())
	root.AddCommand(configCmd())

	return root
}
