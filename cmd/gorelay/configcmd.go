package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mihaimyh/gorelay/pkg/config"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the relay configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate the environment and print the configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			values := cfg.Redacted()
			keys := make([]string, 0, len(values))
			for k := range values {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			out := cmd.OutOrStdout()
			for _, k := range keys {
				fmt.Fprintf(out, "%s=%s\n", k, values[k])
			}
			return nil
		},
	})

	return cmd
}
