package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ferro-labs/gateway-core/events"
)

func newSinksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sinks",
		Short: "List registered notification sinks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			names := events.RegisteredSinks()
			if len(names) == 0 {
				_, _ = fmt.Fprintln(out, "No sinks registered.")
				return nil
			}
			_, _ = fmt.Fprintln(out, "Registered sinks:")
			for _, name := range names {
				_, _ = fmt.Fprintf(out, "  %s\n", name)
			}
			_, _ = fmt.Fprintf(out, "Event types: %v\n", events.Types())
			return nil
		},
	}
}
