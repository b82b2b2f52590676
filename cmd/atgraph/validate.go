package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rakunlabs/atgraph/internal/graph"
)

// newValidateCmd parses a composition file and reports diagnostics without
// starting a server.
func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <composition-file>",
		Short: "validate a pipeline composition file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read composition %s: %w", args[0], err)
			}

			_, verrs := graph.Parse(source, args[0])
			if len(verrs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "composition is valid")
				return nil
			}

			for _, v := range verrs {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s: %s\n", v.Path, v.Field, v.Reason)
			}
			return fmt.Errorf("composition has %d validation error(s)", len(verrs))
		},
	}
}
