package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rakunlabs/atgraph/internal/control"
)

// newStatusCmd prints a cluster health summary.
func newStatusCmd() *cobra.Command {
	var contextName string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "print control-plane cluster status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := resolveClient(contextName)
			if err != nil {
				return err
			}

			var st control.Status
			if err := client.Status(context.Background(), &st); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "nodes:     %d/%d ready\n", st.NodesReady, st.NodesTotal)
			fmt.Fprintf(cmd.OutOrStdout(), "pipelines: %d/%d ready\n", st.PipelinesReady, st.PipelinesTotal)
			fmt.Fprintf(cmd.OutOrStdout(), "namespaces: %d\n", st.NamespaceCount)
			return nil
		},
	}
	addContextFlag(cmd, &contextName)
	return cmd
}
