package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rakunlabs/atgraph/internal/control"
)

// newScaleCmd changes a pipeline's desired replica count.
func newScaleCmd() *cobra.Command {
	var contextName, namespace string
	cmd := &cobra.Command{
		Use:   "scale <name> <replicas>",
		Short: "change a pipeline's desired replica count",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			replicas, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid replica count %q: %w", args[1], err)
			}

			client, err := resolveClient(contextName)
			if err != nil {
				return err
			}

			var p control.Pipeline
			if err := client.ScalePipeline(context.Background(), namespace, args[0], replicas, &p); err != nil {
				return &notFoundError{msg: err.Error()}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scaled %s/%s to %d (ready %d)\n", p.Namespace, p.Name, p.DesiredReplicas, p.ReadyReplicas)
			return nil
		},
	}
	addContextFlag(cmd, &contextName)
	cmd.Flags().StringVar(&namespace, "namespace", "default", "pipeline namespace")
	return cmd
}
