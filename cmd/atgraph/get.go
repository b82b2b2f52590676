package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rakunlabs/atgraph/internal/control"
)

// newGetCmd lists (or filters to one) deployed pipeline.
func newGetCmd() *cobra.Command {
	var contextName, namespace string
	var all bool
	cmd := &cobra.Command{
		Use:   "get [name]",
		Short: "list pipelines deployed to a control plane",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := resolveClient(contextName)
			if err != nil {
				return err
			}

			var pipelines []control.Pipeline
			if err := client.ListPipelines(context.Background(), namespace, all, &pipelines); err != nil {
				return err
			}

			if len(args) == 1 {
				found := false
				for _, p := range pipelines {
					if p.Name == args[0] {
						printPipeline(cmd, p)
						found = true
					}
				}
				if !found {
					return &notFoundError{msg: fmt.Sprintf("pipeline %q not found", args[0])}
				}
				return nil
			}

			for _, p := range pipelines {
				printPipeline(cmd, p)
			}
			return nil
		},
	}
	addContextFlag(cmd, &contextName)
	cmd.Flags().StringVar(&namespace, "namespace", "", "restrict to one namespace")
	cmd.Flags().BoolVar(&all, "all-namespaces", false, "list across all namespaces")
	return cmd
}

func printPipeline(cmd *cobra.Command, p control.Pipeline) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s/%s\t%s\t%d/%d\n", p.Namespace, p.Name, p.Status, p.ReadyReplicas, p.DesiredReplicas)
}
