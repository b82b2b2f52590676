package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// newDeleteCmd removes a deployed pipeline. The argument is the pipeline
// name; the namespace comes from --namespace ("default" when omitted).
func newDeleteCmd() *cobra.Command {
	var contextName, namespace string
	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "delete a deployed pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := resolveClient(contextName)
			if err != nil {
				return err
			}
			if err := client.DeletePipeline(context.Background(), namespace, args[0], nil); err != nil {
				return &notFoundError{msg: err.Error()}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s/%s\n", namespace, args[0])
			return nil
		},
	}
	addContextFlag(cmd, &contextName)
	cmd.Flags().StringVar(&namespace, "namespace", "default", "pipeline namespace")
	return cmd
}
