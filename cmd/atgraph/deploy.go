package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rakunlabs/atgraph/internal/control"
)

// newDeployCmd submits a Pipeline manifest (or bare composition) to a
// running control plane.
func newDeployCmd() *cobra.Command {
	var contextName, name, namespace string
	cmd := &cobra.Command{
		Use:   "deploy <manifest-file>",
		Short: "deploy a pipeline manifest to a control plane",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read manifest %s: %w", args[0], err)
			}

			client, err := resolveClient(contextName)
			if err != nil {
				return err
			}

			if name == "" {
				base := filepath.Base(args[0])
				name = strings.TrimSuffix(base, filepath.Ext(base))
			}

			var p control.Pipeline
			if err := client.DeployPipeline(context.Background(), name, namespace, manifest, &p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deployed %s/%s (id %s)\n", p.Namespace, p.Name, p.ID)
			return nil
		},
	}
	addContextFlag(cmd, &contextName)
	cmd.Flags().StringVar(&name, "name", "", "pipeline name, used for bare-composition manifests (default: the manifest file's base name without extension)")
	cmd.Flags().StringVar(&namespace, "namespace", "default", "pipeline namespace, used for bare-composition manifests")
	return cmd
}
