package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rakunlabs/atgraph/internal/cliclient"
	"github.com/rakunlabs/atgraph/internal/cliconfig"
)

// addContextFlag registers the --context override flag shared by every
// command that talks to a control plane.
func addContextFlag(cmd *cobra.Command, contextName *string) {
	cmd.Flags().StringVar(contextName, "context", "", "context to use instead of the current one")
}

// resolveClient builds a cliclient.Client from the named context, or the
// current context if name is empty.
func resolveClient(name string) (*cliclient.Client, error) {
	path, err := cliconfig.Path()
	if err != nil {
		return nil, err
	}
	f, err := cliconfig.Load(path)
	if err != nil {
		return nil, err
	}

	var ctx cliconfig.Context
	if name != "" {
		ctx, err = f.Find(name)
	} else {
		ctx, err = f.CurrentContext()
	}
	if err != nil {
		return nil, fmt.Errorf("resolve context: %w", err)
	}

	return cliclient.New(ctx.Address, ctx.Token)
}
