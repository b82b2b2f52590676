package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rakunlabs/atgraph/internal/adapter"
	"github.com/rakunlabs/atgraph/internal/config"
	"github.com/rakunlabs/atgraph/internal/control"
	"github.com/rakunlabs/atgraph/internal/credential"
	"github.com/rakunlabs/atgraph/internal/graph"
	"github.com/rakunlabs/atgraph/internal/pipeline"
	"github.com/rakunlabs/atgraph/internal/server"
)

// newRunCmd runs a single composition's chat-completions ingress; the
// control-plane API is mounted only when control_plane.enabled is set.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "run a pipeline composition as a standalone chat-completions server",
		RunE: func(cmd *cobra.Command, args []string) error {
			bootstrap(runServe(false))
			return nil
		},
	}
}

// newServeCmd additionally exposes the control-plane REST API when
// --control-plane is set.
func newServeCmd() *cobra.Command {
	controlPlane := false
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "serve a pipeline composition, optionally as a control plane",
		RunE: func(cmd *cobra.Command, args []string) error {
			bootstrap(runServe(controlPlane))
			return nil
		},
	}
	cmd.Flags().BoolVar(&controlPlane, "control-plane", false, "also expose the cluster-state REST API")
	return cmd
}

func runServe(controlPlane bool) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		config.Service = name + "/" + version

		cfg, err := config.Load(ctx, name)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		if cfg.Composition == "" {
			return fmt.Errorf("composition path is not configured")
		}

		source, err := os.ReadFile(cfg.Composition)
		if err != nil {
			return fmt.Errorf("read composition %s: %w", cfg.Composition, err)
		}

		comp, verrs := graph.Parse(source, cfg.Composition)
		if len(verrs) > 0 {
			return fmt.Errorf("composition validation failed: %v", verrs)
		}

		secrets, err := credential.Load(ctx, comp.Secrets)
		if err != nil {
			return fmt.Errorf("resolve secrets: %w", err)
		}

		chat, err := adapter.NewChatCompletion(comp, secrets)
		if err != nil {
			return fmt.Errorf("build chat adapter: %w", err)
		}
		ws := adapter.NewWebSocket()

		proc := pipeline.New(comp, secrets, chat, ws)

		var cp *control.Store
		if controlPlane || cfg.ControlPlane.Enabled {
			cp = control.New().WithHeartbeatThreshold(cfg.ControlPlane.HeartbeatThreshold)
			if cfg.ControlPlane.Alan != nil {
				cp, err = cp.WithCluster(ctx, cfg.ControlPlane.Alan)
				if err != nil {
					return fmt.Errorf("enable control-plane clustering: %w", err)
				}
			}
		}

		srv, err := server.New(ctx, cfg.Server, cfg.Gateway, proc, cp)
		if err != nil {
			return fmt.Errorf("build server: %w", err)
		}

		return srv.Start(ctx)
	}
}
