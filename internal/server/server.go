// Package server implements the chat-completions ingress and, when running
// as a control plane, the cluster-state REST API, using ada's route
// grouping and middleware stack.
package server

import (
	"context"
	"log/slog"
	"net"

	"github.com/rakunlabs/ada"
	mcors "github.com/rakunlabs/ada/middleware/cors"
	mforwardauth "github.com/rakunlabs/ada/middleware/forwardauth"
	mlog "github.com/rakunlabs/ada/middleware/log"
	mrecover "github.com/rakunlabs/ada/middleware/recover"
	mrequestid "github.com/rakunlabs/ada/middleware/requestid"
	mserver "github.com/rakunlabs/ada/middleware/server"
	mtelemetry "github.com/rakunlabs/ada/middleware/telemetry"

	"github.com/rakunlabs/atgraph/internal/config"
	"github.com/rakunlabs/atgraph/internal/control"
	"github.com/rakunlabs/atgraph/internal/pipeline"
)

type Server struct {
	config config.Server

	server *ada.Server

	processor *pipeline.Processor
	control   *control.Store // nil unless running as a control plane

	authTokens []config.AuthTokenConfig
}

// New wires up the chat-completions ingress and, when cp is non-nil, the
// control-plane REST API.
func New(ctx context.Context, cfg config.Server, gatewayCfg config.Gateway, proc *pipeline.Processor, cp *control.Store) (*Server, error) {
	mux := ada.New()
	mux.Use(
		mrecover.Middleware(),
		mserver.Middleware(config.Service),
		mcors.Middleware(),
		mrequestid.Middleware(),
		mlog.Middleware(),
		mtelemetry.Middleware(),
	)

	s := &Server{
		config:     cfg,
		server:     mux,
		processor:  proc,
		control:    cp,
		authTokens: gatewayCfg.AuthTokens,
	}

	if cfg.BasePath != "" {
		slog.Info("configuring server with base path", "base_path", cfg.BasePath)
	}

	baseGroup := mux.Group(cfg.BasePath)
	baseGroup.GET("/health", s.Health)

	if cfg.ForwardAuth != nil {
		slog.Info("forward auth enabled", "url", cfg.ForwardAuth.Address)
		baseGroup.Use(mforwardauth.Middleware(mforwardauth.WithConfig(*cfg.ForwardAuth)))
	}

	ingressGroup := baseGroup.Group("")
	if len(s.authTokens) > 0 {
		ingressGroup.Use(s.bearerAuthMiddleware())
	}
	ingressGroup.POST("/v1/chat/completions", s.ChatCompletions)

	if cp != nil {
		cpGroup := baseGroup.Group("/v1")
		cpGroup.Use(s.adminAuthMiddleware())
		cpGroup.GET("/status", s.StatusAPI)
		cpGroup.GET("/namespaces", s.NamespacesAPI)
		cpGroup.GET("/pipelines", s.ListPipelinesAPI)
		cpGroup.POST("/pipelines", s.DeployPipelineAPI)
		cpGroup.DELETE("/pipelines/*", s.DeletePipelineAPI)
		cpGroup.PATCH("/pipelines/*", s.ScalePipelineAPI)
		cpGroup.GET("/nodes", s.ListNodesAPI)
		cpGroup.POST("/nodes", s.RegisterNodeAPI)
		cpGroup.DELETE("/nodes/*", s.UnregisterNodeAPI)
		cpGroup.POST("/nodes/*/heartbeat", s.HeartbeatAPI)

		go cp.RunHeartbeatReaper(ctx)
	}

	return s, nil
}

func (s *Server) Start(ctx context.Context) error {
	return s.server.StartWithContext(ctx, net.JoinHostPort(s.config.Host, s.config.Port))
}
