// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package assistant provides the conversational assistant service for Quay.
//
// This package contains the main Service type that assembles all
// components: the routing graph and its stages, the intent classifier,
// the LLM provider clients, the tool collaborators (search, crawler,
// file store, code sandbox), HTTP routing, and observability.
//
// # Usage
//
//	cfg := assistant.Config{Port: 12310, LLMBackend: "ollama"}
//	svc, err := assistant.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/quaymarket/quay/services/assistant/classify"
	"github.com/quaymarket/quay/services/assistant/graph"
	"github.com/quaymarket/quay/services/assistant/observability"
	"github.com/quaymarket/quay/services/assistant/routes"
	"github.com/quaymarket/quay/services/assistant/stages"
	"github.com/quaymarket/quay/services/assistant/tools"
	"github.com/quaymarket/quay/services/llm"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the assistant service.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and should
// only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// All fields are read-only after New() returns.
type service struct {
	config        Config
	router        *gin.Engine
	llmClient     llm.Client
	graph         *graph.RoutingGraph
	tracerCleanup func(context.Context)
}

// New creates the assistant Service with the given configuration.
//
// # Description
//
// New initializes every component and validates the routing graph before
// the server accepts a single connection:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing (when an endpoint is configured)
//  3. Initializes Prometheus metrics
//  4. Creates the LLM client for the configured backend
//  5. Builds the tool collaborators and the stage dependency set
//  6. Constructs and validates the routing graph
//  7. Sets up HTTP routes
//
// A graph validation failure is fatal here, never at request time.
//
// # Inputs
//
//   - cfg: service configuration. Zero values use defaults.
//
// # Outputs
//
//   - Service: ready-to-run assistant service
//   - error: non-nil if any component fails to initialize
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	if s.config.OTelEndpoint != "" {
		cleanup, err := s.initTracer()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	if s.config.EnableMetrics {
		observability.InitMetrics()
		slog.Info("initialized Prometheus metrics")
	}

	if err := s.initLLMClient(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	deps, err := s.buildDeps()
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to build stage dependencies: %w", err)
	}

	s.graph, err = stages.NewRoutingGraph(deps)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("routing graph validation failed: %w", err)
	}

	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("starting assistant server",
		"port", s.config.Port,
		"llm_backend", s.config.LLMBackend,
		"sandbox_root", s.config.SandboxRoot)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// initTracer initializes OpenTelemetry distributed tracing.
//
// Uses an insecure gRPC connection, appropriate for internal networks.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("assistant-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initLLMClient creates the provider client for the configured backend.
func (s *service) initLLMClient() error {
	var err error

	switch s.config.LLMBackend {
	case "openai":
		s.llmClient, err = llm.NewOpenAIClient()
		slog.Info("using OpenAI LLM backend")
	case "ollama":
		s.llmClient, err = llm.NewOllamaClient()
		slog.Info("using Ollama LLM backend")
	default:
		slog.Warn("unknown LLM backend, defaulting to ollama",
			"backend", s.config.LLMBackend)
		s.llmClient, err = llm.NewOllamaClient()
	}

	return err
}

// buildDeps assembles the tool collaborators shared by every session.
//
// The web search client is optional: without its environment variables the
// service still starts and the search branch reports a collaborator
// failure per turn instead.
func (s *service) buildDeps() (*stages.Deps, error) {
	files, err := tools.NewLocalFileStore(s.config.SandboxRoot)
	if err != nil {
		return nil, fmt.Errorf("creating file sandbox at %s: %w", s.config.SandboxRoot, err)
	}

	deps := &stages.Deps{
		LLM:        s.llmClient,
		Classifier: classify.New(s.llmClient),
		Crawler:    tools.NewCrawler(tools.NewHTTPFetcher()),
		Files:      files,
		Sandbox:    tools.NewProcessSandbox(s.config.SandboxInterpreter),
	}

	search, err := tools.NewWebSearchClient()
	if err != nil {
		slog.Warn("web search disabled", "error", err)
	} else {
		deps.Search = search
	}

	return deps, nil
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	s.router = gin.Default()
	if s.tracerCleanup != nil {
		s.router.Use(otelgin.Middleware("assistant-service"))
	}

	routes.SetupRoutes(s.router, s.graph, s.config.AuthToken)
}

// cleanup releases resources held by the service.
func (s *service) cleanup() {
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
