// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/kbchat/pkg/logging"
	"github.com/AleutianAI/kbchat/services/gateway/config"
	"github.com/AleutianAI/kbchat/services/gateway/handlers"
	"github.com/AleutianAI/kbchat/services/gateway/observability"
	"github.com/AleutianAI/kbchat/services/gateway/orchestrator"
	"github.com/AleutianAI/kbchat/services/gateway/provider"
	"github.com/AleutianAI/kbchat/services/gateway/resolver"
	"github.com/AleutianAI/kbchat/services/gateway/routes"
	"github.com/AleutianAI/kbchat/services/gateway/store"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const serviceName = "kb-chat-gateway"

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "aleutian-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// newResolver builds the citation resolver from config. A failed GCS
// client setup falls back to passthrough so the gateway still serves
// answers, just with raw storage references.
func newResolver(ctx context.Context, cfg config.CitationsConfig) resolver.Resolver {
	if cfg.Mode != config.ResolverModeGCS {
		slog.Info("citation resolution in passthrough mode")
		return resolver.Passthrough{}
	}

	gcs, err := resolver.NewGCSResolver(ctx, cfg.CredentialsFile, cfg.URLExpiry)
	if err != nil {
		slog.Error("GCS resolver setup failed, falling back to passthrough", "error", err)
		return resolver.Passthrough{}
	}
	slog.Info("citation resolution via GCS signed URLs", "expiry", cfg.URLExpiry.String())
	return gcs
}

// newPreparer builds the query preparation strategy from config.
func newPreparer(cfg config.QueryConfig) orchestrator.QueryPreparer {
	if cfg.Mode != config.QueryModeSummarize {
		return orchestrator.PassthroughPreparer{}
	}

	preparer, err := orchestrator.NewSummarizingPreparer(os.Getenv("OPENAI_API_KEY"), cfg.Model)
	if err != nil {
		slog.Error("query summarizer setup failed, falling back to passthrough", "error", err)
		return orchestrator.PassthroughPreparer{}
	}
	return preparer
}

func main() {
	cfg, err := config.Load(os.Getenv("GATEWAY_CONFIG"))
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, closeLogs := logging.Setup(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("LOG_LEVEL")),
		Service: serviceName,
		JSON:    true,
		LogDir:  os.Getenv("LOG_DIR"),
	})
	defer closeLogs()
	slog.SetDefault(logger)

	observability.InitMetrics()

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res := newResolver(ctx, cfg.Citations)
	defer func() {
		if closer, ok := res.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	}()

	history := store.NewInMemoryHistory(cfg.Sessions.MaxHistoryTurns)
	continuations := store.NewInMemoryContinuations()
	streamer := provider.NewHTTPClient(cfg.Provider.BaseURL, nil)

	runner := orchestrator.New(history, continuations, streamer, res,
		orchestrator.WithTurnTimeout(cfg.Provider.TurnTimeout),
		orchestrator.WithQueryPreparer(newPreparer(cfg.Query)),
	)

	router := gin.Default()
	router.Use(otelgin.Middleware(serviceName))
	routes.SetupRoutes(router, runner, handlers.NewConnRegistry(),
		history, continuations,
		cfg.Server.AllowedOrigins, cfg.Server.HeartbeatInterval)

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting gateway server", "port", cfg.Server.Port, "provider", cfg.Provider.BaseURL)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down gateway server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("gateway server failed: %v", err)
	}
	slog.Info("gateway stopped")
}
