// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tester assembles the measurement server: the websocket
// command listener, the experiment engine behind it, and the
// operational HTTP endpoints on a second port.
package tester

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/AleutianAI/hwtester/services/tester/datatypes"
	"github.com/AleutianAI/hwtester/services/tester/experiments"
	"github.com/AleutianAI/hwtester/services/tester/handlers"
	"github.com/AleutianAI/hwtester/services/tester/observability"
	"github.com/AleutianAI/hwtester/services/tester/registry"
	"github.com/AleutianAI/hwtester/services/tester/routes"
	"github.com/AleutianAI/hwtester/services/tester/wsproto"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultPort          = 8765
	DefaultOpsPort       = 9105
	DefaultMaxConcurrent = 4
)

// Config tunes the server.
//
// Fields:
//   - Port: websocket command port
//   - OpsPort: metrics and probe port
//   - MaxConcurrent: sessions served at once; extra connections wait
//   - ScratchBudgetBytes: per-experiment scratch cap, 0 for default
//   - TracingEnabled: export OTLP spans when true
//   - OTLPEndpoint: collector gRPC endpoint, host:port
type Config struct {
	Port               int
	OpsPort            int
	MaxConcurrent      int
	ScratchBudgetBytes int64
	TracingEnabled     bool
	OTLPEndpoint       string
}

func applyConfigDefaults(cfg *Config) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.OpsPort == 0 {
		cfg.OpsPort = DefaultOpsPort
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
}

// Service is a runnable hardware tester instance.
type Service struct {
	cfg    Config
	log    *slog.Logger
	router *handlers.Router
	sem    *semaphore.Weighted
	ready  atomic.Bool
}

// New builds a service with every experiment registered. A nil logger
// falls back to slog.Default(); nil metrics disables instrumentation.
func New(cfg Config, logger *slog.Logger, metrics *observability.ServerMetrics) *Service {
	applyConfigDefaults(&cfg)
	if logger == nil {
		logger = slog.Default()
	}

	reg := registry.New()
	engine := experiments.NewEngine(
		experiments.Config{ScratchBudgetBytes: cfg.ScratchBudgetBytes},
		logger.With("component", "experiments"))
	engine.Register(reg)

	return &Service{
		cfg:    cfg,
		log:    logger,
		router: handlers.NewRouter(reg, cfg.Port, logger, metrics),
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}
}

// serverHeader is the identity sent in the handshake Server header.
func serverHeader() string {
	return fmt.Sprintf("%s/%s", datatypes.ServerName, datatypes.ServerVersion)
}

// Run serves until ctx is cancelled, then drains active sessions.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.TracingEnabled {
		shutdown, err := initTracer(ctx, s.cfg.OTLPEndpoint)
		if err != nil {
			return fmt.Errorf("tester: initializing tracer: %w", err)
		}
		defer shutdown(context.Background())
	}

	gin.SetMode(gin.ReleaseMode)
	opsRouter := gin.New()
	opsRouter.Use(gin.Recovery())
	opsRouter.Use(otelgin.Middleware("hardware-tester"))
	routes.SetupRoutes(opsRouter, s.ready.Load)
	opsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.OpsPort),
		Handler: opsRouter,
	}
	go func() {
		if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("ops server failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = opsSrv.Shutdown(shutdownCtx)
	}()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("tester: listening on port %d: %w", s.cfg.Port, err)
	}
	stopAccept := context.AfterFunc(ctx, func() { ln.Close() })
	defer stopAccept()
	defer ln.Close()

	s.ready.Store(true)
	defer s.ready.Store(false)
	s.log.Info("hardware tester listening",
		"port", s.cfg.Port, "opsPort", s.cfg.OpsPort, "maxConcurrent", s.cfg.MaxConcurrent)

	var wg sync.WaitGroup
	for {
		raw, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.log.Warn("accept failed", "error", err)
			continue
		}
		if err := s.sem.Acquire(ctx, 1); err != nil {
			raw.Close()
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.sem.Release(1)
			s.serve(ctx, raw)
		}()
	}

	s.log.Info("hardware tester shutting down")
	wg.Wait()
	return nil
}

// serve upgrades one raw connection and runs its session. A failed
// handshake closes the connection without an HTTP response.
func (s *Service) serve(ctx context.Context, raw net.Conn) {
	conn, err := wsproto.Upgrade(raw, serverHeader())
	if err != nil {
		s.log.Debug("handshake rejected",
			"remote", raw.RemoteAddr().String(), "error", err)
		raw.Close()
		return
	}
	handlers.NewSession(conn, s.router).Run(ctx)
}

// initTracer wires the OTLP gRPC exporter and installs the global
// tracer provider. The returned function flushes and shuts the
// exporter down.
func initTracer(ctx context.Context, endpoint string) (func(context.Context), error) {
	if endpoint == "" {
		endpoint = "localhost:4317"
	}
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("hardware-tester")))
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
