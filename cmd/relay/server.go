package main

import (
	"chat-relay/domain/chat"
	"chat-relay/infrastructure/grpc/server"
	"chat-relay/infrastructure/storage"
	"chat-relay/internal"
	"chat-relay/observability"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/transport/ws"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/samber/lo"
)

func runServer(config internal.Config, logger *slog.Logger) (int, error) {
	// 1. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage
	st, err := openStore(ctx, config, logger, false)
	if err != nil {
		return exitRuntime, err
	}
	defer st.close()

	// 3. Supervision & Orchestration
	metrics := observability.NewMetrics()
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	registry := runtime.NewRegistry(logger, st, config.FanoutCapacity)
	persister := runtime.NewPersister(logger, st, metrics, config.PersistTimeout)
	orchestrator := runtime.NewOrchestrator(logger, sup, registry, persister, metrics,
		config.MetricInterval, config.LowCapacityThreshold)

	// 4. Endpoints. A failed bind is the only fatal startup error.
	relay := ws.NewServer(logger, config.RelayAddress(), orchestrator, config.WriteTimeout, config.MaxFrameSize)
	if err := relay.Listen(); err != nil {
		return exitRuntime, err
	}
	healthListener, err := net.Listen("tcp", config.HealthAddress())
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", config.HealthAddress(), err)
	}
	health := server.NewHealthServer(logger)

	errChan := make(chan error, 3)
	go orchestrator.Start(ctx)
	go func() {
		if err := relay.Serve(ctx); err != nil {
			errChan <- fmt.Errorf("relay server error: %w", err)
		}
	}()
	go func() {
		if err := health.Serve(healthListener); err != nil {
			errChan <- fmt.Errorf("gRPC health server error: %w", err)
		}
	}()
	health.MarkServing()

	var debug *internal.DebugServer
	if config.DebugMode {
		debug = internal.NewDebugServer(logger, net.JoinHostPort(config.RelayHost, strconv.Itoa(config.DebugPort)), internal.DebugOptions{
			DB:          st.badger,
			Mapper:      storage.InspectRecord,
			Stats:       func() map[string]any { return relayStats(orchestrator) },
			Metrics:     metrics.Handler(),
			CorsOrigins: config.CorsOrigins,
		})
		go func() {
			if err := debug.Serve(ctx); err != nil {
				errChan <- fmt.Errorf("debug server error: %w", err)
			}
		}()
	}

	// 5. Wait for Stop or Error
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		logger.Error("Relay failure, shutting down", "error", runErr)
	}
	stop()

	// 6. Final Cleanup (Graceful Shutdown)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()

	// No upgrade is accepted past this point, the orchestrator only sees
	// sessions already running.
	health.Stop()
	if err := relay.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Relay shutdown incomplete", "error", err)
	}
	orchestrator.Stop()
	if debug != nil {
		_ = debug.Shutdown(shutdownCtx)
	}

	if runErr != nil {
		return exitRuntime, runErr
	}
	logger.Info("Program stopped cleanly", "at", time.Now().UTC())
	return exitOK, nil
}

func relayStats(orchestrator *runtime.Orchestrator) map[string]any {
	stats := orchestrator.Stats()
	return map[string]any{
		"rooms":       len(stats.Rooms),
		"sessions":    stats.ActiveSessions,
		"subscribers": lo.SumBy(stats.Rooms, func(r chat.RoomStats) int { return r.Subscribers }),
		"published":   lo.SumBy(stats.Rooms, func(r chat.RoomStats) uint64 { return r.Published }),
	}
}
