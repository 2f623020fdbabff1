package server

import (
	stderrors "errors"
	"log/slog"
	"net"

	grpc3 "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// RelayService is the health service name reported for the websocket relay.
const RelayService = "chat.relay"

// HealthServer answers grpc health probes for the relay. The relay reports
// NOT_SERVING until MarkServing and again once shutdown starts.
type HealthServer struct {
	log    *slog.Logger
	server *grpc.Server
	health *health.Server
}

func NewHealthServer(log *slog.Logger) *HealthServer {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(grpc3.UnaryLoggingInterceptor(log)))
	h := health.NewServer()
	h.SetServingStatus(RelayService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	grpc_health_v1.RegisterHealthServer(s, h)
	reflection.Register(s)

	return &HealthServer{log: log, server: s, health: h}
}

func (h *HealthServer) MarkServing() {
	h.health.SetServingStatus(RelayService, grpc_health_v1.HealthCheckResponse_SERVING)
}

// Serve blocks until Stop is called.
func (h *HealthServer) Serve(lis net.Listener) error {
	h.log.Info("Starting gRPC health server", "address", lis.Addr().String())
	for serviceName := range h.server.GetServiceInfo() {
		h.log.Debug("📡 gRPC exposed services", "name", serviceName)
	}
	if err := h.server.Serve(lis); err != nil && !stderrors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop flips every service to NOT_SERVING before draining pending probes.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}
