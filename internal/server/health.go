package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

// handleReady also checks the recognition cache store.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "READY"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("health.ready.failed", "cache", s.store.Name(), "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "UNAVAILABLE",
			"cache":  s.store.Name(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "READY", "cache": s.store.Name()})
}

// StartGRPCHealth serves the standard gRPC health service on addr for
// orchestrators that check health over gRPC. Stop the returned server on shutdown.
func StartGRPCHealth(addr string, logger *slog.Logger) (*grpc.Server, *health.Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", addr, "error", err)
		return nil, nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	// Set the service as serving (empty string means overall server health)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	// Reflection for grpcurl
	reflection.Register(grpcServer)

	logger.Info("grpc.health.listening", "addr", lis.Addr().String())
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
		}
	}()
	return grpcServer, healthServer, nil
}
