package grpc

import (
	"fmt"
	"net"

	"notification-sync-service/pkg/logging"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer expone grpc.health.v1.Health con el estado del servicio de sincronización
type HealthServer struct {
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	service  string
	logger   *logging.Logger
}

// NewHealthServer abre el puerto y registra el servicio de salud en NOT_SERVING
func NewHealthServer(port int, service string, logger *logging.Logger) (*HealthServer, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	healthServer := health.NewServer()
	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, healthServer)

	hs := &HealthServer{
		server:   s,
		health:   healthServer,
		listener: lis,
		service:  service,
		logger:   logger,
	}
	hs.SetServing(false)
	return hs, nil
}

// Start sirve peticiones en segundo plano
func (s *HealthServer) Start() {
	go func() {
		s.logger.Info("Starting gRPC health server on %s", s.listener.Addr())
		if err := s.server.Serve(s.listener); err != nil {
			s.logger.Error("gRPC health server stopped: %v", err)
		}
	}()
}

// Addr devuelve la dirección de escucha
func (s *HealthServer) Addr() string {
	return s.listener.Addr().String()
}

// SetServing cambia el estado publicado, tanto el global como el del servicio
func (s *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(s.service, status)
}

// Stop publica NOT_SERVING y cierra el servidor esperando a las llamadas en curso
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
