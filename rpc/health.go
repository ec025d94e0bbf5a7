package rpc

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/wfunc/cardserver/logger"
)

// ServiceName is the service reported by the health endpoint next to "".
const ServiceName = "cardserver"

// HealthServer serves grpc.health.v1 for load balancers and orchestrators.
type HealthServer struct {
	listener net.Listener
	grpc     *grpc.Server
	health   *health.Server
}

func NewHealthServer(addr string) (*HealthServer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return newHealthServer(listener), nil
}

func newHealthServer(listener net.Listener) *HealthServer {
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return &HealthServer{listener: listener, grpc: gs, health: hs}
}

func (h *HealthServer) Start() {
	logger.Log.Infof("gRPC health listening on %s", h.listener.Addr())
	if err := h.grpc.Serve(h.listener); err != nil {
		logger.Log.Infof("gRPC health stopped: %v", err)
	}
}

// Stop reports NOT_SERVING to watchers and drains the server.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.grpc.GracefulStop()
}
