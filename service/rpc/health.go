package rpc

import (
	"context"
	"net"
	"time"

	"ensemble-relay/logger"
	"ensemble-relay/tools/errs"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name the relay reports under, next to
// the overall "" entry.
const ServiceName = "relay.Relay"

// HealthServer is a gRPC server exposing only the standard health service.
type HealthServer struct {
	srv *grpc.Server
	hs  *health.Server
}

func NewHealthServer() *HealthServer {
	srv := grpc.NewServer()
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, hs)
	h := &HealthServer{srv: srv, hs: hs}
	h.SetServing(true)
	return h
}

// SetServing flips both the overall and the relay entries.
func (h *HealthServer) SetServing(ok bool) {
	st := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if ok {
		st = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.hs.SetServingStatus("", st)
	h.hs.SetServingStatus(ServiceName, st)
}

// Serve blocks until lis fails or Stop is called.
func (h *HealthServer) Serve(lis net.Listener) error {
	logger.Info("grpc health listening", zap.String("addr", lis.Addr().String()))
	if err := h.srv.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return errs.WrapMsg(err, "grpc serve")
	}
	return nil
}

// Stop marks the service not serving and stops gracefully.
func (h *HealthServer) Stop() {
	h.hs.Shutdown()
	h.srv.GracefulStop()
}

// Check dials target and asks for ServiceName's status.
func Check(ctx context.Context, target string, opts ...grpc.DialOption) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.DialContext(ctx, target, opts...)
	if err != nil {
		return false, errs.WrapMsg(err, "grpc dial", "target", target)
	}
	defer conn.Close()

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return false, errs.WrapMsg(err, "health check", "target", target)
	}
	return resp.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING, nil
}
