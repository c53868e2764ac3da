// Administrative gRPC server for storagecored: health and reflection only.
package server

import (
	"context"
	"sync"
	"time"

	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/nainya/storagecore/internal/logger"
	"github.com/nainya/storagecore/pkg/buffer"
	"github.com/nainya/storagecore/pkg/disk"
)

// storageHealth is the slice of the storage core the admin server checks
// to decide SERVING vs NOT_SERVING. A borrowed handle, not owned.
type storageHealth interface {
	IsOpen() bool
}

// Server is the administrative gRPC endpoint a running storagecored
// process exposes: health plus reflection, no data RPCs. The core has no
// wire protocol of its own (callers link the storage packages directly),
// so this surface exists only to let an orchestrator probe a process's
// liveness.
type Server struct {
	grpc_health_v1.UnimplementedHealthServer

	mu        sync.RWMutex
	disk      storageHealth
	pool      *buffer.Pool
	log       *logger.Logger
	startTime time.Time
}

// NewServer wires an admin server around an already-open disk manager and
// buffer pool.
func NewServer(dm *disk.Manager, pool *buffer.Pool, log *logger.Logger) *Server {
	return &Server{
		disk:      dm,
		pool:      pool,
		log:       log,
		startTime: time.Now(),
	}
}

// Uptime reports how long the server has been running.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// serving reports whether the backing disk manager and buffer pool both
// look usable right now: the file is open and nothing has leaked a pin
// across requests.
func (s *Server) serving() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.disk == nil || s.pool == nil {
		return false
	}
	return s.disk.IsOpen() && s.pool.AllUnpinned()
}

// Check implements grpc_health_v1.HealthServer. The service name is
// ignored: storagecored reports one overall status for the whole
// process, not per-RPC-service health.
func (s *Server) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if s.serving() {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	return &grpc_health_v1.HealthCheckResponse{Status: status}, nil
}

// Watch implements grpc_health_v1.HealthServer. storagecored's health
// only changes on process failure, so it sends the current status once
// and then blocks until the client cancels instead of polling.
func (s *Server) Watch(req *grpc_health_v1.HealthCheckRequest, stream grpc_health_v1.Health_WatchServer) error {
	resp, err := s.Check(stream.Context(), req)
	if err != nil {
		return err
	}
	if err := stream.Send(resp); err != nil {
		return err
	}
	<-stream.Context().Done()
	return stream.Context().Err()
}

// Close marks the server's storage handles gone, so subsequent health
// checks report NOT_SERVING. It does not close the disk manager or
// buffer pool itself; the caller owns their lifecycle.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disk = nil
	s.pool = nil
	if s.log != nil {
		s.log.LogServerShutdown()
	}
}
