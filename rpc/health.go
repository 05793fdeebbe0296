package rpc

import (
	"context"
	"errors"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/wfunc/durak/durak"
	"github.com/wfunc/durak/logger"
	"github.com/wfunc/durak/persistence"
)

// ServiceName is the name reported by the health service.
const ServiceName = "durak"

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthServer serves grpc.health.v1 and reports NOT_SERVING while the
// database is unreachable.
type HealthServer struct {
	grpc     *grpc.Server
	health   *health.Server
	listener net.Listener
	db       Pinger
	interval time.Duration
	done     chan struct{}
}

func NewHealthServer(addr string, db Pinger) (*HealthServer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	h := &HealthServer{
		grpc:     grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler())),
		health:   health.NewServer(),
		listener: listener,
		db:       db,
		interval: 5 * time.Second,
		done:     make(chan struct{}),
	}
	healthpb.RegisterHealthServer(h.grpc, h.health)
	h.Refresh(context.Background())
	return h, nil
}

func (h *HealthServer) Addr() net.Addr {
	return h.listener.Addr()
}

// Refresh pings the database once and updates the reported status.
func (h *HealthServer) Refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	st := healthpb.HealthCheckResponse_SERVING
	if err := h.db.Ping(ctx); err != nil {
		logger.Log.Warnw("database unhealthy", "error", err)
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus(ServiceName, st)
	h.health.SetServingStatus("", st)
}

func (h *HealthServer) Start() {
	go h.watch()
	logger.Log.Infof("gRPC health server listening on %s", h.listener.Addr())
	if err := h.grpc.Serve(h.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		logger.Log.Errorf("gRPC server stopped: %v", err)
	}
}

func (h *HealthServer) watch() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.Refresh(context.Background())
		case <-h.done:
			return
		}
	}
}

func (h *HealthServer) Stop() {
	close(h.done)
	h.health.Shutdown()
	h.grpc.GracefulStop()
}

// Code maps an error to the gRPC code callers should see.
func Code(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if class, ok := durak.ClassOf(err); ok {
		if class == durak.ClassInternal {
			return codes.Internal
		}
		return codes.FailedPrecondition
	}
	switch {
	case errors.Is(err, persistence.ErrRecordNotFound), errors.Is(err, ErrRoomNotFound):
		return codes.NotFound
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	}
	return codes.Unknown
}

// Status wraps err in a gRPC status carrying Code(err).
func Status(err error) error {
	if err == nil {
		return nil
	}
	return status.Error(Code(err), err.Error())
}
