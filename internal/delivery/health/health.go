// Package health exposes engine liveness through the standard gRPC health service.
package health

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the name clients check; the empty name reports the same status.
const Service = "katrain.analysis"

type Engine interface {
	Dead() <-chan struct{}
	Err() error
}

type Checker struct {
	log    *zap.SugaredLogger
	server *health.Server
}

func NewChecker(log *zap.SugaredLogger) *Checker {
	return &Checker{
		log:    log,
		server: health.NewServer(),
	}
}

func (c *Checker) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, c.server)
}

// Watch reports SERVING until any of the engines dies, then NOT_SERVING for good.
func (c *Checker) Watch(ctx context.Context, engines ...Engine) {
	c.set(healthpb.HealthCheckResponse_SERVING)
	for _, e := range engines {
		go func(e Engine) {
			select {
			case <-e.Dead():
				c.log.Errorw("engine is down, reporting not serving", "error", e.Err())
				c.set(healthpb.HealthCheckResponse_NOT_SERVING)
			case <-ctx.Done():
			}
		}(e)
	}
}

// Shutdown reports NOT_SERVING and ignores later updates.
func (c *Checker) Shutdown() {
	c.server.Shutdown()
}

func (c *Checker) set(status healthpb.HealthCheckResponse_ServingStatus) {
	c.server.SetServingStatus("", status)
	c.server.SetServingStatus(Service, status)
}
