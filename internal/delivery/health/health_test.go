package health

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

type fakeEngine struct {
	dead chan struct{}
}

func (e *fakeEngine) Dead() <-chan struct{} { return e.dead }
func (e *fakeEngine) Err() error            { return errors.New("katago exited") }

func dial(t *testing.T, c *Checker) healthpb.HealthClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	c.Register(s)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func waitStatus(t *testing.T, client healthpb.HealthClient, want healthpb.HealthCheckResponse_ServingStatus) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: Service})
		cancel()
		if err == nil && resp.GetStatus() == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("status never became %v (last %v, err %v)", want, resp.GetStatus(), err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWatchFollowsEngine(t *testing.T) {
	c := NewChecker(zaptest.NewLogger(t).Sugar())
	client := dial(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine := &fakeEngine{dead: make(chan struct{})}
	c.Watch(ctx, engine)
	waitStatus(t, client, healthpb.HealthCheckResponse_SERVING)

	close(engine.dead)
	waitStatus(t, client, healthpb.HealthCheckResponse_NOT_SERVING)
}

func TestShutdown(t *testing.T) {
	c := NewChecker(zaptest.NewLogger(t).Sugar())
	client := dial(t, c)
	c.Watch(context.Background())
	waitStatus(t, client, healthpb.HealthCheckResponse_SERVING)

	c.Shutdown()
	waitStatus(t, client, healthpb.HealthCheckResponse_NOT_SERVING)
}
