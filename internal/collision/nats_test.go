package collision

import (
	"errors"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func startTestNATSServer(t *testing.T) *natsserver.Server {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1, // Random port
		NoLog:  true,
		NoSigs: true,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func connect(t *testing.T, server *natsserver.Server) *nats.Conn {
	t.Helper()
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

// failingChecker fails every query.
type failingChecker struct{}

func (failingChecker) Activate() error   { return nil }
func (failingChecker) Deactivate() error { return nil }
func (failingChecker) Gradients([]r3.Vec, string) ([]Gradient, error) {
	return nil, errors.New("octree not loaded")
}

func TestClientService_RoundTrip(t *testing.T) {
	server := startTestNATSServer(t)
	field, err := NewField("world", 0, []Obstacle{
		{Name: "ball", Kind: ObstacleSphere, Center: []float64{2, 0, 0}, Radius: 0.5},
	})
	require.NoError(t, err)

	svc := NewService(connect(t, server), "robot", field, nil)
	require.NoError(t, svc.Start())
	assert.True(t, field.Active())
	assert.Error(t, svc.Start(), "second start")

	client := NewClient(connect(t, server), "robot", time.Second)
	_, err = client.Gradients([]r3.Vec{{}}, "world")
	assert.ErrorIs(t, err, ErrNotActive)

	require.NoError(t, client.Activate())
	grads, err := client.Gradients([]r3.Vec{{X: 1}, {X: 2}}, "world")
	require.NoError(t, err)
	require.Len(t, grads, 2)
	assert.True(t, grads[0].Valid)
	assert.InDelta(t, 0.5, grads[0].Vector.X, 1e-12)
	assert.False(t, grads[1].Valid)

	_, err = client.Gradients([]r3.Vec{{X: 1}}, "base")
	assert.ErrorIs(t, err, ErrQuery, "remote frame mismatch")

	require.NoError(t, client.Deactivate())
	assert.ErrorIs(t, client.Deactivate(), ErrNotActive)

	require.NoError(t, svc.Stop())
	assert.False(t, field.Active())
	require.NoError(t, svc.Stop())
}

func TestClient_RemoteFailure(t *testing.T) {
	server := startTestNATSServer(t)
	svc := NewService(connect(t, server), "robot", failingChecker{}, nil)
	require.NoError(t, svc.Start())
	t.Cleanup(func() { _ = svc.Stop() })

	client := NewClient(connect(t, server), "robot", time.Second)
	require.NoError(t, client.Activate())
	_, err := client.Gradients([]r3.Vec{{X: 1}}, "world")
	assert.ErrorIs(t, err, ErrQuery)
	assert.Contains(t, err.Error(), "octree not loaded")
}

func TestClient_NoResponder(t *testing.T) {
	server := startTestNATSServer(t)
	client := NewClient(connect(t, server), "nobody", 50*time.Millisecond)
	require.NoError(t, client.Activate())

	_, err := client.Gradients([]r3.Vec{{X: 1}}, "world")
	assert.ErrorIs(t, err, ErrQuery)
}

func TestClient_ActivateRequiresConnection(t *testing.T) {
	server := startTestNATSServer(t)
	nc := connect(t, server)
	nc.Close()

	client := NewClient(nc, "robot", 0)
	assert.ErrorIs(t, client.Activate(), ErrQuery)
	assert.Equal(t, "robot.sdf.gradients", client.subject)
	assert.Equal(t, DefaultTimeout, client.timeout)
}
