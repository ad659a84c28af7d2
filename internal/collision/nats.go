package collision

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultTimeout bounds one remote gradient query.
const DefaultTimeout = 20 * time.Millisecond

// GradientsSubject returns the request/reply subject for gradient queries.
func GradientsSubject(prefix string) string {
	return prefix + ".sdf.gradients"
}

type gradientsRequest struct {
	Frame  string       `json:"frame"`
	Points [][3]float64 `json:"points"`
}

type wireGradient struct {
	Vector [3]float64 `json:"vector"`
	Valid  bool       `json:"valid"`
}

type gradientsReply struct {
	Gradients []wireGradient `json:"gradients,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Client is a Checker that forwards queries to a Service over NATS.
type Client struct {
	nc      *nats.Conn
	subject string
	timeout time.Duration

	mu   sync.Mutex
	refs int
}

// NewClient creates a client for the service listening under prefix. A zero
// timeout selects DefaultTimeout.
func NewClient(nc *nats.Conn, prefix string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{nc: nc, subject: GradientsSubject(prefix), timeout: timeout}
}

// Activate implements Checker. It fails while the connection is down.
func (c *Client) Activate() error {
	if c.nc == nil || !c.nc.IsConnected() {
		return fmt.Errorf("%w: nats not connected", ErrQuery)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refs++
	return nil
}

// Deactivate implements Checker.
func (c *Client) Deactivate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refs == 0 {
		return ErrNotActive
	}
	c.refs--
	return nil
}

// Gradients implements Checker with one request per batch.
func (c *Client) Gradients(points []r3.Vec, frame string) ([]Gradient, error) {
	c.mu.Lock()
	active := c.refs > 0
	c.mu.Unlock()
	if !active {
		return nil, ErrNotActive
	}

	req := gradientsRequest{Frame: frame, Points: make([][3]float64, len(points))}
	for i, p := range points {
		req.Points[i] = [3]float64{p.X, p.Y, p.Z}
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal gradient request: %w", err)
	}

	msg, err := c.nc.Request(c.subject, data, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	var reply gradientsReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("%w: decode reply: %v", ErrQuery, err)
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrQuery, reply.Error)
	}
	if len(reply.Gradients) != len(points) {
		return nil, fmt.Errorf("%w: %d gradients for %d points", ErrQuery, len(reply.Gradients), len(points))
	}

	out := make([]Gradient, len(reply.Gradients))
	for i, g := range reply.Gradients {
		out[i] = Gradient{Vector: r3.Vec{X: g.Vector[0], Y: g.Vector[1], Z: g.Vector[2]}, Valid: g.Valid}
	}
	return out, nil
}

// Service answers gradient queries from a local Checker.
type Service struct {
	nc      *nats.Conn
	subject string
	checker Checker
	logger  *zap.Logger

	mu  sync.Mutex
	sub *nats.Subscription
}

// NewService creates a service serving checker under prefix.
func NewService(nc *nats.Conn, prefix string, checker Checker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		nc:      nc,
		subject: GradientsSubject(prefix),
		checker: checker,
		logger:  logger.Named("collision"),
	}
}

// Start activates the checker and subscribes to the query subject.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		return errors.New("collision service already started")
	}
	if err := s.checker.Activate(); err != nil {
		return err
	}
	sub, err := s.nc.Subscribe(s.subject, s.handle)
	if err != nil {
		_ = s.checker.Deactivate()
		return fmt.Errorf("subscribe %s: %w", s.subject, err)
	}
	if err := s.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		_ = s.checker.Deactivate()
		return fmt.Errorf("flush subscription: %w", err)
	}
	s.sub = sub
	s.logger.Info("collision service started", zap.String("subject", s.subject))
	return nil
}

// Stop drains the subscription and releases the checker.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		return nil
	}
	err := errors.Join(s.sub.Drain(), s.checker.Deactivate())
	s.sub = nil
	return err
}

func (s *Service) handle(msg *nats.Msg) {
	var reply gradientsReply
	var req gradientsRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		reply.Error = "decode request: " + err.Error()
	} else {
		points := make([]r3.Vec, len(req.Points))
		for i, p := range req.Points {
			points[i] = r3.Vec{X: p[0], Y: p[1], Z: p[2]}
		}
		grads, err := s.checker.Gradients(points, req.Frame)
		if err != nil {
			reply.Error = err.Error()
		}
		for _, g := range grads {
			reply.Gradients = append(reply.Gradients, wireGradient{
				Vector: [3]float64{g.Vector.X, g.Vector.Y, g.Vector.Z},
				Valid:  g.Valid,
			})
		}
	}
	if reply.Error != "" {
		s.logger.Warn("gradient query failed", zap.String("error", reply.Error))
	}

	data, err := json.Marshal(reply)
	if err != nil {
		s.logger.Error("marshal gradient reply", zap.Error(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("respond to gradient query", zap.Error(err))
	}
}
