package visual

import (
	"encoding/json"

	"github.com/fyrsmithlabs/taskstack/internal/collision"
	"github.com/fyrsmithlabs/taskstack/internal/primitive"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gonum.org/v1/gonum/spatial/r3"
)

// PrimitivesSubject returns the subject primitives are published on.
func PrimitivesSubject(prefix string) string { return prefix + ".viz.primitives" }

// GradientsSubject returns the subject gradient batches are published on.
func GradientsSubject(prefix string) string { return prefix + ".viz.gradients" }

// PrimitiveMessage is the wire form of a rendered primitive.
type PrimitiveMessage struct {
	Name   string     `json:"name"`
	Kind   string     `json:"kind"`
	Frame  string     `json:"frame"`
	Color  [4]float64 `json:"color"`
	Params []float64  `json:"params"`
}

// GradientMessage is the wire form of one gradient batch.
type GradientMessage struct {
	Frame   string       `json:"frame"`
	Points  [][3]float64 `json:"points"`
	Vectors [][3]float64 `json:"vectors"`
	Valid   []bool       `json:"valid"`
}

// Publisher sends render requests to NATS. Publishing is rate limited per
// subject; requests over the limit are dropped.
type Publisher struct {
	nc         *nats.Conn
	prefix     string
	primitives *rate.Limiter
	gradients  *rate.Limiter
	logger     *zap.Logger
}

// NewPublisher creates a publisher allowing perSecond messages per subject
// with the given burst. A non-positive perSecond disables limiting.
func NewPublisher(nc *nats.Conn, prefix string, perSecond float64, burst int, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Publisher{
		nc:         nc,
		prefix:     prefix,
		primitives: rate.NewLimiter(limit, burst),
		gradients:  rate.NewLimiter(limit, burst),
		logger:     logger.Named("visual"),
	}
}

// RenderPrimitive implements Visualizer.
func (p *Publisher) RenderPrimitive(prim *primitive.Primitive) {
	if !p.primitives.Allow() {
		return
	}
	p.publish(PrimitivesSubject(p.prefix), PrimitiveMessage{
		Name:   prim.Name,
		Kind:   prim.Kind().String(),
		Frame:  prim.FrameID,
		Color:  prim.Color,
		Params: primitive.Params(prim.Shape),
	})
}

// RenderGradients implements Visualizer.
func (p *Publisher) RenderGradients(frame string, points []r3.Vec, gradients []collision.Gradient) {
	if !p.gradients.Allow() {
		return
	}
	msg := GradientMessage{Frame: frame}
	for _, pt := range points {
		msg.Points = append(msg.Points, [3]float64{pt.X, pt.Y, pt.Z})
	}
	for _, g := range gradients {
		msg.Vectors = append(msg.Vectors, [3]float64{g.Vector.X, g.Vector.Y, g.Vector.Z})
		msg.Valid = append(msg.Valid, g.Valid)
	}
	p.publish(GradientsSubject(p.prefix), msg)
}

func (p *Publisher) publish(subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		p.logger.Warn("marshal render message", zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		p.logger.Debug("publish render message", zap.String("subject", subject), zap.Error(err))
	}
}
