// Package visual forwards primitives and distance gradients to an external
// viewer. Rendering is fire and forget: implementations never report errors
// back into the control cycle.
package visual

import (
	"sync"

	"github.com/fyrsmithlabs/taskstack/internal/collision"
	"github.com/fyrsmithlabs/taskstack/internal/primitive"
	"gonum.org/v1/gonum/spatial/r3"
)

// Visualizer receives render requests.
type Visualizer interface {
	RenderPrimitive(p *primitive.Primitive)
	RenderGradients(frame string, points []r3.Vec, gradients []collision.Gradient)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RenderPrimitive(*primitive.Primitive)                   {}
func (Nop) RenderGradients(string, []r3.Vec, []collision.Gradient) {}

// GradientBatch is one recorded RenderGradients call.
type GradientBatch struct {
	Frame     string
	Points    []r3.Vec
	Gradients []collision.Gradient
}

// Recorder keeps every render request in memory. It is safe for concurrent use.
type Recorder struct {
	mu         sync.Mutex
	primitives []string
	gradients  []GradientBatch
}

// RenderPrimitive implements Visualizer.
func (r *Recorder) RenderPrimitive(p *primitive.Primitive) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.primitives = append(r.primitives, p.Name)
}

// RenderGradients implements Visualizer.
func (r *Recorder) RenderGradients(frame string, points []r3.Vec, gradients []collision.Gradient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gradients = append(r.gradients, GradientBatch{
		Frame:     frame,
		Points:    append([]r3.Vec(nil), points...),
		Gradients: append([]collision.Gradient(nil), gradients...),
	})
}

// Primitives returns the names of rendered primitives in call order.
func (r *Recorder) Primitives() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.primitives...)
}

// Gradients returns the recorded gradient batches.
func (r *Recorder) Gradients() []GradientBatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]GradientBatch(nil), r.gradients...)
}
