// Package collision provides signed-distance-field queries for obstacle
// avoidance: the Checker interface consumed by task definitions, an analytic
// Field over simple obstacles, and a NATS client/service pair that moves the
// query to another process.
package collision

import (
	"fmt"

	"github.com/fyrsmithlabs/taskstack/internal/faults"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	ErrQuery       = fmt.Errorf("%w: gradient query", faults.ErrCollisionQuery)
	ErrNotActive   = fmt.Errorf("%w: checker not active", faults.ErrCollisionQuery)
	ErrBadObstacle = fmt.Errorf("%w: invalid obstacle", faults.ErrValidation)
)

// Gradient is the distance-field sample at one query point. Vector points from
// the query point toward the closest obstacle surface and its norm is the
// distance to it. Samples outside the mapped region are not Valid.
type Gradient struct {
	Vector r3.Vec `json:"vector"`
	Valid  bool   `json:"valid"`
}

// Checker answers batched gradient queries.
type Checker interface {
	// Activate prepares the checker; calls are reference counted.
	Activate() error
	Deactivate() error

	// Gradients returns one sample per point, in order. Points are expressed
	// in frame. A returned error means the whole batch failed.
	Gradients(points []r3.Vec, frame string) ([]Gradient, error)
}
