package http

import (
	"github.com/fyrsmithlabs/taskstack/internal/loop"
	"github.com/fyrsmithlabs/taskstack/internal/manager"
	"github.com/fyrsmithlabs/taskstack/internal/primitive"
	"github.com/fyrsmithlabs/taskstack/internal/task"
	"github.com/fyrsmithlabs/taskstack/internal/telemetry"
)

// Response is the envelope of every reply. Status is zero on success and a
// negative fault code otherwise.
type Response struct {
	Status int    `json:"status"`
	Error  string `json:"error,omitempty"`
}

// TasksResponse is the response body for GET /api/v1/tasks.
type TasksResponse struct {
	Response
	Tasks []manager.TaskInfo `json:"tasks"`
}

// PrimitiveInfo is the listing record of a primitive.
type PrimitiveInfo struct {
	Name    string     `json:"name"`
	Kind    string     `json:"kind"`
	Frame   string     `json:"frame"`
	Visible bool       `json:"visible"`
	Color   [4]float64 `json:"color"`
	Params  []float64  `json:"params"`
}

// PrimitivesResponse is the response body for GET /api/v1/primitives.
type PrimitivesResponse struct {
	Response
	Primitives []PrimitiveInfo `json:"primitives"`
}

// MeasuresResponse is the response body for GET /api/v1/measures.
type MeasuresResponse struct {
	Response
	Measures []task.Measures `json:"measures"`
}

// Counts holds registry sizes. Both are -1 when the manager cannot be
// queried.
type Counts struct {
	Tasks      int `json:"tasks"`
	Primitives int `json:"primitives"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Response
	ControllerID string                  `json:"controller_id"`
	Counts       Counts                  `json:"counts"`
	Loop         *loop.Stats             `json:"loop,omitempty"`
	Telemetry    *telemetry.HealthStatus `json:"telemetry,omitempty"`
}

func primitiveInfo(p *primitive.Primitive) PrimitiveInfo {
	return PrimitiveInfo{
		Name:    p.Name,
		Kind:    p.Kind().String(),
		Frame:   p.FrameID,
		Visible: p.Visible,
		Color:   p.Color,
		Params:  primitive.Params(p.Shape),
	}
}
