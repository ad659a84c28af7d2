package main

import (
	"testing"

	api "github.com/fyrsmithlabs/taskstack/internal/http"
	"github.com/fyrsmithlabs/taskstack/internal/manager"
	"github.com/fyrsmithlabs/taskstack/internal/task"
	"github.com/stretchr/testify/assert"
)

func TestTasksTable(t *testing.T) {
	out := tasksTable([]manager.TaskInfo{
		{Name: "avoid", Priority: 0, Active: true, Rows: 2, Definition: []string{"TDefAvoidCollisionsSDF", "tip", "wrist"}, Dynamics: []string{"TDynFirstOrder", "2"}},
		{Name: "home", Priority: 3, Definition: []string{"TDefFullPose"}, Dynamics: []string{"TDynFirstOrder", "1"}},
	})

	assert.Contains(t, out, "PRIO")
	assert.Contains(t, out, "TDefAvoidCollisionsSDF tip wrist")
	assert.Contains(t, out, "home")
	assert.Contains(t, out, "yes")
	assert.Contains(t, out, "no")
}

func TestPrimitivesTable(t *testing.T) {
	out := primitivesTable([]api.PrimitiveInfo{
		{Name: "ball", Kind: "sphere", Frame: "world", Visible: true, Params: []float64{1, 0, 0.5, 0.125}},
	})

	assert.Contains(t, out, "ball")
	assert.Contains(t, out, "1 0 0.5 0.125")
}

func TestMeasuresTable(t *testing.T) {
	out := measuresTable([]task.Measures{
		{Name: "j1", Priority: 1, E: []float64{0.3}, EDotStar: []float64{-0.3}, Definition: []float64{0.3}},
	})

	assert.Contains(t, out, "j1")
	assert.Contains(t, out, "-0.3")
	assert.Contains(t, out, "0.3 | ")
}
