package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/taskstack/internal/faults"
	"github.com/fyrsmithlabs/taskstack/internal/kinematics"
	"github.com/fyrsmithlabs/taskstack/internal/task"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gonum.org/v1/gonum/mat"
)

// GetVelocityControls runs one control cycle on state: every active task is
// updated, the tasks are stratified by priority and the solver produces one
// velocity per joint. Any failure aborts the cycle and no command is
// returned.
func (m *Manager) GetVelocityControls(ctx context.Context, state *kinematics.RobotState) ([]float64, error) {
	var controls []float64
	err := m.call(ctx, func() error {
		var err error
		controls, err = m.runCycle(ctx, state)
		return err
	})
	if err != nil {
		return nil, err
	}
	return controls, nil
}

func (m *Manager) runCycle(ctx context.Context, state *kinematics.RobotState) ([]float64, error) {
	m.cycle++
	ctx, span := StartSpan(ctx, "manager.cycle", m.id, m.cycle)
	defer span.End()
	start := time.Now()

	controls, levels, err := m.solveCycle(state)
	duration := time.Since(start)
	if err != nil {
		RecordError(ctx, err, attribute.Int("status", StatusCode(err)))
		SetSpanStatus(ctx, codes.Error, err.Error())
		m.metrics.RecordCycleFailed(ctx, StatusCode(err), duration)
		m.logger.CycleFailed(ctx, m.cycle, StatusCode(err), err)
		return nil, err
	}

	rows := 0
	for _, l := range levels {
		rows += l.Rows()
	}
	span.SetAttributes(attribute.Int("manager.levels", len(levels)), attribute.Int("manager.rows", rows))
	SetSpanStatus(ctx, codes.Ok, "")
	m.metrics.RecordCycle(ctx, len(levels), rows, duration)
	m.logger.CycleCompleted(ctx, m.cycle, len(levels), rows, duration)
	m.state = state.Clone()
	return controls, nil
}

func (m *Manager) solveCycle(state *kinematics.RobotState) ([]float64, []Level, error) {
	if err := state.Validate(); err != nil {
		return nil, nil, err
	}
	n := state.NumJoints()

	var active []*task.Task
	for _, name := range m.sortedNames(true) {
		t := m.tasks[name]
		if err := t.Update(state); err != nil {
			return nil, nil, err
		}
		active = append(active, t)
	}

	levels := stratify(active, n)
	controls, err := m.solver.Solve(levels, n)
	if err != nil {
		if faults.Category(err) == nil {
			err = fmt.Errorf("%w: %w", faults.ErrSolverInfeasible, err)
		}
		return nil, nil, err
	}
	if len(controls) != n {
		return nil, nil, fmt.Errorf("%w: got %d for %d joints", ErrBadControls, len(controls), n)
	}
	return controls, levels, nil
}

// stratify groups tasks, already ordered by priority then name, into one
// stacked level per priority.
func stratify(tasks []*task.Task, n int) []Level {
	var levels []Level
	for start := 0; start < len(tasks); {
		end := start
		for end < len(tasks) && tasks[end].Priority() == tasks[start].Priority() {
			end++
		}
		levels = append(levels, stack(tasks[start:end], n))
		start = end
	}
	return levels
}

func stack(tasks []*task.Task, n int) Level {
	rows := 0
	for _, t := range tasks {
		rows += t.Snapshot().Rows()
	}
	l := Level{
		Priority: tasks[0].Priority(),
		J:        mat.NewDense(rows, n, nil),
		E:        make([]float64, 0, rows),
		EDotStar: make([]float64, 0, rows),
	}
	at := 0
	for _, t := range tasks {
		s := t.Snapshot()
		r := s.Rows()
		l.J.Slice(at, at+r, 0, n).(*mat.Dense).Copy(s.J)
		l.E = append(l.E, s.E...)
		l.EDotStar = append(l.EDotStar, s.EDotStar...)
		l.Types = append(l.Types, s.Types...)
		l.Tasks = append(l.Tasks, t.Name())
		at += r
	}
	return l
}
