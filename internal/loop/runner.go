// Package loop drives a task manager at a fixed rate against a simulated
// robot.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fyrsmithlabs/taskstack/internal/kinematics"
	"github.com/fyrsmithlabs/taskstack/internal/manager"
	"go.uber.org/zap"
)

// ErrBadRate indicates a non-positive loop rate.
var ErrBadRate = errors.New("loop rate must be positive")

// DefaultRateHz is the tick rate used when none is configured.
const DefaultRateHz = 100

// Controller computes joint velocity commands.
type Controller interface {
	GetVelocityControls(ctx context.Context, state *kinematics.RobotState) ([]float64, error)
}

// Config configures the runner.
type Config struct {
	RateHz float64 `koanf:"rate_hz"`
}

// Period returns the tick period.
func (c Config) Period() time.Duration {
	return time.Duration(float64(time.Second) / c.RateHz)
}

// Stats counts ticks by outcome.
type Stats struct {
	Cycles   uint64 `json:"cycles"`
	Failures uint64 `json:"failures"`
}

// Runner ticks a controller at a fixed rate. On success the command is
// integrated into the robot; on failure the robot holds still.
type Runner struct {
	ctrl    Controller
	robot   *Robot
	period  time.Duration
	metrics *Metrics
	logger  *zap.Logger

	cycles   atomic.Uint64
	failures atomic.Uint64
}

// NewRunner creates a runner. metrics and logger may be nil.
func NewRunner(ctrl Controller, robot *Robot, cfg Config, metrics *Metrics, logger *zap.Logger) (*Runner, error) {
	if cfg.RateHz == 0 {
		cfg.RateHz = DefaultRateHz
	}
	if cfg.RateHz < 0 {
		return nil, fmt.Errorf("%w: %g", ErrBadRate, cfg.RateHz)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		ctrl:    ctrl,
		robot:   robot,
		period:  cfg.Period(),
		metrics: metrics,
		logger:  logger.Named("loop"),
	}, nil
}

// State returns the current robot state.
func (r *Runner) State() *kinematics.RobotState {
	return r.robot.State()
}

// Stats returns the tick counters.
func (r *Runner) Stats() Stats {
	return Stats{Cycles: r.cycles.Load(), Failures: r.failures.Load()}
}

// Run ticks until ctx is done or the controller is closed.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("control loop started", zap.Duration("period", r.period))
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("control loop stopped", zap.Uint64("cycles", r.cycles.Load()), zap.Uint64("failures", r.failures.Load()))
			return nil
		case <-ticker.C:
			if err := r.Step(ctx); errors.Is(err, manager.ErrClosed) {
				r.logger.Info("controller closed, stopping control loop")
				return nil
			}
		}
	}
}

// Step runs one tick and returns the controller error, if any.
func (r *Runner) Step(ctx context.Context) error {
	start := time.Now()
	state := r.robot.State()
	qdot, err := r.ctrl.GetVelocityControls(ctx, state)
	elapsed := time.Since(start)

	r.cycles.Add(1)
	if err == nil {
		err = r.robot.Apply(qdot, r.period.Seconds())
	}
	if err != nil {
		r.failures.Add(1)
		_ = r.robot.Apply(nil, 0)
		qdot = make([]float64, state.NumJoints())
		r.logger.Debug("holding position", zap.Int("status", manager.StatusCode(err)), zap.Error(err))
	}

	r.metrics.RecordCycle(err == nil, elapsed.Seconds(), elapsed > r.period)
	r.metrics.RecordJoints(r.robot.JointNames(), r.robot.State().Positions, qdot)
	return err
}
