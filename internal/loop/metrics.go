package loop

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the control loop.
//
// Metrics:
//   - taskstack_loop_cycles_total{result} - ticks by outcome ("ok" or "held")
//   - taskstack_loop_cycle_duration_seconds - time spent computing one command
//   - taskstack_loop_overruns_total - ticks whose computation exceeded the period
//   - taskstack_loop_joint_position{joint} - simulated joint positions
//   - taskstack_loop_joint_velocity{joint} - last commanded joint velocities
type Metrics struct {
	CyclesTotal   *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	OverrunsTotal prometheus.Counter
	JointPosition *prometheus.GaugeVec
	JointVelocity *prometheus.GaugeVec
}

// NewMetrics creates the loop collectors and registers them with reg. A nil
// reg leaves the collectors unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CyclesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "taskstack",
				Subsystem: "loop",
				Name:      "cycles_total",
				Help:      "Total number of control loop ticks by result",
			},
			[]string{"result"},
		),
		CycleDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "taskstack",
				Subsystem: "loop",
				Name:      "cycle_duration_seconds",
				Help:      "Duration of velocity command computation in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12), // 100us to ~200ms
			},
		),
		OverrunsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "taskstack",
				Subsystem: "loop",
				Name:      "overruns_total",
				Help:      "Total number of ticks that took longer than the loop period",
			},
		),
		JointPosition: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "taskstack",
				Subsystem: "loop",
				Name:      "joint_position",
				Help:      "Current simulated joint position",
			},
			[]string{"joint"},
		),
		JointVelocity: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "taskstack",
				Subsystem: "loop",
				Name:      "joint_velocity",
				Help:      "Last commanded joint velocity",
			},
			[]string{"joint"},
		),
	}
}

// RecordCycle records the outcome of one tick.
func (m *Metrics) RecordCycle(ok bool, seconds float64, overrun bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "held"
	}
	m.CyclesTotal.WithLabelValues(result).Inc()
	m.CycleDuration.Observe(seconds)
	if overrun {
		m.OverrunsTotal.Inc()
	}
}

// RecordJoints publishes the joint positions and the applied command.
func (m *Metrics) RecordJoints(names []string, q, qdot []float64) {
	if m == nil {
		return
	}
	for i := range q {
		label := jointLabel(names, i)
		m.JointPosition.WithLabelValues(label).Set(q[i])
		m.JointVelocity.WithLabelValues(label).Set(qdot[i])
	}
}

func jointLabel(names []string, i int) string {
	if i < len(names) && names[i] != "" {
		return names[i]
	}
	return strconv.Itoa(i)
}
