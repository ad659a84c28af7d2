// Package monitor provides a client for the taskstackd admin API and a
// terminal dashboard built on it.
package monitor

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30
)

// Model is the BubbleTea dashboard model.
type Model struct {
	client     *Client
	interval   time.Duration
	lastUpdate time.Time
	snapshot   Snapshot
	err        error
	quitting   bool

	failureProgress progress.Model
}

// Snapshot is one poll of the controller plus the history derived from
// earlier polls.
type Snapshot struct {
	ControllerID string
	Tasks        int
	Primitives   int
	Cycles       uint64
	Failures     uint64
	Telemetry    string
	TaskErrors   []TaskError
	At           time.Time

	// Derived from the previous snapshot.
	CycleRate    float64
	FailureRatio float64

	RateHistory  []float64
	ErrorHistory map[string][]float64
}

// TaskError is the task error norm of one monitored task.
type TaskError struct {
	Name     string
	Priority uint
	Norm     float64
}

// Lipgloss styles (k9s-inspired color scheme)
var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	sparklineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51"))
)

// NewModel creates a dashboard polling client every interval.
func NewModel(client *Client, interval time.Duration) Model {
	return Model{
		client:   client,
		interval: interval,
		failureProgress: progress.New(
			progress.WithGradient("#00ff00", "#ff0000"),
			progress.WithWidth(40),
		),
		snapshot: Snapshot{
			RateHistory:  make([]float64, 0, historySize),
			ErrorHistory: map[string][]float64{},
		},
	}
}

// getStatusBadge returns the overall badge for a failure ratio.
func getStatusBadge(failureRatio float64) string {
	if failureRatio < 0.01 {
		return healthyStyle.Render("✓ HEALTHY")
	} else if failureRatio < 0.1 {
		return warningStyle.Render("⚠ WARN")
	}
	return errorStyle.Render("✗ FAILING")
}

// getErrorBadge grades a task error norm.
func getErrorBadge(norm float64) string {
	if norm < 1e-3 {
		return healthyStyle.Render("[✓]")
	} else if norm < 1e-1 {
		return warningStyle.Render("[~]")
	}
	return errorStyle.Render("[✗]")
}

// appendToHistory appends a value to history, maintaining max size
func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

// createSparkline creates a sparkline chart from historical data
func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}

	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}

	return sparklineStyle.Render(spark.View())
}

type tickMsg time.Time
type snapshotMsg Snapshot
type errMsg error

// Init starts polling.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tick(m.interval),
		fetchSnapshot(m.client),
	)
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// fetchSnapshot polls health and measures.
func fetchSnapshot(client *Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		health, err := client.Health(ctx)
		if err != nil {
			return errMsg(err)
		}
		measures, err := client.Measures(ctx)
		if err != nil {
			return errMsg(err)
		}

		s := Snapshot{
			ControllerID: health.ControllerID,
			Tasks:        health.Counts.Tasks,
			Primitives:   health.Counts.Primitives,
			Telemetry:    "off",
			At:           time.Now(),
		}
		if health.Loop != nil {
			s.Cycles = health.Loop.Cycles
			s.Failures = health.Loop.Failures
		}
		if t := health.Telemetry; t != nil {
			switch {
			case t.Healthy:
				s.Telemetry = "healthy"
			case t.Degraded:
				s.Telemetry = "degraded"
			}
		}
		for _, ms := range measures {
			s.TaskErrors = append(s.TaskErrors, TaskError{Name: ms.Name, Priority: ms.Priority, Norm: norm(ms.E)})
		}
		return snapshotMsg(s)
	}
}

func norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, fetchSnapshot(m.client)
		}

	case tickMsg:
		return m, tea.Batch(
			tick(m.interval),
			fetchSnapshot(m.client),
		)

	case snapshotMsg:
		m.snapshot = m.snapshot.advance(Snapshot(msg))
		m.lastUpdate = m.snapshot.At
		m.err = nil
		return m, nil

	case errMsg:
		m.err = error(msg)
		return m, nil
	}

	return m, nil
}

// advance derives rates from prev and carries the histories forward. Tasks
// that are no longer monitored lose their history.
func (prev Snapshot) advance(next Snapshot) Snapshot {
	if !prev.At.IsZero() && next.At.After(prev.At) && next.Cycles >= prev.Cycles {
		cycles := next.Cycles - prev.Cycles
		next.CycleRate = float64(cycles) / next.At.Sub(prev.At).Seconds()
		if cycles > 0 && next.Failures >= prev.Failures {
			next.FailureRatio = math.Min(1, float64(next.Failures-prev.Failures)/float64(cycles))
		}
	}
	next.RateHistory = appendToHistory(prev.RateHistory, next.CycleRate)
	next.ErrorHistory = make(map[string][]float64, len(next.TaskErrors))
	for _, te := range next.TaskErrors {
		next.ErrorHistory[te.Name] = appendToHistory(prev.ErrorHistory[te.Name], te.Norm)
	}
	sort.Slice(next.TaskErrors, func(i, j int) bool {
		a, b := next.TaskErrors[i], next.TaskErrors[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.Name < b.Name
	})
	return next
}

// View renders the dashboard
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.err != nil {
		return m.renderError()
	}
	return m.renderDashboard()
}

func (m Model) renderError() string {
	header := headerStyle.Render("taskstack Monitor")

	var content string
	content += "\n"
	content += errorStyle.Render("⚠ Cannot reach the controller") + "\n"
	content += "\n"
	content += dimStyle.Render("URL: ") + valueStyle.Render(m.client.BaseURL()) + "\n"
	content += dimStyle.Render("Error: ") + errorStyle.Render(m.err.Error()) + "\n"
	content += "\n"
	content += dimStyle.Render("Please ensure:") + "\n"
	content += dimStyle.Render("  1. taskstackd is running") + "\n"
	content += dimStyle.Render("  2. --server points at its http_host:http_port") + "\n"
	content += "\n"
	content += footerStyle.Render("[q] quit  [r] retry") + "\n"

	return containerStyle.Render(header + "\n" + content)
}

func (m Model) renderDashboard() string {
	s := m.snapshot
	var content string

	lastUpdateStr := "Never"
	if !m.lastUpdate.IsZero() {
		lastUpdateStr = m.lastUpdate.Format("3:04:05 PM")
	}
	controller := s.ControllerID
	if controller == "" {
		controller = "-"
	}

	content += headerStyle.Render(" taskstack Monitor ") + "\n"
	content += fmt.Sprintf("%s   %s %s   %s\n",
		getStatusBadge(s.FailureRatio),
		dimStyle.Render("Controller:"),
		valueStyle.Render(controller),
		dimStyle.Render(lastUpdateStr))

	content += "\n" + sectionStyle.Render("┃ Control Loop") + "\n"
	content += labelStyle.Render("  Rate: ") +
		valueStyle.Render(FormatRate(s.CycleRate)) +
		"   " + createSparkline(s.RateHistory) + "\n"
	content += labelStyle.Render("  Cycles: ") +
		valueStyle.Render(FormatCount(s.Cycles)) +
		labelStyle.Render("  Failures: ") +
		valueStyle.Render(FormatCount(s.Failures)) + "\n"
	content += labelStyle.Render("  Failing: ") +
		m.failureProgress.ViewAs(s.FailureRatio) +
		" " + dimStyle.Render(FormatPercentage(s.FailureRatio)) + "\n"

	content += "\n" + sectionStyle.Render("┃ Registry") + "\n"
	content += labelStyle.Render("  Tasks: ") + valueStyle.Render(fmt.Sprintf("%d", s.Tasks)) +
		labelStyle.Render("  Primitives: ") + valueStyle.Render(fmt.Sprintf("%d", s.Primitives)) +
		labelStyle.Render("  Telemetry: ") + valueStyle.Render(telemetryLabel(s.Telemetry)) + "\n"

	content += "\n" + sectionStyle.Render("┃ Monitored Tasks") + "\n"
	if len(s.TaskErrors) == 0 {
		content += dimStyle.Render("  none") + "\n"
	}
	for _, te := range s.TaskErrors {
		content += labelStyle.Render(fmt.Sprintf("  [%d] %-16s", te.Priority, te.Name)) +
			valueStyle.Render(FormatNorm(te.Norm)) +
			" " + getErrorBadge(te.Norm) +
			"   " + createSparkline(s.ErrorHistory[te.Name]) + "\n"
	}

	footer := footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerKeyStyle.Render("[r]") + footerStyle.Render(" refresh  ") +
		footerStyle.Render(fmt.Sprintf("Auto: %v", m.interval))
	content += "\n" + footer

	return containerStyle.Render(content)
}

func telemetryLabel(state string) string {
	if state == "" {
		return "off"
	}
	return state
}
