package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	api "github.com/fyrsmithlabs/taskstack/internal/http"
	"github.com/fyrsmithlabs/taskstack/internal/manager"
	"github.com/fyrsmithlabs/taskstack/internal/task"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	dimCellStyle = cellStyle.
			Foreground(lipgloss.Color("245"))

	borderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238"))
)

// newTable returns a table with the shared look. Rows whose first column is
// in dim are greyed out.
func newTable(headers []string, rows [][]string, dim map[int]bool) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case dim[row]:
				return dimCellStyle
			default:
				return cellStyle
			}
		})
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func floats(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'g', 4, 64)
	}
	return strings.Join(parts, " ")
}

// tasksTable renders tasks; inactive tasks are dimmed.
func tasksTable(tasks []manager.TaskInfo) string {
	rows := make([][]string, 0, len(tasks))
	dim := map[int]bool{}
	for i, t := range tasks {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(t.Priority), 10),
			t.Name,
			yesNo(t.Active),
			yesNo(t.Monitored),
			strconv.Itoa(t.Rows),
			strings.Join(t.Definition, " "),
			strings.Join(t.Dynamics, " "),
		})
		if !t.Active {
			dim[i] = true
		}
	}
	return newTable([]string{"PRIO", "NAME", "ACTIVE", "MONITORED", "ROWS", "DEFINITION", "DYNAMICS"}, rows, dim).String()
}

// primitivesTable renders primitives; hidden ones are dimmed.
func primitivesTable(prims []api.PrimitiveInfo) string {
	rows := make([][]string, 0, len(prims))
	dim := map[int]bool{}
	for i, p := range prims {
		rows = append(rows, []string{
			p.Name,
			p.Kind,
			p.Frame,
			yesNo(p.Visible),
			floats(p.Params),
		})
		if !p.Visible {
			dim[i] = true
		}
	}
	return newTable([]string{"NAME", "KIND", "FRAME", "VISIBLE", "PARAMS"}, rows, dim).String()
}

// measuresTable renders task measures.
func measuresTable(measures []task.Measures) string {
	rows := make([][]string, 0, len(measures))
	for _, m := range measures {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(m.Priority), 10),
			m.Name,
			floats(m.E),
			floats(m.EDotStar),
			fmt.Sprintf("%s | %s", floats(m.Definition), floats(m.Dynamics)),
		})
	}
	return newTable([]string{"PRIO", "NAME", "E", "E_DOT*", "MEASURES (DEF | DYN)"}, rows, nil).String()
}
