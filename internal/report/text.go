package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numberStyle = cellStyle.Align(lipgloss.Right)
)

// TextWriter renders aligned tables for a terminal.
type TextWriter struct{}

func (TextWriter) Write(w io.Writer, r Report) error {
	snap := r.Snapshot
	rows := Rows(snap)

	functions := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Type", "Name", "Calls", "Self", "Self %", "Total", "Total %", "Average").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col >= 2:
				return numberStyle
			default:
				return cellStyle
			}
		})
	for _, row := range rows {
		functions.Row(
			row.Function.Kind.String(),
			row.Function.Name,
			strconv.FormatInt(row.Calls, 10),
			row.Self.String(),
			fmt.Sprintf("%.2f", row.SelfPercent),
			row.Total.String(),
			fmt.Sprintf("%.2f", row.TotalPercent),
			row.Average.String(),
		)
	}

	title := fmt.Sprintf("Profile of %q", r.Script)
	if _, err := fmt.Fprintf(w, "%s\nGenerated %s, profiled for %s\n\n%s\n",
		titleStyle.Render(title), r.Generated.Format("2006-01-02 15:04:05"), snap.Elapsed, functions.Render()); err != nil {
		return err
	}

	if snap.CallGraphEnabled {
		edges := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("Caller", "Callee", "Calls", "Total").
			StyleFunc(func(row, col int) lipgloss.Style {
				switch {
				case row == table.HeaderRow:
					return headerStyle
				case col >= 2:
					return numberStyle
				default:
					return cellStyle
				}
			})
		for _, e := range snap.Edges() {
			edges.Row(callerName(e), e.Callee.Name, strconv.FormatInt(e.NumCalls, 10), e.TotalTime.String())
		}
		if _, err := fmt.Fprintf(w, "\n%s\n%s\n", titleStyle.Render("Call graph"), edges.Render()); err != nil {
			return err
		}
	}

	if a := snap.Anomalies; a.Total() > 0 {
		_, err := fmt.Fprintf(w, "\nAnomalies: %d desync, %d unmatched leave, %d clock, %d force closed, %d discarded\n",
			a.Desyncs, a.UnmatchedLeaves, a.ClockAnomalies, a.ForceClosed, a.Discarded)
		return err
	}
	return nil
}
