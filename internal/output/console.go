package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"teststand/internal/record"
)

// ConsoleSummary prints a human-readable run summary: one header line plus a
// table of phases and their measurements.
type ConsoleSummary struct {
	Out io.Writer
}

// NewConsoleSummary prints to stdout.
func NewConsoleSummary() *ConsoleSummary {
	return &ConsoleSummary{Out: os.Stdout}
}

func (c *ConsoleSummary) Name() string { return "console" }

func (c *ConsoleSummary) Handle(rec *record.TestRecord) error {
	fmt.Fprintf(c.Out, "\n%s DUT %s on %s: %s\n",
		outcomeIcon(rec.Outcome),
		rec.DUTID,
		rec.StationID,
		colorOutcome(string(rec.Outcome)))
	for _, detail := range rec.OutcomeDetails {
		fmt.Fprintf(c.Out, "   %s\n", detail)
	}

	t := table.NewWriter()
	t.SetOutputMirror(c.Out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("PHASE"),
		text.FgHiCyan.Sprint("OUTCOME"),
		text.FgHiCyan.Sprint("MEASUREMENTS"),
	})
	for _, p := range rec.Phases {
		t.AppendRow(table.Row{
			p.Name,
			colorOutcome(string(p.Outcome)),
			summarizeMeasurements(p),
		})
	}
	t.Render()

	if len(rec.Diagnoses) > 0 {
		fmt.Fprintln(c.Out, "Diagnoses:")
		for _, d := range rec.Diagnoses {
			marker := "•"
			if d.IsFailure {
				marker = text.FgRed.Sprint("✗")
			}
			fmt.Fprintf(c.Out, "  %s %s: %s\n", marker, d.Result, d.Description)
		}
	}
	return nil
}

func summarizeMeasurements(p *record.PhaseRecord) string {
	if len(p.Measurements) == 0 {
		return ""
	}
	names := make([]string, 0, len(p.Measurements))
	for name := range p.Measurements {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		m := p.Measurements[name]
		s := fmt.Sprintf("%s=%v [%s]", m.Name, m.MeasuredValue, m.Outcome)
		if m.Marginal {
			s += " (marginal)"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n")
}

func outcomeIcon(o record.TestOutcome) string {
	switch o {
	case record.TestPass:
		return "✅"
	case record.TestFail:
		return "❌"
	case record.TestAborted:
		return "🛑"
	default:
		return "⚠️"
	}
}

func colorOutcome(o string) string {
	switch o {
	case "PASS":
		return text.FgGreen.Sprint(o)
	case "FAIL":
		return text.FgRed.Sprint(o)
	case "SKIP":
		return text.FgYellow.Sprint(o)
	default:
		return text.FgHiRed.Sprint(o)
	}
}
