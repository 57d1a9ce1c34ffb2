// Package report renders the run summary as a human-readable table.
// Rendering is pure formatting; it plays no part in the pass/fail
// decision.
package report

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/sweeney/powerdraw/internal/harness"
)

// Render returns the summary table for one run: a row per roster entry
// with its own expected/attributed watts and message counts, followed by
// the ambient baseline.
func Render(result *harness.RunResult) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("PROCESS", "EXPECTED (W)", "MEASURED (W)", "MSGS EXPECTED", "MSGS RECEIVED")

	for _, r := range result.Results {
		t.Row(
			r.Name,
			fmt.Sprintf("%.2f", r.ExpectedPower),
			fmt.Sprintf("%.2f", r.AttributedPower),
			strconv.Itoa(r.MsgsExpected),
			strconv.Itoa(r.MsgsReceived),
		)
	}

	return t.String() + fmt.Sprintf("\nBaseline %.2fW\n", result.Baseline)
}

// RenderFailures returns one line per violated check, or a pass marker
// when there are none.
func RenderFailures(failures []harness.Failure) string {
	if len(failures) == 0 {
		return "all checks passed\n"
	}
	out := ""
	for _, f := range failures {
		out += "FAIL " + f.String() + "\n"
	}
	return out
}
