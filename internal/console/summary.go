package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/xkilldash9x/autotiss/internal/cycle"
	"github.com/xkilldash9x/autotiss/internal/shell"
)

// FormatSummary renders the end-of-cycle block: counts, then every failure
// and warning.
func FormatSummary(sum cycle.Summary) string {
	var b strings.Builder
	title := fmt.Sprintf("Cycle %s finished", sum.Label)
	if sum.Interrupted {
		title = fmt.Sprintf("Cycle %s interrupted", sum.Label)
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")
	fmt.Fprintf(&b, "  %s  %s  %s  %s\n",
		okStyle.Render(fmt.Sprintf("applied %d", sum.Applied)),
		mutedStyle.Render(fmt.Sprintf("unchanged %d", sum.Unchanged)),
		mutedStyle.Render(fmt.Sprintf("skipped %d", sum.Skipped)),
		failedStyle(sum.Failed).Render(fmt.Sprintf("failed %d", sum.Failed)))
	if sum.Requeued > 0 {
		fmt.Fprintf(&b, "  requeued %d, recovered %d\n", sum.Requeued, sum.Recovered)
	}
	for _, o := range sum.Failures() {
		fmt.Fprintf(&b, "  %s %s: %v\n", errStyle.Render("✗"), o.Entity, o.Err)
	}
	for _, o := range sum.Outcomes {
		for _, w := range o.Warnings {
			fmt.Fprintf(&b, "  %s %s: %s\n", warnStyle.Render("!"), o.Entity, w)
		}
	}
	return b.String()
}

func failedStyle(n int) lipgloss.Style {
	if n > 0 {
		return errStyle
	}
	return mutedStyle
}

// ShowSummary prints FormatSummary.
func (c *Console) ShowSummary(sum cycle.Summary) {
	c.printf("%s", FormatSummary(sum))
}

// ShowContainers prints the containers that could not be entered.
func (c *Console) ShowContainers(report shell.Report) {
	skipped := report.Skipped()
	c.Notice("%d container(s) visited, %d skipped.", len(report.Results), len(skipped))
	for _, r := range skipped {
		c.printf("  %s %s: %v\n", errStyle.Render("✗"), r.Container, r.Err)
	}
}
