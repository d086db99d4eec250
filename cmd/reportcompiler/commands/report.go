package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/hpv-information-centre/reportcompiler/internal/batch"
	"github.com/hpv-information-centre/reportcompiler/internal/compiler"
)

var countOrder = []compiler.Status{
	compiler.StatusComputed,
	compiler.StatusCached,
	compiler.StatusEmpty,
	compiler.StatusFailed,
}

// printReport writes one line per document. Failure details are left to the
// error adapter.
func printReport(w io.Writer, r *batch.Report) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	for _, d := range r.Documents {
		status := green("ok    ")
		if d.Status == batch.StatusFailed {
			status = red("failed")
		}
		line := fmt.Sprintf("%s %s", status, d.Suffix)
		if d.Output != "" {
			line += " -> " + d.Output
		}
		if counts := formatCounts(d.Counts); counts != "" {
			line += " " + faint("("+counts+")")
		}
		fmt.Fprintln(w, line)
	}
	summary := fmt.Sprintf("%d generated, %d failed in %s", r.Succeeded(), r.Failed(), r.Duration.Round(time.Millisecond))
	if r.Failed() > 0 {
		summary = red(summary)
	}
	fmt.Fprintln(w, summary)
}

func formatCounts(counts map[compiler.Status]int) string {
	var parts []string
	for _, s := range countOrder {
		if n := counts[s]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, s))
		}
	}
	return strings.Join(parts, ", ")
}
