package compare

import (
	"fmt"
	"strings"
)

const (
	green  = "\033[92m"
	yellow = "\033[93m"
	red    = "\033[91m"
	reset  = "\033[0m"
)

type palette struct{ added, modified, removed, reset string }

func newPalette(color bool) palette {
	if !color {
		return palette{}
	}
	return palette{added: green, modified: yellow, removed: red, reset: reset}
}

// FormatReport renders result for humans. ANSI colors are used when color is
// set.
func FormatReport(result *Result, color bool) string {
	if !result.HasChanges() {
		return "No changes detected.\n"
	}

	p := newPalette(color)
	var report strings.Builder
	report.WriteString("Changes detected:\n\n")

	if len(result.Added) > 0 {
		fmt.Fprintf(&report, "%sADDED (%d files):%s\n", p.added, len(result.Added), p.reset)
		for _, change := range result.Added {
			fmt.Fprintf(&report, "  %s+ %s%s (hash: %s)\n", p.added, change.Path, p.reset, change.New)
		}
		report.WriteString("\n")
	}

	if len(result.Modified) > 0 {
		fmt.Fprintf(&report, "%sMODIFIED (%d files):%s\n", p.modified, len(result.Modified), p.reset)
		for _, change := range result.Modified {
			fmt.Fprintf(&report, "  %s~ %s%s\n", p.modified, change.Path, p.reset)
			fmt.Fprintf(&report, "    Old: hash=%s\n", change.Old)
			fmt.Fprintf(&report, "    New: hash=%s\n", change.New)
		}
		report.WriteString("\n")
	}

	if len(result.Removed) > 0 {
		fmt.Fprintf(&report, "%sREMOVED (%d files):%s\n", p.removed, len(result.Removed), p.reset)
		for _, change := range result.Removed {
			fmt.Fprintf(&report, "  %s- %s%s (hash: %s)\n", p.removed, change.Path, p.reset, change.Old)
		}
		report.WriteString("\n")
	}

	fmt.Fprintf(&report, "Summary: %d added, %d modified, %d removed, %d unchanged\n",
		len(result.Added), len(result.Modified), len(result.Removed), len(result.Unchanged))

	return report.String()
}
