package orchestrator

import (
	"fmt"
	"io"
	"strings"

	"merkle-diff/internal/compare"
)

func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// WriteReport prints the human-readable summary of a successful run.
func WriteReport(w io.Writer, o *Outcome, color bool) error {
	ew := &errWriter{w: w}

	ew.printf("Scanned directory: %s\n", o.Dir)
	ew.printf("  Files: %d (%s)\n", o.Files, formatSize(o.Bytes))
	ew.printf("  Algorithm: %s\n", o.Algorithm)
	ew.printf("  Root hash: %s\n\n", o.Root)
	if len(o.Unstable) > 0 {
		ew.printf("Warning: %d files changed size while being scanned: %s\n\n",
			len(o.Unstable), strings.Join(o.Unstable, ", "))
	}

	if o.Baseline == nil {
		ew.printf("No previous snapshot found; no baseline to compare against.\n")
	} else {
		ew.printf("Compared with previous snapshot (root: %s)\n\n", o.Baseline.Root)
		ew.printf("%s", compare.FormatReport(o.Diff, color))
	}

	if len(o.Certificates) > 0 {
		moved := 0
		for i := range o.Certificates {
			if !o.Certificates[i].SamePosition() {
				moved++
			}
		}
		ew.printf("Certified %d unchanged files against both roots (%d at a new leaf position)\n",
			len(o.Certificates), moved)
	}

	if o.Persisted {
		ew.printf("\n✓ Snapshot saved: %s\n", o.SnapshotPath)
	} else {
		ew.printf("\nDry run: snapshot not written (%s)\n", o.SnapshotPath)
	}
	return ew.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
