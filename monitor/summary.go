package monitor

import (
	"fmt"
	"io"
	"strings"

	"fimon/risk"
	"fimon/snapshot"
)

// PrintSummary writes the human-readable comparison report for one cycle.
func PrintSummary(w io.Writer, cs snapshot.ChangeSet, assessments map[string]risk.Assessment) {
	if w == nil {
		return
	}
	fmt.Fprintln(w, "\nComparison Report:")
	fmt.Fprintln(w, "------------------")
	printSection(w, "Modified", cs.Modified, assessments)
	printSection(w, "Deleted", cs.Deleted, assessments)
	printSection(w, "New", cs.New, assessments)
}

func printSection(w io.Writer, title string, paths []string, assessments map[string]risk.Assessment) {
	if len(paths) == 0 {
		fmt.Fprintf(w, "No %s files.\n", strings.ToLower(title))
		return
	}
	fmt.Fprintf(w, "%s files (%d):\n", title, len(paths))
	for _, p := range paths {
		a, ok := assessments[p]
		switch {
		case !ok:
			fmt.Fprintf(w, " - %s\n", p)
		case a.HighRisk:
			fmt.Fprintf(w, " - %s  [%s risk %.2f, HIGH RISK]\n", p, a.Level, a.Score)
		default:
			fmt.Fprintf(w, " - %s  [%s risk %.2f]\n", p, a.Level, a.Score)
		}
	}
}
