package alert

import (
	"fmt"
	"strings"
	"time"

	"fimon/risk"
	"fimon/snapshot"
)

// Render builds the message for a change set. Withheld counts changes that
// still differ from the baseline but were filtered out of cs, as with
// critical-only alerting. Assessments may be nil when risk scoring is off.
func Render(subject, host, root string, at time.Time, cs snapshot.ChangeSet, withheld int, assessments map[string]risk.Assessment) Message {
	msg := Message{
		Subject:     subject,
		Host:        host,
		Root:        root,
		At:          at,
		Changes:     cs,
		Withheld:    withheld,
		Assessments: assessments,
	}
	if msg.Subject == "" {
		msg.Subject = "File integrity alert"
	}

	var b strings.Builder
	if msg.AllClear() {
		msg.Subject += ": all clear"
		fmt.Fprintf(&b, "All monitored files under %s match the baseline again.\n", root)
		fmt.Fprintf(&b, "Host: %s\nTime: %s\n", host, at.Format(time.RFC3339))
		msg.Body = b.String()
		return msg
	}
	if cs.Empty() {
		msg.Subject += fmt.Sprintf(": no high-risk changes remain (%d lower-risk changes present)", withheld)
		fmt.Fprintf(&b, "No high-risk changes remain under %s.\n", root)
		fmt.Fprintf(&b, "%d lower-risk changes still differ from the baseline.\n", withheld)
		fmt.Fprintf(&b, "Host: %s\nTime: %s\n", host, at.Format(time.RFC3339))
		msg.Body = b.String()
		return msg
	}

	msg.Subject += fmt.Sprintf(": %d modified, %d new, %d deleted", len(cs.Modified), len(cs.New), len(cs.Deleted))
	fmt.Fprintf(&b, "File integrity changes detected under %s\n", root)
	fmt.Fprintf(&b, "Host: %s\nTime: %s\n", host, at.Format(time.RFC3339))
	if high := countHighRisk(assessments); high > 0 {
		fmt.Fprintf(&b, "High risk changes: %d\n", high)
	}
	writeSection(&b, "Modified", cs.Modified, assessments)
	writeSection(&b, "New", cs.New, assessments)
	writeSection(&b, "Deleted", cs.Deleted, assessments)
	msg.Body = b.String()
	return msg
}

func writeSection(b *strings.Builder, title string, paths []string, assessments map[string]risk.Assessment) {
	if len(paths) == 0 {
		fmt.Fprintf(b, "\n%s: none\n", title)
		return
	}
	fmt.Fprintf(b, "\n%s (%d):\n", title, len(paths))
	for _, p := range paths {
		if a, ok := assessments[p]; ok {
			fmt.Fprintf(b, "  - %s [%s %.2f]\n", p, a.Level, a.Score)
			continue
		}
		fmt.Fprintf(b, "  - %s\n", p)
	}
}

func countHighRisk(assessments map[string]risk.Assessment) int {
	n := 0
	for _, a := range assessments {
		if a.HighRisk {
			n++
		}
	}
	return n
}
