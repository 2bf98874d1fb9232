package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"aegis/internal/domain"
)

// CLI renders engine state for the command line
type CLI struct {
	out io.Writer
}

// NewCLI writes to stdout when out is nil
func NewCLI(out io.Writer) *CLI {
	if out == nil {
		out = os.Stdout
	}
	return &CLI{out: out}
}

func (c *CLI) table() *tabwriter.Writer {
	return tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
}

// PrintList displays one list with its enabled flags
func (c *CLI) PrintList(kind domain.ListKind, entries []domain.ListEntry) error {
	if len(entries) == 0 {
		fmt.Fprintf(c.out, "The %s list is empty\n", kind)
		return nil
	}

	w := c.table()
	fmt.Fprintln(w, "PATTERN\tENABLED")
	fmt.Fprintln(w, "-------\t-------")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%v\n", e.Pattern, e.Enabled)
	}
	return w.Flush()
}

// PrintHistory displays history records oldest first
func (c *CLI) PrintHistory(records []domain.HistoryRecord) error {
	if len(records) == 0 {
		fmt.Fprintln(c.out, "No detections recorded")
		return nil
	}

	w := c.table()
	fmt.Fprintln(w, "ID\tTIME\tSEVERITY\tTHREAT\tACTION\tSUBJECT")
	fmt.Fprintln(w, "--\t----\t--------\t------\t------\t-------")
	for _, r := range records {
		action := r.Verdict.Action.String()
		if r.AutoRemediated {
			action += " (auto)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			r.RecordedAt.Format(time.DateTime),
			r.Verdict.Severity,
			r.Verdict.Name,
			action,
			subject(r.Event),
		)
	}
	return w.Flush()
}

// PrintDetection shows one detection in full
func (c *CLI) PrintDetection(det domain.Detection) {
	fmt.Fprintf(c.out, "Detection %s:\n", det.ID)
	fmt.Fprintf(c.out, "  Threat:       %s\n", det.Verdict.Name)
	fmt.Fprintf(c.out, "  Severity:     %s\n", det.Verdict.Severity)
	fmt.Fprintf(c.out, "  Description:  %s\n", det.Verdict.Description)
	fmt.Fprintf(c.out, "  Action:       %s\n", det.Verdict.Action)
	fmt.Fprintf(c.out, "  Auto:         %v\n", det.AutoRemediated)
	fmt.Fprintf(c.out, "  Event:        %s\n", det.Event.Kind)
	fmt.Fprintf(c.out, "  PID:          %d\n", det.Event.ProcessID)
	fmt.Fprintf(c.out, "  Subject:      %s\n", subject(det.Event))
	fmt.Fprintf(c.out, "  Time:         %s\n", det.Event.Timestamp.Format(time.RFC3339))
}

// PrintSettings displays the protection toggles in persisted order
func (c *CLI) PrintSettings(s domain.Settings) error {
	w := c.table()
	fmt.Fprintln(w, "SETTING\tENABLED")
	fmt.Fprintln(w, "-------\t-------")
	for _, name := range domain.SettingNames {
		value, _ := s.Get(name)
		fmt.Fprintf(w, "%s\t%v\n", name, value)
	}
	return w.Flush()
}

// PrintStats displays a GetStats map with sorted keys
func (c *CLI) PrintStats(title string, stats map[string]interface{}) error {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(c.out, "%s:\n", title)
	w := c.table()
	for _, k := range keys {
		fmt.Fprintf(w, "  %s\t%v\n", k, stats[k])
	}
	return w.Flush()
}

func subject(ev domain.ThreatEvent) string {
	switch {
	case ev.FilePath != "" && ev.TargetProcess != "":
		return ev.FilePath + " -> " + ev.TargetProcess
	case ev.FilePath != "":
		return ev.FilePath
	case ev.TargetProcess != "":
		return ev.TargetProcess
	}
	return fmt.Sprintf("pid %d", ev.ProcessID)
}
