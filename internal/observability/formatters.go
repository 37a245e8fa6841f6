// Package observability provides logging setup and formatted output for the CLI.
package observability

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jonathan/ad-dashboard/internal/dashboard"
	"github.com/jonathan/ad-dashboard/internal/progress"
	"github.com/jonathan/ad-dashboard/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// barWidth is the number of cells in a progress bar
	barWidth = 20
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 10
)

// Printer handles formatted output for the CLI
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// truncate shortens s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(title, boxWidth-4))
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// ProgressBar renders percent as a bar of barWidth cells.
func ProgressBar(percent int) string {
	percent = max(0, min(100, percent))
	filled := percent * barWidth / 100
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled) + "]"
}

func stepIcon(s progress.StepState) string {
	switch s {
	case progress.StepCompleted:
		return "✓"
	case progress.StepActive:
		return "●"
	case progress.StepFailed:
		return "✗"
	default:
		return "○"
	}
}

// PrintProgressLine prints a one-line progress update.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintProgressLine(snap progress.Snapshot) {
	fmt.Fprintf(p.out, "%s %s %3d%%  %s\n", shortID(snap.RunID), ProgressBar(snap.Percent), snap.Percent, snap.CurrentStep)
}

// PrintSteps outputs the full step list of a job.
func (p *Printer) PrintSteps(snap progress.Snapshot) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s %d%%\n", ProgressBar(snap.Percent), snap.Percent))
	if snap.StepNumber > 0 {
		sb.WriteString(fmt.Sprintf("Step %d of %d: %s\n", snap.StepNumber, progress.StageCount, snap.CurrentStep))
	} else {
		sb.WriteString(snap.CurrentStep + "\n")
	}
	sb.WriteString("\n")
	for _, step := range snap.Steps {
		sb.WriteString(fmt.Sprintf("%s %s\n", stepIcon(step.State), step.Name))
		if step.State == progress.StepActive {
			sb.WriteString(fmt.Sprintf("  %s\n", step.Description))
		}
	}

	p.printBox("GENERATION PROGRESS "+shortID(snap.RunID), strings.TrimSuffix(sb.String(), "\n"))
}

// PrintWarning prints a transient problem without interrupting progress output.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintWarning(format string, args ...any) {
	fmt.Fprintf(p.out, "! "+format+"\n", args...)
}

// PrintResult prints how tracking a run ended.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintResult(runID, videoURI string, err error) {
	if err != nil {
		fmt.Fprintf(p.out, "✗ %s  %v\n", shortID(runID), err)
		return
	}
	fmt.Fprintf(p.out, "✓ %s  ready: %s\n", shortID(runID), videoURI)
}

// PrintAd outputs the details of one ad.
func (p *Printer) PrintAd(ad *types.Ad, videoURL string) {
	if ad == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run ID:   %s\n", ad.RunID))
	sb.WriteString(fmt.Sprintf("Name:     %s\n", ad.Name))
	sb.WriteString(fmt.Sprintf("Status:   %s\n", ad.Status))
	sb.WriteString(fmt.Sprintf("Created:  %s\n", formatTime(ad.CreatedAt)))
	sb.WriteString(fmt.Sprintf("Updated:  %s\n", formatTime(ad.UpdatedAt)))
	if uri := ad.VideoURI(); uri != "" {
		sb.WriteString(fmt.Sprintf("Video:    %s\n", uri))
	}
	if videoURL != "" {
		sb.WriteString(fmt.Sprintf("Play:     %s\n", videoURL))
	}
	sb.WriteString("\n")
	for _, line := range wrap(ad.Desc, boxWidth-4) {
		sb.WriteString(line + "\n")
	}

	p.printBox("ADVERTISEMENT", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintAds outputs a listing of ads.
func (p *Printer) PrintAds(title string, ads []types.Ad) {
	var sb strings.Builder
	if len(ads) == 0 {
		sb.WriteString("No ads yet.")
		p.printBox(title, sb.String())
		return
	}

	count := min(len(ads), maxItemsToShow)
	for i := 0; i < count; i++ {
		ad := ads[i]
		sb.WriteString(fmt.Sprintf("%-11s %s  %s\n", ad.Status, shortID(ad.RunID), truncate(ad.Name, 24)))
	}
	if len(ads) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("... and %d more\n", len(ads)-maxItemsToShow))
	}

	p.printBox(title, strings.TrimSuffix(sb.String(), "\n"))
}

// PrintStats outputs the dashboard counters.
func (p *Printer) PrintStats(stats dashboard.Stats) {
	content := fmt.Sprintf("Total:        %d\nIn progress:  %d\nGenerated:    %d\nFailed:       %d",
		stats.Total, stats.InProgress, stats.Generated, stats.Failed)
	p.printBox("YOUR ADS", content)
}

// PrintOverview outputs the dashboard page.
func (p *Printer) PrintOverview(o *dashboard.Overview) {
	if o == nil {
		return
	}
	if o.User != nil {
		p.PrintUser(o.User)
	}
	p.PrintStats(o.Stats)
	p.PrintAds("RECENT ADS", o.Recent)
}

// PrintUser outputs the user's profile.
func (p *Printer) PrintUser(u *types.User) {
	if u == nil {
		return
	}
	content := fmt.Sprintf("Name:   %s\nEmail:  %s\nRole:   %s", u.FullName, u.Email, u.Role)
	p.printBox("ACCOUNT", content)
}

// shortID returns the first block of a UUID.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return truncate(id, 8)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

// wrap splits text into lines of at most width runes on word boundaries.
func wrap(text string, width int) []string {
	var lines []string
	var line strings.Builder
	for _, word := range strings.Fields(text) {
		if line.Len() > 0 && len([]rune(line.String()))+1+len([]rune(word)) > width {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return lines
}
