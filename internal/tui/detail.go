package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/hylla/opportune/internal/domain"
)

// markdownRenderer renders markdown and rebuilds the glamour renderer when the wrap width changes.
type markdownRenderer struct {
	width    int
	renderer *glamour.TermRenderer
}

func (r *markdownRenderer) render(markdown string, width int) string {
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return ""
	}
	wrapWidth := max(width, 24)
	if r.renderer == nil || r.width != wrapWidth {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(wrapWidth),
		)
		if err != nil {
			return markdown
		}
		r.renderer = renderer
		r.width = wrapWidth
	}
	rendered, err := r.renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.TrimRight(rendered, "\n")
}

// opportunityMarkdown describes one opportunity, including its status ledger.
func opportunityMarkdown(o domain.Opportunity, revenue RevenueFormatter) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", o.Title)
	fmt.Fprintf(&b, "- **id:** `%s`\n", o.ID)
	fmt.Fprintf(&b, "- **status:** %s\n", o.Status.Label())
	fmt.Fprintf(&b, "- **customer:** %s\n", o.Customer.Name)
	fmt.Fprintf(&b, "- **priority:** %s\n", o.Priority)
	if revenue != nil {
		fmt.Fprintf(&b, "- **annual recurring revenue:** %s\n", revenue(o.AnnualRecurringRevenue))
	}
	fmt.Fprintf(&b, "- **region:** %s", o.Geo.RegionName)
	if o.Geo.AllowsRemoteWork {
		b.WriteString(" (remote ok)")
	}
	b.WriteString("\n")
	if o.SelectedArchitectID != "" {
		fmt.Fprintf(&b, "- **architect:** %s\n", o.SelectedArchitectID)
	}
	if o.Status == domain.StatusCancelled && o.ReactivationDeadline != nil {
		fmt.Fprintf(&b, "- **reactivate before:** %s\n", o.ReactivationDeadline.Format("2006-01-02"))
	}

	b.WriteString("\n")
	b.WriteString(o.Description)
	b.WriteString("\n")

	if o.ProblemStatement != nil {
		b.WriteString("\n## Problem statement\n\n")
		b.WriteString(o.ProblemStatement.Content)
		b.WriteString("\n")
		for _, a := range o.ProblemStatement.Attachments {
			fmt.Fprintf(&b, "- %s (%s)\n", a.FileName, a.ContentType)
		}
	}
	if len(o.Skills) > 0 {
		b.WriteString("\n## Skills\n\n")
		for _, s := range o.Skills {
			fmt.Fprintf(&b, "- %s: %s, %s\n", s.SkillName, s.Importance, s.MinimumProficiency)
		}
	}
	if o.Timeline != nil {
		fmt.Fprintf(&b, "\n## Timeline\n\n%s to %s\n", o.Timeline.Start.Format("2006-01-02"), o.Timeline.End.Format("2006-01-02"))
	}
	if len(o.StatusHistory) > 0 {
		b.WriteString("\n## History\n\n")
		for _, rec := range o.StatusHistory {
			fmt.Fprintf(&b, "- %s **%s** by %s", rec.At.Format("2006-01-02 15:04"), rec.Status.Label(), rec.ActorID)
			if rec.Reason != "" {
				fmt.Fprintf(&b, ": %s", rec.Reason)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// RenderOpportunity renders the detail markdown of o for a terminal of the given width.
// A nil revenue formatter hides the revenue line.
func RenderOpportunity(o domain.Opportunity, revenue RevenueFormatter, width int) string {
	var r markdownRenderer
	return r.render(opportunityMarkdown(o, revenue), width)
}
