package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hylla/opportune/internal/app"
	"github.com/hylla/opportune/internal/domain"
	"github.com/hylla/opportune/internal/tui"
)

var (
	tableBorderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230"))
	sectionStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json output: %w", err)
	}
	return nil
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(tableBorderStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
}

func (rt *runtime) revenueFormatter() tui.RevenueFormatter {
	return tui.NewRevenueFormatter(rt.cfg.UI.Locale, rt.cfg.UI.Currency)
}

func opportunityTable(items []domain.Opportunity, revenue tui.RevenueFormatter) string {
	if len(items) == 0 {
		return "no opportunities"
	}
	t := newTable("ID", "Title", "Customer", "Status", "Priority", "ARR", "Updated")
	for _, o := range items {
		t.Row(
			o.ID,
			o.Title,
			o.Customer.Name,
			o.Status.Label(),
			string(o.Priority),
			revenue(o.AnnualRecurringRevenue),
			o.UpdatedAt.Format(time.DateOnly),
		)
	}
	return t.String()
}

func statusLedgerTable(records []domain.StatusRecord) string {
	t := newTable("#", "At", "Status", "Actor", "Reason")
	for _, r := range records {
		t.Row(strconv.FormatInt(r.Seq, 10), r.At.Format(time.RFC3339), r.Status.Label(), r.ActorID, r.Reason)
	}
	return sectionStyle.Render("Status history") + "\n" + t.String()
}

func changeLedgerTable(records []domain.ChangeRecord) string {
	t := newTable("#", "At", "Field", "Old", "New", "Actor", "Reason")
	for _, r := range records {
		t.Row(strconv.FormatInt(r.Seq, 10), r.At.Format(time.RFC3339), r.Field, r.OldValue, r.NewValue, r.ActorID, r.Reason)
	}
	return sectionStyle.Render("Field changes") + "\n" + t.String()
}

func dashboardView(d app.Dashboard, revenue tui.RevenueFormatter) string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render("Pipeline for "+d.SalesManagerID) + "\n")
	fmt.Fprintf(&b, "total: %d  pipeline: %s  all-time: %s\n", d.Total, revenue(d.PipelineRevenue), revenue(d.TotalRevenue))

	counts := newTable("Status", "Count")
	for _, s := range domain.Statuses() {
		counts.Row(s.Label(), strconv.Itoa(d.CountsByStatus[s]))
	}
	b.WriteString(counts.String() + "\n")

	if len(d.NeedsAttention) > 0 {
		attention := newTable("ID", "Title", "Status", "Reason", "Since")
		for _, item := range d.NeedsAttention {
			attention.Row(item.OpportunityID, item.Title, item.Status.Label(), string(item.Reason), item.Since.Format(time.DateOnly))
		}
		b.WriteString(sectionStyle.Render("Needs attention") + "\n" + attention.String() + "\n")
	}
	if len(d.RecentlyUpdated) > 0 {
		b.WriteString(sectionStyle.Render("Recently updated") + "\n" + opportunityTable(d.RecentlyUpdated, revenue))
	}
	return strings.TrimRight(b.String(), "\n")
}

// describeViolations expands a validation failure into one line per violation.
func describeViolations(err error) error {
	violations := domain.Violations(err)
	if len(violations) < 2 {
		return err
	}
	return fmt.Errorf("%w\n  - %s", err, strings.Join(violations, "\n  - "))
}
