package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// FieldUpdate is one typed change to a mutable opportunity field.
// The set of implementations is closed to this package.
type FieldUpdate interface {
	// Field names the ledger field the update writes.
	Field() string
	validate() []string
	current(o *Opportunity) string
	apply(o *Opportunity) string
}

// TitleUpdate replaces the title.
type TitleUpdate struct{ Title string }

func (TitleUpdate) Field() string { return "title" }

func (u TitleUpdate) validate() []string {
	if strings.TrimSpace(u.Title) == "" {
		return []string{"title is required"}
	}
	return nil
}

func (TitleUpdate) current(o *Opportunity) string { return o.Title }

func (u TitleUpdate) apply(o *Opportunity) string {
	o.Title = strings.TrimSpace(u.Title)
	return o.Title
}

// DescriptionUpdate replaces the description.
type DescriptionUpdate struct{ Description string }

func (DescriptionUpdate) Field() string { return "description" }

func (u DescriptionUpdate) validate() []string {
	if strings.TrimSpace(u.Description) == "" {
		return []string{"description is required"}
	}
	return nil
}

func (DescriptionUpdate) current(o *Opportunity) string { return summarize(o.Description) }

func (u DescriptionUpdate) apply(o *Opportunity) string {
	o.Description = strings.TrimSpace(u.Description)
	return summarize(o.Description)
}

// PriorityUpdate replaces the priority.
type PriorityUpdate struct{ Priority Priority }

func (PriorityUpdate) Field() string { return "priority" }

func (u PriorityUpdate) validate() []string {
	p := Priority(strings.ToLower(strings.TrimSpace(string(u.Priority))))
	if p == "" {
		return []string{"priority is required"}
	}
	return ValidatePriority(p)
}

func (PriorityUpdate) current(o *Opportunity) string { return string(o.Priority) }

func (u PriorityUpdate) apply(o *Opportunity) string {
	o.Priority = Priority(strings.ToLower(strings.TrimSpace(string(u.Priority))))
	return string(o.Priority)
}

// RevenueUpdate replaces the annual recurring revenue.
type RevenueUpdate struct{ AnnualRecurringRevenue float64 }

func (RevenueUpdate) Field() string { return "annual_recurring_revenue" }

func (u RevenueUpdate) validate() []string { return ValidateRevenue(u.AnnualRecurringRevenue) }

func (RevenueUpdate) current(o *Opportunity) string { return formatMoney(o.AnnualRecurringRevenue) }

func (u RevenueUpdate) apply(o *Opportunity) string {
	o.AnnualRecurringRevenue = roundCents(u.AnnualRecurringRevenue)
	return formatMoney(o.AnnualRecurringRevenue)
}

// GeoUpdate replaces the geographic requirement.
type GeoUpdate struct{ Geo GeoRequirement }

func (GeoUpdate) Field() string { return "geo" }

func (u GeoUpdate) validate() []string { return ValidateGeo(u.Geo) }

func (GeoUpdate) current(o *Opportunity) string { return formatGeo(o.Geo) }

func (u GeoUpdate) apply(o *Opportunity) string {
	o.Geo = normalizeGeo(u.Geo)
	return formatGeo(o.Geo)
}

// CustomerUpdate replaces the customer reference.
type CustomerUpdate struct{ Customer Customer }

func (CustomerUpdate) Field() string { return "customer" }

func (u CustomerUpdate) validate() []string { return ValidateCustomer(u.Customer) }

func (CustomerUpdate) current(o *Opportunity) string { return formatCustomer(o.Customer) }

func (u CustomerUpdate) apply(o *Opportunity) string {
	o.Customer = normalizeCustomer(u.Customer)
	return formatCustomer(o.Customer)
}

func formatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatGeo(g GeoRequirement) string {
	if g.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s (%s) presence=%t remote=%t", g.RegionName, g.RegionID, g.RequiresPhysicalPresence, g.AllowsRemoteWork)
}

func formatCustomer(c Customer) string {
	if c.ID == "" && c.Name == "" {
		return ""
	}
	return c.Name + " (" + c.ID + ")"
}
