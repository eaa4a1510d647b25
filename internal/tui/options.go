package tui

import (
	"strings"

	"github.com/atotto/clipboard"
	"github.com/hylla/opportune/internal/domain"
)

// Option configures a Model.
type Option func(*Model)

// WithColumns sets the statuses shown as board columns, left to right.
func WithColumns(columns []domain.Status) Option {
	return func(m *Model) {
		if len(columns) > 0 {
			m.columns = append([]domain.Status(nil), columns...)
		}
	}
}

// WithSalesManager limits the board to one sales manager's opportunities.
func WithSalesManager(id string) Option {
	return func(m *Model) {
		m.salesManagerID = strings.TrimSpace(id)
	}
}

// WithActor sets the actor recorded on mutations made from the board.
func WithActor(id string) Option {
	return func(m *Model) {
		m.actorID = strings.TrimSpace(id)
	}
}

// WithRevenue controls how annual recurring revenue is shown on cards.
func WithRevenue(show bool, format RevenueFormatter) Option {
	return func(m *Model) {
		m.showRevenue = show
		if format != nil {
			m.formatRevenue = format
		}
	}
}

// WithClipboard replaces the system clipboard writer.
func WithClipboard(write func(string) error) Option {
	return func(m *Model) {
		if write != nil {
			m.copy = write
		}
	}
}

func defaultClipboard(text string) error {
	return clipboard.WriteAll(text)
}
