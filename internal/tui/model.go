// Package tui renders the opportunity pipeline as a terminal board.
package tui

import (
	"context"
	"fmt"
	"strings"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/hylla/opportune/internal/app"
	"github.com/hylla/opportune/internal/domain"
)

// Service is the slice of the application service the board needs.
type Service interface {
	SearchOpportunities(context.Context, app.SearchFilter) ([]domain.Opportunity, error)
	SubmitOpportunity(ctx context.Context, id, actorID string) (domain.Opportunity, error)
	CancelOpportunity(ctx context.Context, id, reason, actorID string) (domain.Opportunity, error)
	ReactivateOpportunity(ctx context.Context, id, actorID string) (domain.Opportunity, error)
}

type inputMode int

const (
	modeBoard inputMode = iota
	modeDetail
	modeCancelReason
)

// Model is the bubbletea model of the pipeline board.
type Model struct {
	svc         Service
	keys        keyMap
	help        help.Model
	reasonInput textinput.Model
	markdown    *markdownRenderer

	columns []domain.Status
	cards   map[domain.Status][]domain.Opportunity
	col     int
	rows    []int
	mode    inputMode

	salesManagerID string
	actorID        string
	showRevenue    bool
	formatRevenue  RevenueFormatter
	copy           func(string) error

	status string
	err    error
	ready  bool
	width  int
	height int
}

type loadedMsg struct {
	items []domain.Opportunity
	err   error
}

type mutatedMsg struct {
	action string
	opp    domain.Opportunity
	err    error
}

// NewModel builds a board over svc.
func NewModel(svc Service, opts ...Option) Model {
	h := help.New()
	h.ShowAll = false
	reason := textinput.New()
	reason.Prompt = "reason: "
	reason.Placeholder = "why is this opportunity cancelled?"
	reason.CharLimit = 500
	m := Model{
		svc:           svc,
		keys:          newKeyMap(),
		help:          h,
		reasonInput:   reason,
		markdown:      &markdownRenderer{},
		columns:       domain.Statuses(),
		cards:         map[domain.Status][]domain.Opportunity{},
		formatRevenue: NewRevenueFormatter("en-US", "USD"),
		showRevenue:   true,
		copy:          defaultClipboard,
		status:        "loading...",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	m.rows = make([]int, len(m.columns))
	return m
}

// Init loads the board.
func (m Model) Init() tea.Cmd {
	return m.loadData
}

func (m Model) loadData() tea.Msg {
	items, err := m.svc.SearchOpportunities(context.Background(), app.SearchFilter{
		SalesManagerID: m.salesManagerID,
		Statuses:       m.columns,
	})
	return loadedMsg{items: items, err: err}
}

// Update handles one message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.setCards(msg.items)
		if m.status == "loading..." {
			m.status = "ready"
		}
		return m, nil

	case mutatedMsg:
		if msg.err != nil {
			m.status = msg.action + " failed: " + msg.err.Error()
			return m, nil
		}
		m.status = fmt.Sprintf("%s %q (now %s)", msg.action, msg.opp.Title, msg.opp.Status.Label())
		return m, m.loadData

	case tea.KeyPressMsg:
		switch m.mode {
		case modeCancelReason:
			return m.handleReasonKey(msg)
		case modeDetail:
			return m.handleDetailKey(msg)
		default:
			return m.handleBoardKey(msg)
		}

	default:
		if m.mode == modeCancelReason {
			var cmd tea.Cmd
			m.reasonInput, cmd = m.reasonInput.Update(msg)
			return m, cmd
		}
		return m, nil
	}
}

func (m *Model) setCards(items []domain.Opportunity) {
	m.cards = make(map[domain.Status][]domain.Opportunity, len(m.columns))
	for _, o := range items {
		m.cards[o.Status] = append(m.cards[o.Status], o)
	}
	for i, s := range m.columns {
		m.rows[i] = clamp(m.rows[i], 0, max(0, len(m.cards[s])-1))
	}
}

func (m Model) selected() (domain.Opportunity, bool) {
	if len(m.columns) == 0 {
		return domain.Opportunity{}, false
	}
	cards := m.cards[m.columns[m.col]]
	if len(cards) == 0 {
		return domain.Opportunity{}, false
	}
	return cards[clamp(m.rows[m.col], 0, len(cards)-1)], true
}

func (m Model) handleBoardKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.reload):
		m.status = "reloaded"
		return m, m.loadData
	case key.Matches(msg, m.keys.moveLeft):
		m.col = clamp(m.col-1, 0, len(m.columns)-1)
		return m, nil
	case key.Matches(msg, m.keys.moveRight):
		m.col = clamp(m.col+1, 0, len(m.columns)-1)
		return m, nil
	case key.Matches(msg, m.keys.moveUp):
		m.rows[m.col] = max(0, m.rows[m.col]-1)
		return m, nil
	case key.Matches(msg, m.keys.moveDown):
		m.rows[m.col] = clamp(m.rows[m.col]+1, 0, max(0, len(m.cards[m.columns[m.col]])-1))
		return m, nil
	}

	opp, ok := m.selected()
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.details):
		m.mode = modeDetail
		return m, nil
	case key.Matches(msg, m.keys.copyID):
		if err := m.copy(opp.ID); err != nil {
			m.status = "copy failed: " + err.Error()
		} else {
			m.status = "copied " + opp.ID
		}
		return m, nil
	case key.Matches(msg, m.keys.submit):
		return m, m.mutate("submitted", func(ctx context.Context) (domain.Opportunity, error) {
			return m.svc.SubmitOpportunity(ctx, opp.ID, m.actorID)
		})
	case key.Matches(msg, m.keys.reactivate):
		return m, m.mutate("reactivated", func(ctx context.Context) (domain.Opportunity, error) {
			return m.svc.ReactivateOpportunity(ctx, opp.ID, m.actorID)
		})
	case key.Matches(msg, m.keys.cancel):
		m.mode = modeCancelReason
		m.reasonInput.Reset()
		return m, m.reasonInput.Focus()
	}
	return m, nil
}

func (m Model) handleDetailKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.String() == "esc", key.Matches(msg, m.keys.details):
		m.mode = modeBoard
		return m, nil
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.copyID):
		return m.handleBoardKey(msg)
	}
	return m, nil
}

func (m Model) handleReasonKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeBoard
		m.reasonInput.Blur()
		m.status = "cancel aborted"
		return m, nil
	case "enter":
		reason := strings.TrimSpace(m.reasonInput.Value())
		if reason == "" {
			m.status = "a cancellation reason is required"
			return m, nil
		}
		opp, ok := m.selected()
		m.mode = modeBoard
		m.reasonInput.Blur()
		if !ok {
			return m, nil
		}
		return m, m.mutate("cancelled", func(ctx context.Context) (domain.Opportunity, error) {
			return m.svc.CancelOpportunity(ctx, opp.ID, reason, m.actorID)
		})
	}
	var cmd tea.Cmd
	m.reasonInput, cmd = m.reasonInput.Update(msg)
	return m, cmd
}

func (m Model) mutate(action string, fn func(context.Context) (domain.Opportunity, error)) tea.Cmd {
	return func() tea.Msg {
		opp, err := fn(context.Background())
		return mutatedMsg{action: action, opp: opp, err: err}
	}
}

var (
	accentColor = lipgloss.Color("62")
	mutedColor  = lipgloss.Color("241")
	dimColor    = lipgloss.Color("239")
)

// View renders the board, the detail pane or the reason prompt.
func (m Model) View() tea.View {
	v := tea.NewView(m.render())
	v.AltScreen = true
	return v
}

func (m Model) render() string {
	switch {
	case m.err != nil:
		return "error: " + m.err.Error() + "\n\npress r to retry • q quit\n"
	case !m.ready:
		return "loading..."
	case m.mode == modeDetail:
		return m.detailView()
	default:
		return m.boardView()
	}
}

func (m Model) boardView() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252")).Render("opportune")
	if m.salesManagerID != "" {
		title += lipgloss.NewStyle().Foreground(mutedColor).Render("  " + m.salesManagerID)
	}

	colWidth := 20
	if len(m.columns) > 0 && m.width > 0 {
		colWidth = max(16, m.width/len(m.columns)-1)
	}
	views := make([]string, 0, len(m.columns))
	for i, s := range m.columns {
		views = append(views, m.columnView(i, s, colWidth))
	}
	body := lipgloss.JoinHorizontal(lipgloss.Top, views...)

	sections := []string{title, "", body}
	if m.mode == modeCancelReason {
		prompt := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accentColor).
			Padding(0, 1).
			Render(m.reasonInput.View())
		sections = append(sections, "", prompt)
	}
	sections = append(sections, "", lipgloss.NewStyle().Foreground(dimColor).Render(m.status))
	content := strings.Join(sections, "\n")
	return m.withHelp(content)
}

func (m Model) columnView(idx int, s domain.Status, width int) string {
	cards := m.cards[s]
	header := lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("%s (%d)", s.Label(), len(cards)))
	lines := []string{header}
	cardStyle := lipgloss.NewStyle().Width(width-2).Border(lipgloss.NormalBorder()).BorderForeground(dimColor)
	selectedStyle := cardStyle.BorderForeground(accentColor)
	for row, o := range cards {
		text := truncate(o.Title, width-4) + "\n" + lipgloss.NewStyle().Foreground(mutedColor).Render(truncate(o.Customer.Name, width-4))
		if m.showRevenue && m.formatRevenue != nil {
			text += "\n" + truncate(m.formatRevenue(o.AnnualRecurringRevenue), width-4)
		}
		style := cardStyle
		if idx == m.col && row == m.rows[idx] {
			style = selectedStyle
		}
		lines = append(lines, style.Render(text))
	}
	if len(cards) == 0 {
		lines = append(lines, lipgloss.NewStyle().Foreground(dimColor).Render("(empty)"))
	}
	return lipgloss.NewStyle().Width(width).PaddingRight(1).Render(strings.Join(lines, "\n"))
}

func (m Model) detailView() string {
	opp, ok := m.selected()
	if !ok {
		return m.withHelp("nothing selected")
	}
	var revenue RevenueFormatter
	if m.showRevenue {
		revenue = m.formatRevenue
	}
	body := m.markdown.render(opportunityMarkdown(opp, revenue), max(24, m.width-6))
	pane := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accentColor).
		Padding(0, 1).
		Render(body)
	return m.withHelp(pane + "\n" + lipgloss.NewStyle().Foreground(mutedColor).Render("esc back • y copy id • q quit"))
}

func (m Model) withHelp(content string) string {
	h := m.help
	h.SetWidth(max(0, m.width-2))
	helpLine := lipgloss.NewStyle().
		Foreground(mutedColor).
		BorderTop(true).
		BorderForeground(dimColor).
		Padding(0, 1).
		Render(h.View(m.keys))
	if m.height > 0 {
		content = fitLines(content, max(0, m.height-lipgloss.Height(helpLine)))
	}
	return content + "\n" + helpLine
}

// fitLines pads or truncates content to exactly maxLines lines.
func fitLines(content string, maxLines int) string {
	if maxLines <= 0 {
		return ""
	}
	lines := strings.Split(content, "\n")
	switch {
	case len(lines) > maxLines:
		if maxLines == 1 {
			lines = []string{"…"}
		} else {
			lines = append(lines[:maxLines-1], "…")
		}
	case len(lines) < maxLines:
		lines = append(lines, make([]string, maxLines-len(lines))...)
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return min(max(v, lo), hi)
}
