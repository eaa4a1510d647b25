package tui

import "charm.land/bubbles/v2/key"

// keyMap holds the board key bindings.
type keyMap struct {
	quit       key.Binding
	reload     key.Binding
	toggleHelp key.Binding
	moveLeft   key.Binding
	moveRight  key.Binding
	moveUp     key.Binding
	moveDown   key.Binding
	details    key.Binding
	submit     key.Binding
	cancel     key.Binding
	reactivate key.Binding
	copyID     key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		reload:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		toggleHelp: key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		moveLeft:   key.NewBinding(key.WithKeys("h", "left"), key.WithHelp("h/←", "column left")),
		moveRight:  key.NewBinding(key.WithKeys("l", "right"), key.WithHelp("l/→", "column right")),
		moveUp:     key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "up")),
		moveDown:   key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "down")),
		details:    key.NewBinding(key.WithKeys("enter", "i"), key.WithHelp("enter", "details")),
		submit:     key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "submit draft")),
		cancel:     key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "cancel")),
		reactivate: key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "reactivate")),
		copyID:     key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy id")),
	}
}

// ShortHelp returns the always-visible bindings.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.details, k.submit, k.cancel, k.reactivate, k.copyID, k.toggleHelp, k.quit}
}

// FullHelp returns every binding grouped for the expanded help view.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.details, k.submit, k.cancel, k.reactivate, k.copyID},
		{k.moveLeft, k.moveRight, k.moveUp, k.moveDown},
		{k.reload, k.toggleHelp, k.quit},
	}
}
