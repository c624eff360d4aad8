// Package keys holds the TUI key bindings.
package keys

import "github.com/charmbracelet/bubbles/key"

// KeyMap is the full set of bindings. It implements help.KeyMap.
type KeyMap struct {
	Up, Down key.Binding

	Enter, New, Cancel, Delete, Rename, Reload key.Binding

	Help, Escape, Quit key.Binding
}

func bind(label, desc string, keys ...string) key.Binding {
	return key.NewBinding(key.WithKeys(keys...), key.WithHelp(label, desc))
}

// DefaultKeyMap returns the stock bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up:   bind("k/↑", "previous check", "k", "up"),
		Down: bind("j/↓", "next check", "j", "down"),

		Enter:  bind("enter", "submit or confirm", "enter"),
		New:    bind("n", "new check", "n"),
		Cancel: bind("c", "cancel running check", "c"),
		Delete: bind("d", "delete check", "d"),
		Rename: bind("r", "rename check", "r"),
		Reload: bind("ctrl+r", "rediscover sessions", "ctrl+r"),

		Help:   bind("?", "more keys", "?"),
		Escape: bind("esc", "back", "esc"),
		Quit:   bind("q", "quit", "q", "ctrl+c"),
	}
}

// ShortHelp is the one-line footer.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.New, k.Cancel, k.Help, k.Quit}
}

// FullHelp groups bindings by navigation, check actions and general.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Enter},
		{k.New, k.Cancel, k.Delete, k.Rename, k.Reload},
		{k.Help, k.Escape, k.Quit},
	}
}
