package keys

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the keybindings of the flow screens.
type KeyMap struct {
	Back  key.Binding
	Quit  key.Binding
	Retry key.Binding
}

// DefaultKeyMap returns the default set of keybindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "q"),
			key.WithHelp("q", "quit"),
		),
		Retry: key.NewBinding(
			key.WithKeys("r", "enter"),
			key.WithHelp("r", "edit and retry"),
		),
	}
}

// ShortHelp returns the bindings shown under a result screen.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Retry, k.Quit}
}

// FullHelp returns all keybindings grouped by category.
func (k *KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Back, k.Retry, k.Quit}}
}
