package runtime

import (
	"fmt"
	"sort"
)

// Widget describes a registered widget type.
type Widget struct {
	Name        string       `json:"name"`
	Title       string       `json:"title"`
	Description string       `json:"description"` // markdown
	New         func() Store `json:"-"`
}

var registry = map[string]Widget{
	"counter": {
		Name:        "counter",
		Title:       "Counter",
		Description: "A number with **increment**, **decrement** and **reset** buttons.",
		New:         func() Store { return NewCounterState() },
	},
	"wizard": {
		Name:  "wizard",
		Title: "Checkout wizard",
		Description: "A three-step form: personal details, shipping address and payment. " +
			"Each step is validated before moving on; errors clear as you edit a field.",
		New: func() Store { return NewWizardState() },
	},
	"todo": {
		Name:        "todo",
		Title:       "Todo list",
		Description: "Add, toggle and delete items, then filter by *all*, *active* or *completed*.",
		New:         func() Store { return NewTodoState() },
	},
}

// Lookup returns the widget registered under name.
func Lookup(name string) (Widget, bool) {
	w, ok := registry[name]
	return w, ok
}

// NewStore creates a fresh state for the named widget.
func NewStore(name string) (Store, error) {
	w, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWidget, name)
	}
	return w.New(), nil
}

// Names returns every registered widget name, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Widgets returns every registered widget, sorted by name.
func Widgets() []Widget {
	out := make([]Widget, 0, len(registry))
	for _, name := range Names() {
		out = append(out, registry[name])
	}
	return out
}

// Describe returns the registered widget, or ErrUnknownWidget.
func Describe(name string) (Widget, error) {
	w, ok := registry[name]
	if !ok {
		return Widget{}, fmt.Errorf("%w: %q", ErrUnknownWidget, name)
	}
	return w, nil
}
