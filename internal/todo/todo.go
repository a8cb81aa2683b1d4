// Package todo implements the demo todo list widget: items that can be
// added, toggled, deleted and filtered by completion.
package todo

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

var (
	// ErrEmptyText is returned when adding an item whose text is blank.
	ErrEmptyText = errors.New("todo text is required")
	// ErrItemNotFound is returned when an id does not match any item.
	ErrItemNotFound = errors.New("todo not found")
	// ErrInvalidFilter is returned for a filter name other than all, active or completed.
	ErrInvalidFilter = errors.New("invalid filter")
)

// Filter selects which items are visible.
type Filter string

const (
	FilterAll       Filter = "all"
	FilterActive    Filter = "active"
	FilterCompleted Filter = "completed"
)

// ParseFilter resolves a filter name. Matching ignores case.
func ParseFilter(name string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(name))); f {
	case FilterAll, FilterActive, FilterCompleted:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFilter, name)
	}
}

// Item is one entry of the list.
type Item struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// List is an ordered todo list with an active filter.
// It is not safe for concurrent use.
type List struct {
	items  []Item
	filter Filter
}

// New returns an empty list showing all items.
func New() *List {
	return &List{filter: FilterAll}
}

// Add appends a new open item with text as typed. Text that is only
// whitespace is rejected.
func (l *List) Add(text string) (Item, error) {
	if strings.TrimFunc(text, isBlank) == "" {
		return Item{}, ErrEmptyText
	}
	item := Item{ID: uuid.NewString(), Text: text}
	l.items = append(l.items, item)
	return item, nil
}

// Toggle flips the completion state of the item with the given id.
func (l *List) Toggle(id string) error {
	i := l.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	l.items[i].Done = !l.items[i].Done
	return nil
}

// Delete removes the item with the given id.
func (l *List) Delete(id string) error {
	i := l.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	l.items = append(l.items[:i], l.items[i+1:]...)
	return nil
}

// ClearCompleted removes every done item and returns how many were removed.
func (l *List) ClearCompleted() int {
	kept := l.items[:0]
	for _, it := range l.items {
		if !it.Done {
			kept = append(kept, it)
		}
	}
	removed := len(l.items) - len(kept)
	l.items = kept
	return removed
}

// SetFilter changes which items Visible returns.
func (l *List) SetFilter(f Filter) error {
	parsed, err := ParseFilter(string(f))
	if err != nil {
		return err
	}
	l.filter = parsed
	return nil
}

// Filter returns the active filter.
func (l *List) Filter() Filter {
	return l.filter
}

// Items returns a copy of every item in insertion order.
func (l *List) Items() []Item {
	out := make([]Item, len(l.items))
	copy(out, l.items)
	return out
}

// Visible returns the items matching the active filter.
func (l *List) Visible() []Item {
	out := make([]Item, 0, len(l.items))
	for _, it := range l.items {
		switch {
		case l.filter == FilterActive && it.Done:
		case l.filter == FilterCompleted && !it.Done:
		default:
			out = append(out, it)
		}
	}
	return out
}

// Remaining counts open items.
func (l *List) Remaining() int {
	n := 0
	for _, it := range l.items {
		if !it.Done {
			n++
		}
	}
	return n
}

// CompletedCount counts done items.
func (l *List) CompletedCount() int {
	return len(l.items) - l.Remaining()
}

// Reset empties the list and shows all items again.
func (l *List) Reset() {
	l.items = nil
	l.filter = FilterAll
}

func (l *List) index(id string) int {
	for i, it := range l.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func isBlank(r rune) bool {
	return unicode.IsSpace(r) || r == '\uFEFF'
}
