package runtime

import (
	"encoding/json"
	"sync"

	"github.com/livetemplate/widgetlab/internal/todo"
)

// TodoState is the live state of a todo list widget.
type TodoState struct {
	Items     []todo.Item `json:"items"`
	Visible   []todo.Item `json:"visible"`
	Filter    string      `json:"filter"`
	Remaining int         `json:"remaining"`
	Completed int         `json:"completed"`
	Error     string      `json:"error,omitempty"`

	list *todo.List
	mu   sync.RWMutex
}

// NewTodoState returns an empty list.
func NewTodoState() *TodoState {
	s := &TodoState{list: todo.New()}
	s.sync()
	return s
}

// HandleAction dispatches list operations.
//
//	add             text
//	toggle          id
//	delete          id
//	filter          filter (all, active, completed)
//	clearCompleted
//	reset
func (s *TodoState) HandleAction(action string, data map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.sync()

	s.Error = ""
	ctx := actionContext(action, data)

	var err error
	switch normalizeAction(action) {
	case "add":
		_, err = s.list.Add(ctx.GetString("text"))
	case "toggle":
		var id string
		if id, err = requireString(ctx, "id"); err == nil {
			err = s.list.Toggle(id)
		}
	case "delete", "remove":
		var id string
		if id, err = requireString(ctx, "id"); err == nil {
			err = s.list.Delete(id)
		}
	case "filter", "setfilter":
		var f todo.Filter
		if f, err = todo.ParseFilter(ctx.GetString("filter")); err == nil {
			err = s.list.SetFilter(f)
		}
	case "clearcompleted":
		s.list.ClearCompleted()
	case "reset":
		s.list.Reset()
	default:
		err = ErrUnknownAction
	}

	if err != nil {
		s.Error = err.Error()
		return &ActionError{Widget: "todo", Action: action, Err: err}
	}
	return nil
}

func (s *TodoState) sync() {
	s.Items = s.list.Items()
	s.Visible = s.list.Visible()
	s.Filter = string(s.list.Filter())
	s.Remaining = s.list.Remaining()
	s.Completed = s.list.CompletedCount()
}

// todoJSON has the fields of TodoState without its methods.
type todoJSON TodoState

// MarshalJSON encodes the view fields under the read lock.
func (s *TodoState) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal((*todoJSON)(s))
}

// Snapshot returns the template view of the list.
func (s *TodoState) Snapshot() (map[string]interface{}, error) {
	return snapshot(s)
}

// Close is a no-op.
func (s *TodoState) Close() error {
	return nil
}
