package runtime

import (
	"encoding/json"
	"sync"

	"github.com/livetemplate/widgetlab/internal/wizard"
)

// WizardState is the live state of the checkout form wizard.
type WizardState struct {
	Step      int               `json:"step"`
	Phase     string            `json:"phase"`
	Fields    map[string]string `json:"fields"`
	Errors    map[string]string `json:"errors"`
	Submitted bool              `json:"submitted"`

	form *wizard.Form
	mu   sync.RWMutex
}

// NewWizardState returns a form on step 1 with every field empty.
func NewWizardState() *WizardState {
	s := &WizardState{form: wizard.New()}
	s.sync()
	return s
}

// HandleAction dispatches field updates and navigation.
//
//	updateField  name, value
//	advance      (aliases: next, submit)
//	retreat      (aliases: back, prev)
//	reset
//
// A failed validation is not an error; the messages land in Errors.
func (s *WizardState) HandleAction(action string, data map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.sync()

	ctx := actionContext(action, data)

	switch normalizeAction(action) {
	case "updatefield", "update", "input":
		name, err := requireString(ctx, "name", "field")
		if err != nil {
			return &ActionError{Widget: "wizard", Action: action, Err: err}
		}
		field, ok := wizard.ParseField(name)
		if !ok {
			return &ActionError{Widget: "wizard", Action: action, Err: wizard.ErrUnknownField}
		}
		return s.form.UpdateField(field, ctx.GetString("value"))
	case "advance", "next", "submit":
		s.form.Advance()
	case "retreat", "back", "prev", "previous":
		s.form.Retreat()
	case "reset":
		s.form.Reset()
	default:
		return &ActionError{Widget: "wizard", Action: action, Err: ErrUnknownAction}
	}
	return nil
}

// sync copies the form into the exported view fields.
func (s *WizardState) sync() {
	s.Step = s.form.Step()
	s.Phase = s.form.Phase().String()
	s.Submitted = s.form.Submitted()

	s.Fields = make(map[string]string, len(wizard.AllFields))
	for name, v := range s.form.Values() {
		s.Fields[string(name)] = v
	}
	s.Errors = make(map[string]string)
	for name, msg := range s.form.Errors() {
		s.Errors[string(name)] = msg
	}
}

// wizardJSON has the fields of WizardState without its methods.
type wizardJSON WizardState

// MarshalJSON encodes the view fields under the read lock.
func (s *WizardState) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal((*wizardJSON)(s))
}

// Snapshot returns the template view of the form.
func (s *WizardState) Snapshot() (map[string]interface{}, error) {
	return snapshot(s)
}

// Close is a no-op.
func (s *WizardState) Close() error {
	return nil
}
