package wizard

import "fmt"

// Phase is the position of the form in its linear flow.
type Phase int

const (
	PhasePersonal Phase = iota + 1
	PhaseAddress
	PhasePayment
	PhaseSubmitted
)

// String returns a human-readable phase name.
func (p Phase) String() string {
	switch p {
	case PhasePersonal:
		return "personal"
	case PhaseAddress:
		return "address"
	case PhasePayment:
		return "payment"
	case PhaseSubmitted:
		return "submitted"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// event drives the transition function.
type event int

const (
	eventAdvance event = iota
	eventRetreat
)

// transition returns the phase reached from p on e. Advancing assumes the
// current step already validated.
func transition(p Phase, e event) Phase {
	switch e {
	case eventAdvance:
		if p >= PhasePersonal && p < PhaseSubmitted {
			return p + 1
		}
	case eventRetreat:
		if p > PhasePersonal && p < PhaseSubmitted {
			return p - 1
		}
	}
	return p
}

// Form is the wizard state for a single mounted form.
// It is not safe for concurrent use.
type Form struct {
	phase  Phase
	fields map[Field]string
	errors map[Field]string
}

// New returns a form at step 1 with every field empty.
func New() *Form {
	f := &Form{}
	f.Reset()
	return f
}

// Reset restores the initial state unconditionally.
func (f *Form) Reset() {
	f.phase = PhasePersonal
	f.fields = make(map[Field]string, len(AllFields))
	for _, name := range AllFields {
		f.fields[name] = ""
	}
	f.errors = make(map[Field]string)
}

// Phase returns the current phase.
func (f *Form) Phase() Phase {
	return f.phase
}

// Step returns the active step in 1..3. A submitted form stays on step 3.
func (f *Form) Step() int {
	if f.phase == PhaseSubmitted {
		return int(PhasePayment)
	}
	return int(f.phase)
}

// Submitted reports whether the payment step has validated.
func (f *Form) Submitted() bool {
	return f.phase == PhaseSubmitted
}

// Value returns the current value of a field.
func (f *Form) Value(name Field) string {
	return f.fields[name]
}

// Values returns a copy of all field values.
func (f *Form) Values() map[Field]string {
	out := make(map[Field]string, len(f.fields))
	for k, v := range f.fields {
		out[k] = v
	}
	return out
}

// Error returns the message attached to a field, or "".
func (f *Form) Error(name Field) string {
	return f.errors[name]
}

// Errors returns a copy of the current error set.
func (f *Form) Errors() map[Field]string {
	out := make(map[Field]string, len(f.errors))
	for k, v := range f.errors {
		out[k] = v
	}
	return out
}

// UpdateField stores value and drops any error previously attached to the
// field. No validation runs.
func (f *Form) UpdateField(name Field, value string) error {
	if _, ok := f.fields[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	f.fields[name] = value
	delete(f.errors, name)
	return nil
}

// Advance validates the active step. On success the form moves forward, or
// is marked submitted from the payment step. On failure the error set is
// replaced by every failure of the step and the phase is unchanged.
func (f *Form) Advance() bool {
	if f.phase == PhaseSubmitted {
		return false
	}

	failures := ValidateStep(f.phase, f.fields)
	f.errors = failures
	if len(failures) > 0 {
		return false
	}

	f.phase = transition(f.phase, eventAdvance)
	return true
}

// Retreat moves back one step and clears all errors. It does nothing on the
// first step or once submitted.
func (f *Form) Retreat() bool {
	next := transition(f.phase, eventRetreat)
	if next == f.phase {
		return false
	}
	f.phase = next
	f.errors = make(map[Field]string)
	return true
}
