// Package runtime hosts live widget state. Every widget instance is a Store
// that receives named actions from the browser, the REST API or a scenario
// script, and exposes its view fields for template rendering.
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/livetemplate/livetemplate"
)

// Store is the interface for state objects that can handle actions.
type Store interface {
	HandleAction(action string, data map[string]interface{}) error
	// Snapshot returns the JSON view of the state with both lowercase and
	// Titlecase keys.
	Snapshot() (map[string]interface{}, error)
	// Close releases resources. Returns nil if there is nothing to release.
	Close() error
}

var (
	// ErrUnknownAction is returned for an action the widget does not handle.
	ErrUnknownAction = errors.New("unknown action")
	// ErrUnknownWidget is returned when no widget is registered under a name.
	ErrUnknownWidget = errors.New("unknown widget")
	// ErrMissingParam is returned when an action lacks a required data key.
	ErrMissingParam = errors.New("missing parameter")
)

// ActionError records which widget action failed and why.
type ActionError struct {
	Widget string
	Action string
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s: action %q: %v", e.Widget, e.Action, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// normalizeAction lowercases an action name and drops separators so that
// "updateField", "update_field" and "UpdateField" all match.
func normalizeAction(action string) string {
	r := strings.NewReplacer("_", "", "-", "", " ", "")
	return strings.ToLower(r.Replace(action))
}

// actionContext wraps action data in a livetemplate context for typed access.
func actionContext(action string, data map[string]interface{}) *livetemplate.Context {
	if data == nil {
		data = make(map[string]interface{})
	}
	return livetemplate.NewContext(context.Background(), action, data)
}

// requireString reads a non-empty string parameter from the first key present.
func requireString(ctx *livetemplate.Context, keys ...string) (string, error) {
	for _, k := range keys {
		if v := ctx.GetString(k); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrMissingParam, keys[0])
}

// snapshot marshals a state value and returns it as a template-friendly map.
func snapshot(v json.Marshaler) (map[string]interface{}, error) {
	raw, err := v.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return processStateMap(m), nil
}

// processStateMap adds Titlecase keys alongside lowercase keys so callers can
// use either {{.count}} or {{.Count}}. Nested maps and slices are processed
// recursively.
func processStateMap(m map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(m)*2)
	for k, v := range m {
		processed := processValue(v)
		result[k] = processed
		if len(k) > 0 {
			titleKey := strings.ToUpper(k[:1]) + k[1:]
			if titleKey != k {
				result[titleKey] = processed
			}
		}
	}
	return result
}

func processValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return processStateMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = processValue(item)
		}
		return out
	case float64:
		return convertNumber(val)
	default:
		return v
	}
}

// convertNumber converts float64 values that are whole numbers to int.
// JSON unmarshals all numbers as float64.
func convertNumber(v interface{}) interface{} {
	if f, ok := v.(float64); ok {
		if f == float64(int(f)) {
			return int(f)
		}
	}
	return v
}
