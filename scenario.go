package widgetlab

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/livetemplate/widgetlab/internal/runtime"
)

// Verbs understood in a scenario script.
const (
	VerbUse         = "use"
	VerbDo          = "do"
	VerbExpect      = "expect"
	VerbExpectError = "expect-error"
)

// Step is one parsed script line.
type Step struct {
	Line   int
	Verb   string
	Widget string            // use
	Action string            // do, expect-error
	Data   map[string]string // do, expect-error
	Path   string            // expect
	Want   string            // expect
}

// Script is a parsed scenario.
type Script struct {
	File  string
	Steps []Step
}

// ParseScriptFile reads and parses a scenario file.
func ParseScriptFile(path string) (*Script, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return ParseScript(path, src)
}

// ParseScript parses scenario source. file is only used in error messages.
func ParseScript(file string, src []byte) (*Script, error) {
	lines := strings.Split(strings.ReplaceAll(string(src), "\r\n", "\n"), "\n")
	script := &Script{File: file}
	mounted := 0

	for i, raw := range lines {
		lineNo := i + 1
		text := strings.TrimSpace(raw)
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fail := func(col int, msg, hint string) error {
			return NewParseError(file, lineNo, msg).WithColumn(col).WithHint(hint).withSource(lines)
		}

		tokens, err := tokenize(raw)
		if err != nil {
			te := err.(*tokenError)
			return nil, fail(te.col, te.msg, `close the value with a matching " quote`)
		}

		verb, args := tokens[0].text, tokens[1:]
		step := Step{Line: lineNo, Verb: verb}

		switch verb {
		case VerbUse:
			if len(args) != 1 {
				return nil, fail(tokens[0].col, "use takes exactly one widget name",
					"available widgets: "+strings.Join(runtime.Names(), ", "))
			}
			if _, ok := runtime.Lookup(args[0].text); !ok {
				return nil, fail(args[0].col, fmt.Sprintf("unknown widget %q", args[0].text),
					"available widgets: "+strings.Join(runtime.Names(), ", "))
			}
			step.Widget = args[0].text
			mounted = lineNo

		case VerbDo, VerbExpectError:
			if len(args) == 0 {
				return nil, fail(tokens[0].col, verb+" needs an action name", "for example: "+verb+" increment")
			}
			if mounted == 0 {
				return nil, fail(tokens[0].col, "no widget mounted", "add a `use <widget>` line before the first action")
			}
			step.Action = args[0].text
			step.Data = make(map[string]string, len(args)-1)
			for _, arg := range args[1:] {
				key, value, ok := strings.Cut(arg.text, "=")
				if !ok || key == "" {
					return nil, fail(arg.col, fmt.Sprintf("expected key=value, got %q", arg.text),
						`quote values with spaces: city="New York"`)
				}
				step.Data[key] = value
			}

		case VerbExpect:
			if len(args) != 2 {
				return nil, fail(tokens[0].col, "expect takes a path and a value",
					`quote values with spaces: expect errors.email "Email is required"`)
			}
			if mounted == 0 {
				return nil, fail(tokens[0].col, "no widget mounted", "add a `use <widget>` line before the first expect")
			}
			step.Path = args[0].text
			step.Want = args[1].text

		default:
			return nil, fail(tokens[0].col, fmt.Sprintf("unknown verb %q", verb),
				"lines start with use, do, expect or expect-error")
		}

		script.Steps = append(script.Steps, step)
	}

	if len(script.Steps) == 0 {
		return nil, NewParseError(file, 1, "script has no steps").
			WithHint("start with `use <widget>`").withSource(lines)
	}
	return script, nil
}

type token struct {
	text string
	col  int
}

type tokenError struct {
	col int
	msg string
}

func (e *tokenError) Error() string { return e.msg }

// tokenize splits a line on whitespace. Double quotes group a value and may
// start mid-token, so key="a b" yields one token `key=a b`.
func tokenize(line string) ([]token, error) {
	var (
		tokens  []token
		cur     strings.Builder
		start   = -1
		inQuote bool
		quoteAt int
	)

	flush := func() {
		if start >= 0 {
			tokens = append(tokens, token{text: cur.String(), col: start + 1})
			cur.Reset()
			start = -1
		}
	}

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case inQuote && c == '\\' && i+1 < len(line):
			i++
			cur.WriteByte(line[i])
		case inQuote && c == '"':
			inQuote = false
		case inQuote:
			cur.WriteByte(c)
		case c == '"':
			if start < 0 {
				start = i
			}
			inQuote = true
			quoteAt = i
		case c == ' ' || c == '\t':
			flush()
		default:
			if start < 0 {
				start = i
			}
			cur.WriteByte(c)
		}
	}

	if inQuote {
		return nil, &tokenError{col: quoteAt + 1, msg: "unterminated quote"}
	}
	flush()
	return tokens, nil
}

// Failure is one failed step.
type Failure struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

func (f Failure) String() string {
	return fmt.Sprintf("line %d: %s", f.Line, f.Message)
}

// Result is the outcome of running a script.
type Result struct {
	File     string                 `json:"file"`
	Widget   string                 `json:"widget"`
	Steps    int                    `json:"steps"`
	Failures []Failure              `json:"failures"`
	State    map[string]interface{} `json:"state"`
}

// Passed reports whether every step succeeded.
func (r *Result) Passed() bool {
	return len(r.Failures) == 0
}

func (r *Result) failf(line int, format string, args ...interface{}) {
	r.Failures = append(r.Failures, Failure{Line: line, Message: fmt.Sprintf(format, args...)})
}

// RunScript executes every step and collects failures. The returned error is
// reserved for problems that are not about the widget's behavior, such as a
// cancelled context. State holds the final snapshot of the last mounted
// widget, using its JSON field names.
func RunScript(ctx context.Context, script *Script, logger *zap.Logger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scenario").With(zap.String("file", script.File))

	res := &Result{File: script.File, Failures: []Failure{}}

	var store runtime.Store
	defer func() {
		if store != nil {
			store.Close()
		}
	}()

	for _, step := range script.Steps {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Steps++
		logger.Debug("step", zap.Int("line", step.Line), zap.String("verb", step.Verb))

		switch step.Verb {
		case VerbUse:
			if store != nil {
				store.Close()
			}
			s, err := runtime.NewStore(step.Widget)
			if err != nil {
				return res, err
			}
			store = s
			res.Widget = step.Widget

		case VerbDo, VerbExpectError:
			data, err := resolveData(store, step.Data)
			if err != nil {
				res.failf(step.Line, "%s %s: %v", step.Verb, step.Action, err)
				continue
			}
			err = store.HandleAction(step.Action, data)
			switch {
			case step.Verb == VerbDo && err != nil:
				res.failf(step.Line, "do %s: %v", step.Action, err)
			case step.Verb == VerbExpectError && err == nil:
				res.failf(step.Line, "expect-error %s: action succeeded", step.Action)
			}

		case VerbExpect:
			snap, err := store.Snapshot()
			if err != nil {
				return res, err
			}
			if got := lookupString(snap, step.Path); got != step.Want {
				res.failf(step.Line, "expect %s: got %q, want %q", step.Path, got, step.Want)
			}
		}
	}

	if store != nil {
		snap, err := store.Snapshot()
		if err != nil {
			return res, err
		}
		res.State = jsonKeys(snap)
	}

	if !res.Passed() {
		logger.Info("scenario failed", zap.Int("failures", len(res.Failures)))
	}
	return res, nil
}

// RunScriptFile parses and runs a scenario file.
func RunScriptFile(ctx context.Context, path string, logger *zap.Logger) (*Result, error) {
	script, err := ParseScriptFile(path)
	if err != nil {
		return nil, err
	}
	return RunScript(ctx, script, logger)
}

// resolveData expands $path references against the current snapshot. A
// leading $$ stands for a literal $.
func resolveData(store runtime.Store, in map[string]string) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(in))
	var snap map[string]interface{}

	for k, v := range in {
		switch {
		case strings.HasPrefix(v, "$$"):
			out[k] = v[1:]
			continue
		case !strings.HasPrefix(v, "$") || len(v) == 1:
			out[k] = v
			continue
		}
		if snap == nil {
			var err error
			if snap, err = store.Snapshot(); err != nil {
				return nil, err
			}
		}
		val, ok := lookup(snap, v[1:])
		if !ok {
			return nil, fmt.Errorf("%s: no value at %s", k, v[1:])
		}
		out[k] = fmt.Sprint(val)
	}
	return out, nil
}

// lookup walks a dot path through nested maps and slices.
func lookup(v interface{}, path string) (interface{}, bool) {
	for _, part := range strings.Split(path, ".") {
		switch node := v.(type) {
		case map[string]interface{}:
			next, ok := node[part]
			if !ok {
				return nil, false
			}
			v = next
		case []interface{}:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			v = node[i]
		default:
			return nil, false
		}
	}
	return v, true
}

func lookupString(snap map[string]interface{}, path string) string {
	v, ok := lookup(snap, path)
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// jsonKeys drops the Titlecase aliases a snapshot carries for templates.
func jsonKeys(v map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(v)/2)
	for k, val := range v {
		if k != "" && k[0] >= 'A' && k[0] <= 'Z' {
			if _, dup := v[strings.ToLower(k[:1])+k[1:]]; dup {
				continue
			}
		}
		out[k] = stripAliases(val)
	}
	return out
}

func stripAliases(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return jsonKeys(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = stripAliases(item)
		}
		return out
	default:
		return v
	}
}
