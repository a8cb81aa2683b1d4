package widgetlab

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ParseError represents a detailed scenario parsing error with context.
type ParseError struct {
	File    string // Source file path
	Line    int    // Line number (1-indexed)
	Column  int    // Column number (1-indexed, optional)
	Message string // Error message
	Code    string // Offending line
	Hint    string // Helpful suggestion
	Related string // Related information (e.g., "Widget mounted at line 2")

	source []string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return e.Format()
}

// Format returns a nicely formatted error message with context.
func (e *ParseError) Format() string {
	var b strings.Builder

	fmt.Fprintf(&b, "❌ Error in %s\n\n", e.displayFile())
	fmt.Fprintf(&b, "Line %d: %s\n", e.Line, e.Message)

	if context := e.codeContext(); context != "" {
		b.WriteString(context)
	}

	if e.Hint != "" {
		fmt.Fprintf(&b, "\n💡 Tip: %s\n", e.Hint)
	}
	if e.Related != "" {
		fmt.Fprintf(&b, "\n🔗 %s\n", e.Related)
	}

	return b.String()
}

func (e *ParseError) displayFile() string {
	if e.File == "" {
		return "<script>"
	}
	return e.File
}

// codeContext shows two lines either side of the error line, with a caret
// under Column when it is known. Lines come from the parsed source if it was
// attached, otherwise from File on disk.
func (e *ParseError) codeContext() string {
	lines := e.source
	if lines == nil {
		lines = readLines(e.File)
	}
	if lines == nil && e.Code != "" {
		return fmt.Sprintf("\n  %2d | %s\n", e.Line, e.Code)
	}
	if e.Line < 1 || e.Line > len(lines) {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n")

	start := max(1, e.Line-2)
	end := min(len(lines), e.Line+2)

	for i := start; i <= end; i++ {
		prefix := fmt.Sprintf("  %2d | ", i)
		b.WriteString(prefix + lines[i-1] + "\n")

		if i == e.Line && e.Column > 0 {
			b.WriteString(strings.Repeat(" ", len(prefix)+e.Column-1) + "^\n")
		}
	}

	return b.String()
}

func readLines(path string) []string {
	if path == "" {
		return nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

// NewParseError creates a new ParseError.
func NewParseError(file string, line int, message string) *ParseError {
	return &ParseError{
		File:    file,
		Line:    line,
		Message: message,
	}
}

// WithColumn adds column information to the error.
func (e *ParseError) WithColumn(col int) *ParseError {
	e.Column = col
	return e
}

// WithHint adds a helpful hint to the error.
func (e *ParseError) WithHint(hint string) *ParseError {
	e.Hint = hint
	return e
}

// WithRelated adds related information to the error.
func (e *ParseError) WithRelated(related string) *ParseError {
	e.Related = related
	return e
}

// withSource attaches the script text so context does not depend on File
// existing on disk.
func (e *ParseError) withSource(lines []string) *ParseError {
	e.source = lines
	if e.Line >= 1 && e.Line <= len(lines) {
		e.Code = lines[e.Line-1]
	}
	return e
}
