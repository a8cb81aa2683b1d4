package widgetlab

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseErrorFormatting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.lvt")
	src := "# checkout\nuse wizard\ndo updateField name=firstName value=John\nclick next\nexpect step 2\n"
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))

	_, err := ParseScriptFile(path)
	require.Error(t, err)

	msg := err.Error()
	t.Logf("Error message:\n%s", msg)

	assert.True(t, strings.HasPrefix(msg, "❌ Error in "+path))
	assert.Contains(t, msg, `Line 4: unknown verb "click"`)
	assert.Contains(t, msg, "   4 | click next\n")
	assert.Contains(t, msg, "   2 | use wizard")
	assert.Contains(t, msg, "💡 Tip:")
	assert.Contains(t, msg, "\n       ^\n", "caret under column 1")
}

func TestParseErrorWithContext(t *testing.T) {
	err := NewParseError("/path/to/file.lvt", 42, "Something went wrong").
		WithHint("Try doing X instead").
		WithRelated("Widget mounted at line 10")

	msg := err.Error()

	assert.Contains(t, msg, "❌ Error in /path/to/file.lvt")
	assert.Contains(t, msg, "Line 42: Something went wrong")
	assert.Contains(t, msg, "💡 Tip: Try doing X instead")
	assert.Contains(t, msg, "🔗 Widget mounted at line 10")
}

func TestParseErrorWithoutFile(t *testing.T) {
	_, err := ParseScript("", []byte("use counter\ndo add text=\"x"))
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "❌ Error in <script>")
	assert.Contains(t, msg, `   2 | do add text="x`)
}

func TestParseErrorCodeOnly(t *testing.T) {
	err := &ParseError{Line: 3, Message: "bad", Code: "do thing"}
	assert.Contains(t, err.Error(), "   3 | do thing")
}
