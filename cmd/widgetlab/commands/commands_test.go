package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/livetemplate/widgetlab/internal/config"
)

// syncBuffer is a bytes.Buffer safe to read while a command writes to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCommand("1.2.3", zap.NewNop())
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeScript(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "widgetlab version 1.2.3\n", out)
}

func TestWidgetsCommand(t *testing.T) {
	out, _, err := execute(t, "widgets")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "name"))
	assert.Contains(t, lines[4], "Checkout wizard")

	out, _, err = execute(t, "widgets", "--format", "json")
	require.NoError(t, err)
	var widgets []map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &widgets))
	assert.Equal(t, "counter", widgets[0]["name"])
}

func TestRunCommandPasses(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "counter.lvt", "use counter\ndo increment\nexpect count 1\n")

	out, _, err := execute(t, "run", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✅ PASS")
	assert.Regexp(t, regexp.MustCompile(`(?m)^count\s+\| 1$`), out)
}

func TestRunCommandFailsOnExpectation(t *testing.T) {
	dir := t.TempDir()
	good := writeScript(t, dir, "good.lvt", "use counter\nexpect count 0\n")
	bad := writeScript(t, dir, "bad.lvt", "use counter\ndo increment\nexpect count 5\n")

	out, _, err := execute(t, "run", good, bad)
	require.Error(t, err)
	assert.Equal(t, "1 of 2 scenarios failed", err.Error())
	assert.Contains(t, out, "❌ FAIL "+bad)
	assert.Contains(t, out, `line 3: expect count: got "1", want "5"`)
}

func TestRunCommandJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "todo.lvt", "use todo\ndo add text=milk\nexpect remaining 1\n")

	out, _, err := execute(t, "run", "--format=json", path)
	require.NoError(t, err)

	var results []struct {
		Widget   string                 `json:"widget"`
		Steps    int                    `json:"steps"`
		Failures []interface{}          `json:"failures"`
		State    map[string]interface{} `json:"state"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "todo", results[0].Widget)
	assert.Equal(t, 3, results[0].Steps)
	assert.Empty(t, results[0].Failures)
	assert.Equal(t, float64(1), results[0].State["remaining"])
}

func TestRunCommandParseError(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "broken.lvt", "use counter\nclick increment\n")

	_, stderr, err := execute(t, "run", path)
	require.Error(t, err)
	assert.Contains(t, stderr, `unknown verb "click"`)
	assert.Contains(t, stderr, "💡 Tip:")
}

func TestRunCommandRejectsFormat(t *testing.T) {
	_, _, err := execute(t, "run", "--format=csv", "x.lvt")
	assert.ErrorContains(t, err, `unknown format "csv"`)
}

func TestRunCommandMissingFile(t *testing.T) {
	_, _, err := execute(t, "run", filepath.Join(t.TempDir(), "nope.lvt"))
	assert.ErrorContains(t, err, "read script")
}

func TestRunCommandScenarioFiles(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("..", "..", "..", "testdata", "scenarios", "*.lvt"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	_, _, err = execute(t, append([]string{"run"}, files...)...)
	assert.NoError(t, err)
}

func TestServeMissingDirectory(t *testing.T) {
	_, _, err := execute(t, "serve", filepath.Join(t.TempDir(), "nope"))
	assert.ErrorContains(t, err, "directory does not exist")
}

func TestServeFlagsOverrideConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "widgetlab.yaml"),
		[]byte("title: Lab\nserver:\n  port: 9000\n  host: 0.0.0.0\n"), 0644))

	opts := &serveOptions{dir: dir}
	cmd := newServeCommand(&app{logger: zap.NewNop()})
	require.NoError(t, cmd.Flags().Parse([]string{"--port", "9100", "--api"}))

	// Flag values land in the command's own options; copy them across.
	opts.port, _ = cmd.Flags().GetInt("port")
	opts.api, _ = cmd.Flags().GetBool("api")

	cfg, err := opts.loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "Lab", cfg.Title)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "unset flags keep file values")
	assert.True(t, cfg.IsAPIEnabled())
}

func TestServeRunsUntilCancelled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0

	ctx, cancel := context.WithCancel(context.Background())
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, out, zap.NewNop()) }()

	addr := regexp.MustCompile(`http://(\S+)`)
	var url string
	require.Eventually(t, func() bool {
		m := addr.FindStringSubmatch(out.String())
		if m == nil {
			return false
		}
		url = "http://" + m[1]
		return true
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get(url + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestFlatten(t *testing.T) {
	rows := flatten(map[string]interface{}{
		"count":  1,
		"errors": map[string]interface{}{},
		"items":  []interface{}{map[string]interface{}{"text": "milk", "done": false}},
		"error":  nil,
	})
	assert.Equal(t, [][]string{
		{"count", "1"},
		{"error", ""},
		{"errors", "{}"},
		{"items.0.done", "false"},
		{"items.0.text", "milk"},
	}, rows)
}
