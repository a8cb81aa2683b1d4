package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/livetemplate/widgetlab/internal/config"
)

// newTestServer starts a widgetlab server behind httptest. mutate may adjust
// the default config first.
func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *httptest.Server) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Features.Compression = false
	if mutate != nil {
		mutate(cfg)
	}

	srv, err := New(cfg, zap.NewNop())
	require.NoError(t, err)

	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		require.NoError(t, srv.Close())
	})
	return srv, ts
}

func withAPI(cfg *config.Config) {
	cfg.API = &config.APIConfig{Enabled: true}
}

// getBody fetches path and returns the status code and body.
func getBody(t *testing.T, ts *httptest.Server, path string) (int, string) {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

// doJSON sends a JSON request and decodes the JSON response into out.
func doJSON(t *testing.T, ts *httptest.Server, method, path string, body interface{}, out interface{}) int {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// wsTestClient is a helper for WebSocket protocol testing
type wsTestClient struct {
	conn    *websocket.Conn
	t       *testing.T
	timeout time.Duration
}

// newWSTestClient connects to /ws for the given page.
func newWSTestClient(t *testing.T, ts *httptest.Server, page string) *wsTestClient {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?page=" + page
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err, "failed to connect to WebSocket")

	c := &wsTestClient{conn: conn, t: t, timeout: 2 * time.Second}
	t.Cleanup(c.close)
	return c
}

// send sends an action to a block.
func (c *wsTestClient) send(blockID, action string, data map[string]interface{}) {
	c.t.Helper()
	envelope := map[string]interface{}{"blockID": blockID, "action": action}
	if data != nil {
		envelope["data"] = data
	}
	raw, err := json.Marshal(envelope)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, raw))
}

// sendRaw sends a raw text frame
func (c *wsTestClient) sendRaw(msg string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, []byte(msg)))
}

// receive receives a message envelope with timeout
func (c *wsTestClient) receive() MessageEnvelope {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(c.timeout)))
	_, data, err := c.conn.ReadMessage()
	require.NoError(c.t, err)

	var envelope MessageEnvelope
	require.NoError(c.t, json.Unmarshal(data, &envelope))
	return envelope
}

// act sends an action and returns the server's answer for that block.
func (c *wsTestClient) act(blockID, action string, data map[string]interface{}) MessageEnvelope {
	c.t.Helper()
	c.send(blockID, action, data)
	env := c.receive()
	require.Equal(c.t, blockID, env.BlockID)
	return env
}

// close closes the WebSocket connection
func (c *wsTestClient) close() {
	c.conn.Close()
}

type nodeType = html.Node

// parseHTML parses a document or fragment for DOM assertions.
func parseHTML(t *testing.T, src string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(src))
	require.NoError(t, err)
	return doc
}

// findByID returns the first element with the given id, or nil.
func findByID(n *html.Node, id string) *html.Node {
	return findFirst(n, func(n *html.Node) bool { return attr(n, "id") == id })
}

// findAll returns every element matching pred in document order.
func findAll(n *html.Node, pred func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && pred(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func findFirst(n *html.Node, pred func(*html.Node) bool) *html.Node {
	if all := findAll(n, pred); len(all) > 0 {
		return all[0]
	}
	return nil
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func byClass(class string) func(*html.Node) bool {
	return func(n *html.Node) bool { return hasClass(n, class) }
}

func attr(n *html.Node, key string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

// textOf returns the trimmed text content of n.
func textOf(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
