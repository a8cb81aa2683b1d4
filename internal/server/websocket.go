package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/livetemplate/livetemplate"
	"go.uber.org/zap"

	"github.com/livetemplate/widgetlab/internal/runtime"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

// Envelope actions sent to the browser.
const (
	ActionHTML   = "html"
	ActionError  = "error"
	ActionReload = "reload"
)

// MessageEnvelope represents a multiplexed WebSocket message.
// Inbound messages carry BlockID, Action and Data. Outbound messages carry
// BlockID, one of the Action* values, the rendered HTML and any error.
type MessageEnvelope struct {
	BlockID string          `json:"blockID,omitempty"`
	Action  string          `json:"action"`
	Data    json.RawMessage `json:"data,omitempty"`
	HTML    string          `json:"html,omitempty"`
	Error   string          `json:"error,omitempty"`
	File    string          `json:"file,omitempty"`
}

// client is one WebSocket connection. Writes are serialized because reload
// broadcasts come from the watcher goroutine.
type client struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(envelope MessageEnvelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// BlockInstance is a mounted widget: its state and livetemplate instance.
type BlockInstance struct {
	blockID  string
	widget   string
	state    runtime.Store
	template *livetemplate.Template
}

// WebSocketHandler serves one page's widgets over a WebSocket. Every
// connection mounts fresh widget instances; they are discarded on disconnect.
type WebSocketHandler struct {
	server  *Server
	widgets []string
	logger  *zap.Logger
}

// NewWebSocketHandler creates a handler for the given widgets.
func NewWebSocketHandler(server *Server, widgets []string, logger *zap.Logger) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHandler{
		server:  server,
		widgets: widgets,
		logger:  logger.Named("ws"),
	}
}

// ServeHTTP handles WebSocket upgrade and message routing.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	c := &client{id: uuid.NewString(), conn: conn}
	logger := h.logger.With(zap.String("conn", c.id))

	h.server.registerClient(c)
	defer func() {
		h.server.unregisterClient(c)
		conn.Close()
	}()

	logger.Debug("client connected", zap.String("remote", conn.RemoteAddr().String()))

	instances := h.mount(c, logger)
	defer func() {
		for _, inst := range instances {
			if err := inst.state.Close(); err != nil {
				logger.Warn("close state", zap.String("block", inst.blockID), zap.Error(err))
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Info("unexpected close", zap.Error(err))
			}
			break
		}

		logger.Debug("received", zap.ByteString("message", message))
		h.handleMessage(c, instances, message, logger)
	}

	logger.Debug("client disconnected")
}

// mount creates one fresh instance per widget and sends its first render.
func (h *WebSocketHandler) mount(c *client, logger *zap.Logger) map[string]*BlockInstance {
	instances := make(map[string]*BlockInstance, len(h.widgets))

	for _, widget := range h.widgets {
		state, err := runtime.NewStore(widget)
		if err != nil {
			logger.Error("create state", zap.String("widget", widget), zap.Error(err))
			continue
		}

		tmpl, err := h.server.renderer.NewTemplate(widget, widget)
		if err != nil {
			logger.Error("create template", zap.String("widget", widget), zap.Error(err))
			_ = state.Close()
			continue
		}

		inst := &BlockInstance{
			blockID:  widget,
			widget:   widget,
			state:    state,
			template: tmpl,
		}
		instances[inst.blockID] = inst

		h.sendRender(c, inst, nil, logger)
	}

	return instances
}

// handleMessage routes an inbound envelope to its block and answers with a
// fresh render. A failed action still re-renders so the widget can show the
// error state.
func (h *WebSocketHandler) handleMessage(c *client, instances map[string]*BlockInstance, message []byte, logger *zap.Logger) {
	var envelope MessageEnvelope
	if err := json.Unmarshal(message, &envelope); err != nil {
		h.sendError(c, "", fmt.Errorf("invalid message: %w", err), logger)
		return
	}

	inst, ok := instances[envelope.BlockID]
	if !ok {
		h.sendError(c, envelope.BlockID, fmt.Errorf("unknown block %q", envelope.BlockID), logger)
		return
	}

	data, err := parseActionData(envelope.Data)
	if err != nil {
		h.sendError(c, inst.blockID, err, logger)
		return
	}

	actionErr := inst.state.HandleAction(envelope.Action, data)
	recordAction(inst.widget, "ws", actionErr)
	if actionErr != nil {
		logger.Debug("action failed",
			zap.String("block", inst.blockID),
			zap.String("action", envelope.Action),
			zap.Error(actionErr))
	}

	h.sendRender(c, inst, actionErr, logger)
}

func (h *WebSocketHandler) sendRender(c *client, inst *BlockInstance, actionErr error, logger *zap.Logger) {
	html, err := h.server.renderer.Render(inst.template, inst.widget, inst.state)
	if err != nil {
		logger.Error("render failed", zap.String("block", inst.blockID), zap.Error(err))
		h.sendError(c, inst.blockID, err, logger)
		return
	}

	envelope := MessageEnvelope{
		BlockID: inst.blockID,
		Action:  ActionHTML,
		HTML:    html,
	}
	if actionErr != nil {
		envelope.Action = ActionError
		envelope.Error = actionErr.Error()
	}

	if err := c.send(envelope); err != nil {
		logger.Warn("send failed", zap.String("block", inst.blockID), zap.Error(err))
	}
}

func (h *WebSocketHandler) sendError(c *client, blockID string, err error, logger *zap.Logger) {
	envelope := MessageEnvelope{
		BlockID: blockID,
		Action:  ActionError,
		Error:   err.Error(),
	}
	if sendErr := c.send(envelope); sendErr != nil {
		logger.Warn("send failed", zap.Error(sendErr))
	}
}

// parseActionData decodes the optional data object of an action.
func parseActionData(raw json.RawMessage) (map[string]interface{}, error) {
	data := make(map[string]interface{})
	if len(raw) == 0 || string(raw) == "null" {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse action data: %w", err)
	}
	return data, nil
}
