package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/livetemplate/widgetlab/internal/cache"
	"github.com/livetemplate/widgetlab/internal/config"
	"github.com/livetemplate/widgetlab/internal/runtime"
	"github.com/livetemplate/widgetlab/internal/todo"
	"github.com/livetemplate/widgetlab/internal/wizard"
)

// maxRequestBodySize limits the size of incoming request bodies (1MB)
const maxRequestBodySize = 1 << 20

// APIHandler serves widget sessions over REST.
//
//	GET    /api/widgets
//	POST   /api/sessions               {"widget": "todo"}
//	GET    /api/sessions/{id}
//	POST   /api/sessions/{id}/actions  {"action": "add", "data": {"text": "milk"}}
//	DELETE /api/sessions/{id}
type APIHandler struct {
	config   *config.Config
	sessions *cache.MemoryCache
	logger   *zap.Logger
	mux      *http.ServeMux
}

// SessionResponse is the body returned for a session.
type SessionResponse struct {
	ID     string        `json:"id"`
	Widget string        `json:"widget"`
	State  runtime.Store `json:"state"`
	Error  string        `json:"error,omitempty"`
}

type createSessionRequest struct {
	Widget string `json:"widget"`
}

type actionRequest struct {
	Action string                 `json:"action"`
	Data   map[string]interface{} `json:"data"`
}

// NewAPIHandler creates a new API handler backed by the session cache.
func NewAPIHandler(cfg *config.Config, sessions *cache.MemoryCache, logger *zap.Logger) *APIHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &APIHandler{
		config:   cfg,
		sessions: sessions,
		logger:   logger.Named("api"),
		mux:      http.NewServeMux(),
	}

	h.mux.HandleFunc("GET /api/widgets", h.handleListWidgets)
	h.mux.HandleFunc("POST /api/sessions", h.handleCreateSession)
	h.mux.HandleFunc("GET /api/sessions/{id}", h.handleGetSession)
	h.mux.HandleFunc("POST /api/sessions/{id}/actions", h.handleAction)
	h.mux.HandleFunc("DELETE /api/sessions/{id}", h.handleDeleteSession)
	h.mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	return h
}

// ServeHTTP handles API requests.
func (h *APIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *APIHandler) handleListWidgets(w http.ResponseWriter, r *http.Request) {
	widgets := make([]runtime.Widget, 0)
	for _, wd := range runtime.Widgets() {
		if h.config.WidgetEnabled(wd.Name) {
			widgets = append(widgets, wd)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"widgets": widgets})
}

func (h *APIHandler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Widget == "" {
		writeError(w, http.StatusBadRequest, "widget is required")
		return
	}
	if !h.config.WidgetEnabled(req.Widget) {
		writeError(w, http.StatusNotFound, "widget not found: "+req.Widget)
		return
	}

	store, err := runtime.NewStore(req.Widget)
	if err != nil {
		writeError(w, http.StatusNotFound, "widget not found: "+req.Widget)
		return
	}

	id := uuid.NewString()
	h.sessions.Set(id, req.Widget, store)
	apiSessions.Set(float64(h.sessions.Len()))

	h.logger.Debug("session created", zap.String("id", id), zap.String("widget", req.Widget))
	writeJSON(w, http.StatusCreated, SessionResponse{ID: id, Widget: req.Widget, State: store})
}

func (h *APIHandler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entry, ok := h.sessions.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{ID: id, Widget: entry.Widget, State: entry.Store})
}

func (h *APIHandler) handleAction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entry, ok := h.sessions.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found: "+id)
		return
	}

	var req actionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Action == "" {
		writeError(w, http.StatusBadRequest, "action is required")
		return
	}

	err := entry.Store.HandleAction(req.Action, req.Data)
	recordAction(entry.Widget, "api", err)

	resp := SessionResponse{ID: id, Widget: entry.Widget, State: entry.Store}
	if err != nil {
		resp.Error = err.Error()
		writeJSON(w, actionStatus(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.sessions.Invalidate(id) {
		writeError(w, http.StatusNotFound, "session not found: "+id)
		return
	}
	apiSessions.Set(float64(h.sessions.Len()))
	w.WriteHeader(http.StatusNoContent)
}

// actionStatus maps a failed action to an HTTP status.
func actionStatus(err error) int {
	switch {
	case errors.Is(err, runtime.ErrUnknownAction),
		errors.Is(err, runtime.ErrMissingParam),
		errors.Is(err, wizard.ErrUnknownField):
		return http.StatusBadRequest
	case errors.Is(err, todo.ErrItemNotFound):
		return http.StatusNotFound
	default:
		return http.StatusUnprocessableEntity
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSONError(w, status, message)
}
