// Package server hosts the widgets over HTTP: pages, a WebSocket per page
// that keeps the widgets live, the REST session API and metrics.
package server

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"go.uber.org/zap"

	"github.com/livetemplate/widgetlab/internal/assets"
	"github.com/livetemplate/widgetlab/internal/cache"
	"github.com/livetemplate/widgetlab/internal/config"
	"github.com/livetemplate/widgetlab/internal/runtime"
)

// Server is the widgetlab HTTP server.
type Server struct {
	config   *config.Config
	logger   *zap.Logger
	renderer *Renderer
	sessions *cache.MemoryCache
	page     *template.Template
	intro    template.HTML
	handler  http.Handler

	clients  map[*client]struct{} // Connected WebSocket clients
	clientMu sync.RWMutex

	watcher *Watcher

	closeOnce sync.Once
}

// pageData feeds the HTML shell.
type pageData struct {
	Page      string
	Title     string
	SiteTitle string
	Intro     template.HTML
	Nav       []runtime.Widget
	Widgets   []widgetView
}

type widgetView struct {
	Name        string
	BlockID     string
	Title       string
	Description template.HTML
	HTML        template.HTML
}

// New creates a server for cfg. A nil logger disables logging.
func New(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	for _, name := range cfg.Widgets {
		if _, ok := runtime.Lookup(name); !ok {
			return nil, fmt.Errorf("%w: %q", runtime.ErrUnknownWidget, name)
		}
	}

	shell, err := assets.GetPageTemplate()
	if err != nil {
		return nil, fmt.Errorf("load page template: %w", err)
	}
	page, err := template.New("page").Parse(string(shell))
	if err != nil {
		return nil, fmt.Errorf("parse page template: %w", err)
	}

	introSrc, err := assets.GetIntro()
	if err != nil {
		return nil, fmt.Errorf("load intro: %w", err)
	}
	intro, err := renderMarkdown(introSrc)
	if err != nil {
		return nil, err
	}

	renderer, err := NewRenderer(cfg.TemplatesDir, logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:   cfg,
		logger:   logger.Named("server"),
		renderer: renderer,
		page:     page,
		intro:    intro,
		clients:  make(map[*client]struct{}),
	}
	s.handler = s.routes(logger)

	return s, nil
}

func (s *Server) routes(logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.serveIndex)
	mux.HandleFunc("GET /{widget}", s.serveWidgetPage)
	mux.HandleFunc("GET /assets/{file}", s.serveAsset)
	mux.HandleFunc("GET /ws", s.serveWebSocket)
	mux.HandleFunc("GET /healthz", s.serveHealth)

	if s.config.Features.Metrics {
		mux.Handle("GET /metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			DisableCompression: s.config.Features.Compression,
		}))
	}

	if s.config.IsAPIEnabled() {
		s.sessions = cache.NewMemoryCache(s.config.Sessions.GetTTL())
		api := NewAPIHandler(s.config, s.sessions, logger)

		rateLimit := RateLimitMiddleware(logger,
			s.config.API.GetRateLimitRPS(),
			s.config.API.GetRateLimitBurst(),
			s.config.API.GetRateLimitMaxClients())

		mux.Handle("/api/", CORSMiddleware(s.config.API.GetCORSOrigins())(rateLimit(api)))
	}

	var h http.Handler = mux
	h = SecurityHeadersMiddleware()(h)
	if s.config.Features.Compression {
		h = WithCompression(h)
	}
	return h
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// enabledWidgets returns the registered widgets this server shows, sorted.
func (s *Server) enabledWidgets() []runtime.Widget {
	var out []runtime.Widget
	for _, w := range runtime.Widgets() {
		if s.config.WidgetEnabled(w.Name) {
			out = append(out, w)
		}
	}
	return out
}

// pageWidgets resolves the widgets shown by a page. The empty page is the
// index, which shows all of them.
func (s *Server) pageWidgets(page string) ([]runtime.Widget, bool) {
	if page == "" || page == "index" {
		return s.enabledWidgets(), true
	}
	w, ok := runtime.Lookup(page)
	if !ok || !s.config.WidgetEnabled(page) {
		return nil, false
	}
	return []runtime.Widget{w}, true
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	widgets, _ := s.pageWidgets("")
	s.servePage(w, "", s.config.Title, s.intro, widgets)
}

func (s *Server) serveWidgetPage(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("widget")
	widgets, ok := s.pageWidgets(name)
	if !ok {
		http.NotFound(w, r)
		return
	}
	s.servePage(w, name, widgets[0].Title+" · "+s.config.Title, "", widgets)
}

// servePage renders the page shell with a first paint of every widget. The
// WebSocket replaces each widget body with a live instance once connected.
func (s *Server) servePage(w http.ResponseWriter, page, title string, intro template.HTML, widgets []runtime.Widget) {
	data := pageData{
		Page:      page,
		Title:     title,
		SiteTitle: s.config.Title,
		Intro:     intro,
		Nav:       s.enabledWidgets(),
	}

	for _, wd := range widgets {
		view, err := s.widgetView(wd)
		if err != nil {
			s.logger.Error("render widget", zap.String("widget", wd.Name), zap.Error(err))
			http.Error(w, "failed to render widget", http.StatusInternalServerError)
			return
		}
		data.Widgets = append(data.Widgets, view)
	}

	var buf bytes.Buffer
	if err := s.page.Execute(&buf, data); err != nil {
		s.logger.Error("render page", zap.String("page", page), zap.Error(err))
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) widgetView(wd runtime.Widget) (widgetView, error) {
	store, err := runtime.NewStore(wd.Name)
	if err != nil {
		return widgetView{}, err
	}
	defer store.Close()

	html, err := s.renderer.RenderWidget(wd.Name, store)
	if err != nil {
		return widgetView{}, err
	}
	desc, err := renderMarkdown([]byte(wd.Description))
	if err != nil {
		return widgetView{}, err
	}

	return widgetView{
		Name:        wd.Name,
		BlockID:     wd.Name,
		Title:       wd.Title,
		Description: desc,
		HTML:        template.HTML(html),
	}, nil
}

// serveAsset serves embedded client assets.
func (s *Server) serveAsset(w http.ResponseWriter, r *http.Request) {
	var (
		data        []byte
		err         error
		contentType string
	)

	switch r.PathValue("file") {
	case "widgetlab.js":
		data, err = assets.GetClientJS()
		contentType = "application/javascript"
	case "widgetlab.css":
		data, err = assets.GetClientCSS()
		contentType = "text/css"
	default:
		http.NotFound(w, r)
		return
	}

	if err != nil {
		http.Error(w, "Asset not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(data)
}

// serveWebSocket mounts the widgets of the page named by ?page=.
func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	widgets, ok := s.pageWidgets(r.URL.Query().Get("page"))
	if !ok {
		http.Error(w, "unknown page", http.StatusNotFound)
		return
	}

	names := make([]string, len(widgets))
	for i, wd := range widgets {
		names[i] = wd.Name
	}

	NewWebSocketHandler(s, names, s.logger).ServeHTTP(w, r)
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	s.clientMu.RLock()
	conns := len(s.clients)
	s.clientMu.RUnlock()

	status := map[string]interface{}{
		"status":      "ok",
		"widgets":     len(s.enabledWidgets()),
		"connections": conns,
	}
	if s.sessions != nil {
		status["sessions"] = s.sessions.Len()
	}
	writeJSON(w, http.StatusOK, status)
}

// registerClient adds a WebSocket connection to the tracked connections.
func (s *Server) registerClient(c *client) {
	s.clientMu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.clientMu.Unlock()

	wsConnections.Inc()
	s.logger.Debug("connection registered", zap.String("conn", c.id), zap.Int("active", n))
}

// unregisterClient removes a WebSocket connection from tracked connections.
func (s *Server) unregisterClient(c *client) {
	s.clientMu.Lock()
	delete(s.clients, c)
	n := len(s.clients)
	s.clientMu.Unlock()

	wsConnections.Dec()
	s.logger.Debug("connection unregistered", zap.String("conn", c.id), zap.Int("active", n))
}

// BroadcastReload sends a reload message to all connected WebSocket clients.
func (s *Server) BroadcastReload(fileName string) {
	s.clientMu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientMu.RUnlock()

	if len(clients) == 0 {
		return
	}

	s.logger.Info("broadcasting reload", zap.String("file", fileName), zap.Int("connections", len(clients)))

	for _, c := range clients {
		if err := c.send(MessageEnvelope{Action: ActionReload, File: fileName}); err != nil {
			s.logger.Warn("send reload", zap.String("conn", c.id), zap.Error(err))
		}
	}
}

// EnableWatch watches the template override directory and reloads widget
// templates when one changes. It is a no-op without templates_dir.
func (s *Server) EnableWatch() error {
	if s.config.TemplatesDir == "" {
		return nil
	}

	watcher, err := NewWatcher(s.config.TemplatesDir, func(fileName string) error {
		if err := s.renderer.Reload(); err != nil {
			return fmt.Errorf("failed to reload templates: %w", err)
		}
		templateReloads.Inc()
		s.BroadcastReload(fileName)
		return nil
	}, s.logger)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	s.watcher = watcher
	s.watcher.Start()

	s.logger.Info("watching templates", zap.String("dir", s.config.TemplatesDir))
	return nil
}

// Close stops background work and releases sessions and temp files.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.watcher != nil {
			if werr := s.watcher.Stop(); werr != nil {
				err = werr
			}
		}
		if s.sessions != nil {
			s.sessions.Stop()
			s.sessions.InvalidateAll()
			apiSessions.Set(0)
		}
		if rerr := s.renderer.Close(); rerr != nil && err == nil {
			err = rerr
		}
	})
	return err
}

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(
		parser.WithAutoHeadingID(),
	),
)

// renderMarkdown converts trusted markdown (embedded intro and widget
// descriptions) to HTML.
func renderMarkdown(src []byte) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdown.Convert(src, &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}
