package server

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/livetemplate/livetemplate"
	"go.uber.org/zap"

	"github.com/livetemplate/widgetlab/internal/assets"
	"github.com/livetemplate/widgetlab/internal/runtime"
)

// Renderer turns widget state into HTML with livetemplate.
//
// livetemplate parses templates from files, so the widget templates (embedded
// or taken from the override directory) are written to a private work
// directory first. Reload rewrites them after an edit.
type Renderer struct {
	templatesDir string
	workDir      string
	logger       *zap.Logger
	mu           sync.RWMutex
}

// NewRenderer materializes every registered widget template. templatesDir
// may be empty, in which case only the embedded templates are used.
func NewRenderer(templatesDir string, logger *zap.Logger) (*Renderer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	workDir, err := os.MkdirTemp("", "widgetlab-templates-")
	if err != nil {
		return nil, fmt.Errorf("create template work dir: %w", err)
	}

	r := &Renderer{
		templatesDir: templatesDir,
		workDir:      workDir,
		logger:       logger.Named("render"),
	}
	if err := r.Reload(); err != nil {
		os.RemoveAll(workDir)
		return nil, err
	}
	return r, nil
}

// Reload rewrites every widget template into the work directory.
func (r *Renderer) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range runtime.Names() {
		src, err := assets.GetWidgetTemplate(r.templatesDir, name)
		if err != nil {
			return err
		}
		if err := os.WriteFile(r.path(name), src, 0644); err != nil {
			return fmt.Errorf("write template %s: %w", name, err)
		}
	}
	r.logger.Debug("templates loaded", zap.String("dir", r.templatesDir))
	return nil
}

func (r *Renderer) path(widget string) string {
	return filepath.Join(r.workDir, widget+".tmpl")
}

// NewTemplate parses a fresh template instance for one widget block.
// Each live block gets its own instance because livetemplate tracks what it
// last rendered.
func (r *Renderer) NewTemplate(widget, blockID string) (*livetemplate.Template, error) {
	if _, ok := runtime.Lookup(widget); !ok {
		return nil, fmt.Errorf("%w: %q", runtime.ErrUnknownWidget, widget)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	tmpl, err := livetemplate.New(blockID, livetemplate.WithParseFiles(r.path(widget)))
	if err != nil {
		return nil, fmt.Errorf("parse %s template: %w", widget, err)
	}
	return tmpl, nil
}

// Render executes tmpl against the store's snapshot and returns the HTML.
func (r *Renderer) Render(tmpl *livetemplate.Template, widget string, store runtime.Store) (string, error) {
	start := time.Now()

	data, err := store.Snapshot()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", widget, err)
	}

	renderDuration.WithLabelValues(widget).Observe(time.Since(start).Seconds())
	return buf.String(), nil
}

// RenderWidget renders a store with a one-off template. Used for the static
// first paint of a page.
func (r *Renderer) RenderWidget(widget string, store runtime.Store) (string, error) {
	tmpl, err := r.NewTemplate(widget, widget)
	if err != nil {
		return "", err
	}
	return r.Render(tmpl, widget, store)
}

// Close removes the work directory.
func (r *Renderer) Close() error {
	return os.RemoveAll(r.workDir)
}
