// Package assets embeds the client JavaScript, CSS, widget templates and
// page shell.
package assets

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

//go:embed client/*
var clientFS embed.FS

//go:embed templates/*.tmpl
var templateFS embed.FS

//go:embed pages/*
var pageFS embed.FS

// ClientFS returns the embedded client files
func ClientFS() fs.FS {
	sub, err := fs.Sub(clientFS, "client")
	if err != nil {
		panic(err)
	}
	return sub
}

// GetClientJS returns the browser JavaScript
func GetClientJS() ([]byte, error) {
	return clientFS.ReadFile("client/widgetlab.js")
}

// GetClientCSS returns the browser stylesheet
func GetClientCSS() ([]byte, error) {
	return clientFS.ReadFile("client/widgetlab.css")
}

// GetPageTemplate returns the HTML shell every page is rendered into.
func GetPageTemplate() ([]byte, error) {
	return pageFS.ReadFile("pages/page.html")
}

// GetIntro returns the markdown shown above the widgets on the index page.
func GetIntro() ([]byte, error) {
	return pageFS.ReadFile("pages/intro.md")
}

// GetWidgetTemplate returns the template source for a widget. When dir is
// non-empty and holds <widget>.tmpl, that file wins over the embedded copy.
func GetWidgetTemplate(dir, widget string) ([]byte, error) {
	if widget == "" || widget != filepath.Base(widget) {
		return nil, fmt.Errorf("invalid widget name %q", widget)
	}
	name := widget + ".tmpl"

	if dir != "" {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return data, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read template override: %w", err)
		}
	}

	data, err := templateFS.ReadFile("templates/" + name)
	if err != nil {
		return nil, fmt.Errorf("no template for widget %q: %w", widget, err)
	}
	return data, nil
}
