// Package templates renders the page, card list and profile templates with
// mustache. Built-in defaults are embedded; a templates directory may
// override any of them by file name.
package templates

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cbroglie/mustache"

	"github.com/goliatone/go-blog/pkg/interfaces"
)

// Template names.
const (
	Article = "article.html"
	Cards   = "card.html"
	Profile = "profile.md"
)

//go:embed defaults/*
var defaults embed.FS

var ErrTemplateNotFound = errors.New("templates: template not found")

// Set holds compiled templates.
type Set struct {
	mu        sync.RWMutex
	templates map[string]*mustache.Template
	sources   map[string]string
}

var _ interfaces.TemplateRenderer = (*Set)(nil)

// Load compiles the embedded defaults, replacing each with dir/<name> when
// that file exists. An empty dir uses the defaults only.
func Load(dir string) (*Set, error) {
	set := &Set{
		templates: map[string]*mustache.Template{},
		sources:   map[string]string{},
	}
	for _, name := range []string{Article, Cards, Profile} {
		source, origin, err := readTemplate(dir, name)
		if err != nil {
			return nil, err
		}
		tpl, err := mustache.ParseString(source)
		if err != nil {
			return nil, fmt.Errorf("templates: parse %s (%s): %w", name, origin, err)
		}
		set.templates[name] = tpl
		set.sources[name] = origin
	}
	return set, nil
}

func readTemplate(dir, name string) (string, string, error) {
	if strings.TrimSpace(dir) != "" {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			return string(data), path, nil
		case !errors.Is(err, fs.ErrNotExist):
			return "", "", fmt.Errorf("templates: read %s: %w", path, err)
		}
	}
	data, err := defaults.ReadFile("defaults/" + name)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return string(data), "embedded", nil
}

// Origin reports where a template was loaded from ("embedded" or a path).
func (s *Set) Origin(name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sources[name]
}

// Render executes the named template. When out is given the result is also
// written to every writer.
func (s *Set) Render(name string, data any, out ...io.Writer) (string, error) {
	s.mu.RLock()
	tpl, ok := s.templates[name]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	rendered, err := tpl.Render(data)
	if err != nil {
		return "", fmt.Errorf("templates: render %s: %w", name, err)
	}
	return rendered, emit(rendered, out)
}

// RenderString compiles and executes an ad-hoc template.
func (s *Set) RenderString(templateContent string, data any, out ...io.Writer) (string, error) {
	rendered, err := mustache.Render(templateContent, data)
	if err != nil {
		return "", fmt.Errorf("templates: render string: %w", err)
	}
	return rendered, emit(rendered, out)
}

func emit(rendered string, out []io.Writer) error {
	for _, w := range out {
		if w == nil {
			continue
		}
		if _, err := io.WriteString(w, rendered); err != nil {
			return fmt.Errorf("templates: write: %w", err)
		}
	}
	return nil
}
