package markdown

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"

	"github.com/goliatone/go-blog/pkg/interfaces"
)

// Options customises rendering.
type Options struct {
	// Extensions lists goldmark extensions by name; empty selects the
	// defaults (gfm, linkify, tasklist, footnote, typographer).
	Extensions []string
	HardWraps  bool
	// SafeMode drops raw HTML from posts.
	SafeMode bool
	// Components enables the embedded component fences.
	Components bool
	// TOC expands a "[TOC]" paragraph into a heading list.
	TOC bool
}

// GoldmarkRenderer implements interfaces.MarkdownRenderer. A goldmark
// engine is built per call because component fences collect per-document
// state; the renderer itself is safe for concurrent use.
type GoldmarkRenderer struct {
	options Options
}

var _ interfaces.MarkdownRenderer = (*GoldmarkRenderer)(nil)

// NewGoldmarkRenderer returns a renderer using opts for every call.
func NewGoldmarkRenderer(opts Options) *GoldmarkRenderer {
	return &GoldmarkRenderer{options: opts}
}

// Render converts markdown into HTML and collects auxiliary files.
func (r *GoldmarkRenderer) Render(markdown string) (*interfaces.RenderedMarkdown, error) {
	components := &componentCollector{}
	engine := newGoldmarkEngine(r.options, components)

	var buf bytes.Buffer
	if err := engine.Convert([]byte(markdown), &buf); err != nil {
		return nil, fmt.Errorf("markdown render: %w", err)
	}
	return &interfaces.RenderedMarkdown{
		HTML: buf.String(),
		Aux:  components.files(),
	}, nil
}

func newGoldmarkEngine(opts Options, components *componentCollector) goldmark.Markdown {
	parserOptions := []parser.Option{
		parser.WithAutoHeadingID(),
	}
	if opts.TOC {
		parserOptions = append(parserOptions, parser.WithASTTransformers(
			util.Prioritized(tocTransformer{}, 100),
		))
	}

	rendererOptions := []renderer.Option{}
	if opts.HardWraps {
		rendererOptions = append(rendererOptions, html.WithHardWraps())
	}
	if !opts.SafeMode {
		rendererOptions = append(rendererOptions, html.WithUnsafe())
	}
	if opts.TOC {
		rendererOptions = append(rendererOptions, renderer.WithNodeRenderers(
			util.Prioritized(tocRenderer{}, 100),
		))
	}
	if opts.Components {
		rendererOptions = append(rendererOptions, renderer.WithNodeRenderers(
			util.Prioritized(&componentRenderer{collector: components}, 100),
		))
	}

	engineOptions := []goldmark.Option{
		goldmark.WithParserOptions(parserOptions...),
		goldmark.WithRendererOptions(rendererOptions...),
	}
	if exts := collectExtensions(opts.Extensions); len(exts) > 0 {
		engineOptions = append(engineOptions, goldmark.WithExtensions(exts...))
	}

	return goldmark.New(engineOptions...)
}

var extensionRegistry = map[string]goldmark.Extender{
	"gfm":           extension.GFM,
	"table":         extension.Table,
	"tables":        extension.Table,
	"strikethrough": extension.Strikethrough,
	"linkify":       extension.Linkify,
	"autolink":      extension.Linkify,
	"tasklist":      extension.TaskList,
	"definition":    extension.DefinitionList,
	"footnote":      extension.Footnote,
	"typographer":   extension.Typographer,
}

func collectExtensions(names []string) []goldmark.Extender {
	if len(names) == 0 {
		return []goldmark.Extender{
			extension.GFM,
			extension.Linkify,
			extension.TaskList,
			extension.Footnote,
			extension.Typographer,
		}
	}

	var extenders []goldmark.Extender
	seen := map[string]struct{}{}

	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		ext, ok := extensionRegistry[key]
		if !ok {
			continue
		}
		extenders = append(extenders, ext)
		seen[key] = struct{}{}
	}

	return extenders
}
