package markdown

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

var tocMarker = []byte("[TOC]")

// KindTOC is the node kind of an expanded "[TOC]" paragraph.
var KindTOC = ast.NewNodeKind("TOC")

type tocEntry struct {
	Level int
	ID    string
	Label string
}

type tocNode struct {
	ast.BaseBlock
	entries []tocEntry
}

func (n *tocNode) Kind() ast.NodeKind { return KindTOC }

func (n *tocNode) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{
		"Entries": fmt.Sprintf("%d", len(n.entries)),
	}, nil)
}

type tocTransformer struct{}

// Transform replaces the first "[TOC]" paragraph with the document's
// headings. Documents without the marker are left alone.
func (tocTransformer) Transform(doc *ast.Document, reader text.Reader, _ parser.Context) {
	source := reader.Source()

	var marker ast.Node
	var entries []tocEntry
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Paragraph:
			if marker == nil && bytes.Equal(bytes.TrimSpace(blockContent(node, source)), tocMarker) {
				marker = node
			}
			return ast.WalkSkipChildren, nil
		case *ast.Heading:
			entry := tocEntry{Level: node.Level, Label: string(node.Text(source))}
			if id, ok := node.AttributeString("id"); ok {
				if raw, ok := id.([]byte); ok {
					entry.ID = string(raw)
				}
			}
			entries = append(entries, entry)
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	if marker == nil || marker.Parent() == nil {
		return
	}
	marker.Parent().ReplaceChild(marker.Parent(), marker, &tocNode{entries: entries})
}

type tocRenderer struct{}

func (tocRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindTOC, renderTOC)
}

// renderTOC writes nested lists, opening one level per heading step.
func renderTOC(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*tocNode)
	if len(n.entries) == 0 {
		return ast.WalkSkipChildren, nil
	}

	base := n.entries[0].Level
	for _, e := range n.entries {
		base = min(base, e.Level)
	}

	_, _ = w.WriteString(`<div class="table-of-contents">`)
	depth := 0
	for i, e := range n.entries {
		level := e.Level - base + 1
		switch {
		case level > depth:
			for ; depth < level; depth++ {
				_, _ = w.WriteString("<ul>")
				if depth+1 < level {
					_, _ = w.WriteString("<li>")
				}
			}
		case level < depth:
			for ; depth > level; depth-- {
				_, _ = w.WriteString("</li></ul>")
			}
			_, _ = w.WriteString("</li>")
		case i > 0:
			_, _ = w.WriteString("</li>")
		}
		_, _ = w.WriteString(`<li><a href="#`)
		_, _ = w.Write(util.EscapeHTML([]byte(e.ID)))
		_, _ = w.WriteString(`">`)
		_, _ = w.Write(util.EscapeHTML([]byte(e.Label)))
		_, _ = w.WriteString("</a>")
	}
	for ; depth > 0; depth-- {
		_, _ = w.WriteString("</li></ul>")
	}
	_, _ = w.WriteString("</div>\n")
	return ast.WalkSkipChildren, nil
}
