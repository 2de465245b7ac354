package markdown

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"

	"github.com/goliatone/go-blog/pkg/interfaces"
)

// componentLanguage marks a fence holding a single-file component. The
// exact lowercase spelling only shows the source; any other casing also
// mounts the component, and the all-caps spelling hides the source.
const (
	componentLanguage   = "vue"
	componentOnlyMarker = "VUE"
	componentPrefix     = "comp-"
	componentExtension  = ".vue"
)

type componentCollector struct {
	mu    sync.Mutex
	order []string
	byKey map[string][]byte
}

func (c *componentCollector) add(name string, content []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.byKey == nil {
		c.byKey = map[string][]byte{}
	}
	if _, ok := c.byKey[name]; ok {
		return
	}
	c.byKey[name] = bytes.Clone(content)
	c.order = append(c.order, name)
}

func (c *componentCollector) files() []interfaces.AuxFile {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]interfaces.AuxFile, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, interfaces.AuxFile{Name: name + componentExtension, Content: c.byKey[name]})
	}
	return out
}

// ComponentName returns the tag name used for a component source.
func ComponentName(source []byte) string {
	sum := md5.Sum(source)
	return componentPrefix + hex.EncodeToString(sum[:])
}

type componentRenderer struct {
	collector *componentCollector
}

func (r *componentRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, r.renderFencedCode)
}

func (r *componentRenderer) renderFencedCode(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.FencedCodeBlock)
	language := string(n.Language(source))
	code := blockContent(n, source)

	isComponent := strings.EqualFold(language, componentLanguage) && language != componentLanguage
	if !isComponent {
		writeCodeBlock(w, language, code)
		return ast.WalkSkipChildren, nil
	}

	name := ComponentName(code)
	r.collector.add(name, code)

	if language == componentOnlyMarker {
		_, _ = w.WriteString("<pre hidden><code></code></pre>")
	} else {
		writeCodeBlock(w, language, code)
	}
	_, _ = w.WriteString(`<div class="vue_in_posts_container"><`)
	_, _ = w.WriteString(name)
	_, _ = w.WriteString(` class="vue_in_posts"/></div>`)
	_ = w.WriteByte('\n')
	return ast.WalkSkipChildren, nil
}

func blockContent(n ast.Node, source []byte) []byte {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		buf.Write(segment.Value(source))
	}
	return buf.Bytes()
}

func writeCodeBlock(w util.BufWriter, language string, code []byte) {
	_, _ = w.WriteString("<pre><code")
	if language != "" {
		_, _ = w.WriteString(` class="language-`)
		_, _ = w.Write(util.EscapeHTML([]byte(language)))
		_ = w.WriteByte('"')
	}
	_ = w.WriteByte('>')
	_, _ = w.Write(util.EscapeHTML(code))
	_, _ = w.WriteString("</code></pre>\n")
}
