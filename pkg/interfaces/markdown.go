package interfaces

// MarkdownRenderer converts a post body into HTML. Renderers may emit
// auxiliary files (for example embedded components) next to the HTML;
// callers decide where those files are written.
type MarkdownRenderer interface {
	Render(markdown string) (*RenderedMarkdown, error)
}

// RenderedMarkdown is the output of a MarkdownRenderer.
type RenderedMarkdown struct {
	HTML string
	Aux  []AuxFile
}

// AuxFile is a side artifact produced while rendering.
type AuxFile struct {
	Name    string
	Content []byte
}
