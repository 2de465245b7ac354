package interfaces

import (
	"io"
)

// TemplateRenderer fills logic-less templates with view data.
type TemplateRenderer interface {
	Render(name string, data any, out ...io.Writer) (string, error)
	RenderString(templateContent string, data any, out ...io.Writer) (string, error)
}
