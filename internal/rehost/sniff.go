package rehost

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var ErrNotImage = errors.New("rehost: payload is not an image")

// SniffExtension detects the file type of an image payload from its bytes.
// Generic XML is reported as svg, since SVG documents without a detectable
// root element sniff as plain XML.
func SniffExtension(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty payload", ErrNotImage)
	}
	mtype := mimetype.Detect(data)
	ext := strings.TrimPrefix(mtype.Extension(), ".")
	switch {
	case ext == "xml":
		return "svg", nil
	case strings.HasPrefix(mtype.String(), "image/") && ext != "":
		return ext, nil
	default:
		return "", fmt.Errorf("%w: detected %s", ErrNotImage, mtype.String())
	}
}
