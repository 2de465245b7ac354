package generator

import (
	"encoding/json"
	"fmt"

	"github.com/goliatone/go-blog/internal/article"
)

// buildManifest encodes the index as the pretty-printed index.json. An
// empty index encodes as "[]".
func buildManifest(index []article.Metadata) ([]byte, error) {
	if index == nil {
		index = []article.Metadata{}
	}
	payload, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("generator: encode manifest: %w", err)
	}
	return payload, nil
}
