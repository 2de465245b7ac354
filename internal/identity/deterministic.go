package identity

import (
	"strings"

	hashid "github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// UUID derives a deterministic UUID from a stable key using go-hashid.
//
// Callers must prefix keys by kind to avoid cross-entity collisions.
func UUID(key string) uuid.UUID {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return uuid.Nil
	}
	uid, err := hashid.NewUUID(trimmed, hashid.WithHashAlgorithm(hashid.SHA256), hashid.WithNormalization(true))
	if err != nil || uid == uuid.Nil {
		return uuid.NewSHA1(uuid.NameSpaceOID, []byte(trimmed))
	}
	return uid
}

// ArticleUUID identifies a post by its slash-separated path under the posts root.
func ArticleUUID(relativePath string) uuid.UUID {
	return UUID("go-blog:article:" + strings.TrimSpace(relativePath))
}

// ImageUUID identifies a rehosted image by the article it appeared in and its source URL.
func ImageUUID(articleID uuid.UUID, sourceURL string) uuid.UUID {
	return UUID("go-blog:image:" + articleID.String() + ":" + strings.TrimSpace(sourceURL))
}

// RunID returns a fresh identifier for a build run.
func RunID() uuid.UUID {
	return uuid.New()
}
