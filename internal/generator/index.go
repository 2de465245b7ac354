package generator

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-slug"

	"github.com/goliatone/go-blog/internal/article"
	"github.com/goliatone/go-blog/internal/config"
	"github.com/goliatone/go-blog/internal/templates"
	"github.com/goliatone/go-blog/pkg/interfaces"
)

// listingView is the per-article shape shared by the card and profile
// templates.
func listingView(meta article.Metadata, baseURL string) map[string]any {
	tags := make([]map[string]any, 0, len(meta.Tags))
	for _, tag := range meta.Tags {
		tags = append(tags, map[string]any{"name": tag, "slug": tagSlug(tag)})
	}
	return map[string]any{
		"title":    meta.Title,
		"date":     meta.DateString(),
		"author":   meta.Author,
		"filename": meta.Filename,
		"url_path": meta.URLPath,
		"link":     baseURL + meta.URLPath,
		"tags":     tags,
	}
}

// tagSlug keeps the raw tag when it normalises to nothing (e.g. CJK only).
func tagSlug(tag string) string {
	normalized, err := slug.Normalize(tag)
	if err != nil || strings.TrimSpace(normalized) == "" {
		return tag
	}
	return normalized
}

func listingData(index []article.Metadata, baseURL string) map[string]any {
	items := make([]map[string]any, 0, len(index))
	for _, meta := range index {
		items = append(items, listingView(meta, baseURL))
	}
	return map[string]any{"articles": items}
}

// renderCards renders the card list embedded in index.html.
func renderCards(tpl interfaces.TemplateRenderer, index []article.Metadata) (string, error) {
	out, err := tpl.Render(templates.Cards, listingData(index, ""))
	if err != nil {
		return "", fmt.Errorf("generator: cards: %w", err)
	}
	return out, nil
}

// renderProfile renders the newest profile_items posts into the profile
// README.
func renderProfile(tpl interfaces.TemplateRenderer, cfg config.Config, index []article.Metadata) (string, error) {
	limit := min(max(cfg.ProfileItems, 0), len(index))
	out, err := tpl.Render(templates.Profile, listingData(index[:limit], cfg.BaseURL()))
	if err != nil {
		return "", fmt.Errorf("generator: profile: %w", err)
	}
	return out, nil
}
