package generator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-blog/internal/article"
)

const giscusScript = `<script src="https://giscus.app/client.js"
  data-repo="%s"
  data-repo-id="%s"
  data-category="%s"
  data-category-id="%s"
  data-mapping="title"
  data-reactions-enabled="0"
  data-emit-metadata="0"
  data-input-position="bottom"
  data-theme="preferred_color_scheme"
  data-lang="en"
  crossorigin="anonymous"
  async>
</script>`

// commentEmbed returns the giscus loader, or "" for hidden posts and sites
// without a complete giscus setup.
func (s *service) commentEmbed(hidden bool) string {
	if hidden || !s.cfg.CommentsEnabled() {
		return ""
	}
	return fmt.Sprintf(giscusScript,
		attr(s.cfg.GithubRepo),
		attr(s.cfg.GithubRepoID),
		attr(s.cfg.GiscusCategory),
		attr(s.cfg.GiscusCategoryID),
	)
}

func attr(value string) string {
	return strings.ReplaceAll(value, `"`, "&quot;")
}

func (s *service) pageView(meta article.Metadata, html string, hidden bool, year int) (map[string]any, error) {
	tags, err := json.Marshal(meta.Tags)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"title_string":        meta.Title + " | " + s.cfg.SiteName,
		"title":               meta.Title,
		"date":                meta.DateString(),
		"author":              meta.Author,
		"tags":                string(tags),
		"article":             html,
		"comment":             s.commentEmbed(hidden),
		"web_master":          s.cfg.WebMaster,
		"google_analytics_id": s.cfg.GoogleAnalyticsID,
		"year":                year,
	}, nil
}

func (s *service) indexView(cards string, year int) map[string]any {
	return map[string]any{
		"title_string":        s.cfg.SiteName,
		"title":               s.cfg.SiteName,
		"article":             cards,
		"web_master":          s.cfg.WebMaster,
		"google_analytics_id": s.cfg.GoogleAnalyticsID,
		"year":                year,
	}
}
