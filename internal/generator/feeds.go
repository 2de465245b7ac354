package generator

import (
	"strings"
	"time"

	"github.com/goliatone/go-blog/internal/article"
	"github.com/goliatone/go-blog/internal/config"
)

const (
	postDateLayout = "2006-01-02"
	rssDateLayout  = "Mon, 02 Jan 2006 15:04:05 GMT"
)

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// escapeXML escapes the five predefined entities after dropping runes XML
// 1.0 does not allow in character data. Invalid UTF-8 becomes U+FFFD.
func escapeXML(value string) string {
	return xmlEscaper.Replace(strings.Map(xmlChar, value))
}

func xmlChar(r rune) rune {
	switch {
	case r == '\t', r == '\n', r == '\r':
		return r
	case r >= 0x20 && r <= 0xD7FF,
		r >= 0xE000 && r <= 0xFFFD,
		r >= 0x10000 && r <= 0x10FFFF:
		return r
	default:
		return -1
	}
}

// parsePostDate reads the YYYY.MM.DD dates used in file names. Dashes are
// accepted too.
func parsePostDate(value string) (time.Time, bool) {
	parsed, err := time.Parse(postDateLayout, strings.ReplaceAll(strings.TrimSpace(value), ".", "-"))
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

func pubDate(meta article.Metadata, fallback time.Time) string {
	if parsed, ok := parsePostDate(meta.DateString()); ok {
		return parsed.Format(rssDateLayout)
	}
	return fallback.UTC().Format(rssDateLayout)
}

// lastBuildDate is the newest post date so an unchanged site produces an
// unchanged feed; only a site without dated posts uses the clock.
func lastBuildDate(items []article.Metadata, now time.Time) string {
	var newest time.Time
	for _, meta := range items {
		if parsed, ok := parsePostDate(meta.DateString()); ok && parsed.After(newest) {
			newest = parsed
		}
	}
	if newest.IsZero() {
		newest = now.UTC()
	}
	return newest.Format(rssDateLayout)
}

// buildRSS renders an RSS 2.0 document for the first feed_items posts of
// index, which must already be in listing order.
func buildRSS(cfg config.Config, index []article.Metadata, now time.Time) string {
	limit := min(max(cfg.FeedItems, 0), len(index))
	items := index[:limit]
	base := cfg.BaseURL()

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom" xmlns:dc="http://purl.org/dc/elements/1.1/">` + "\n")
	b.WriteString("  <channel>\n")
	b.WriteString("    <title>" + escapeXML(cfg.SiteName) + "</title>\n")
	b.WriteString("    <link>" + escapeXML(cfg.SiteURL) + "</link>\n")
	b.WriteString("    <description>" + escapeXML(cfg.SiteDescription) + "</description>\n")
	b.WriteString("    <language>" + escapeXML(cfg.SiteLanguage) + "</language>\n")
	b.WriteString("    <lastBuildDate>" + lastBuildDate(items, now) + "</lastBuildDate>\n")
	b.WriteString(`    <atom:link href="` + escapeXML(cfg.FeedURL()) + `" rel="self" type="application/rss+xml" />` + "\n")

	for _, meta := range items {
		link := escapeXML(base + meta.URLPath)
		b.WriteString("    <item>\n")
		b.WriteString("      <title>" + escapeXML(meta.Title) + "</title>\n")
		b.WriteString("      <link>" + link + "</link>\n")
		b.WriteString(`      <guid isPermaLink="true">` + link + "</guid>\n")
		b.WriteString("      <pubDate>" + pubDate(meta, now) + "</pubDate>\n")
		b.WriteString("      <dc:creator>" + escapeXML(meta.Author) + "</dc:creator>\n")
		for _, tag := range meta.Tags {
			b.WriteString("      <category>" + escapeXML(tag) + "</category>\n")
		}
		b.WriteString("    </item>\n")
	}

	b.WriteString("  </channel>\n")
	b.WriteString("</rss>\n")
	return b.String()
}
