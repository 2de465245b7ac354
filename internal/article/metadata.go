// Package article extracts post metadata from file names and content and
// defines the ordering and visibility rules shared by every generated index.
package article

import (
	"regexp"
	"slices"
	"strings"
)

// HiddenTag marks a post that is rendered but never listed.
const HiddenTag = "Hidden"

// HiddenMode selects the rule deciding whether a post is listed.
type HiddenMode string

const (
	// HiddenByTag hides posts tagged Hidden.
	HiddenByTag HiddenMode = "tag"
	// HiddenByDate hides posts without a date, the rule older sites used.
	HiddenByDate HiddenMode = "date"
)

var metaPattern = regexp.MustCompile(`^\[([^\]]*)\]`)

// Metadata describes a single post as it appears in index.json.
type Metadata struct {
	Title    string   `json:"title"`
	Date     *string  `json:"date,omitempty"`
	Author   string   `json:"author"`
	Tags     []string `json:"tags"`
	Filename string   `json:"filename"`
	URLPath  string   `json:"url_path"`
}

// DateString returns the date or "" when absent.
func (m Metadata) DateString() string {
	if m.Date == nil {
		return ""
	}
	return *m.Date
}

// HasTag reports whether tag is present, case-sensitively.
func (m Metadata) HasTag(tag string) bool {
	return slices.Contains(m.Tags, tag)
}

// Parsed is the metadata of a post plus the markdown body left after the
// title line and front matter were consumed.
type Parsed struct {
	Metadata
	Markdown string
}

// NameMeta is what the bracket prefix of a file name encodes.
type NameMeta struct {
	Date     *string
	Tags     []string
	Author   string
	Filename string
}

// ParseName splits a base name (no extension) such as
// "[2024.01.15 Go,Notes alice] hello" into its bracket fields and the
// remaining filename. Fields are separated by single spaces; missing
// trailing fields are absent, extra fields are ignored and "[]" yields an
// empty date.
func ParseName(baseName string) NameMeta {
	out := NameMeta{Filename: baseName, Tags: []string{}}

	match := metaPattern.FindStringSubmatchIndex(baseName)
	if match == nil {
		return out
	}

	out.Filename = baseName[match[1]:]

	fields := strings.Split(baseName[match[2]:match[3]], " ")
	date := fields[0]
	out.Date = &date
	if len(fields) > 1 {
		out.Tags = splitTags(fields[1])
	}
	if len(fields) > 2 {
		out.Author = fields[2]
	}
	return out
}

// Filename returns the base name with its bracket prefix removed.
func Filename(baseName string) string {
	return ParseName(baseName).Filename
}

func splitTags(raw string) []string {
	tags := []string{}
	for _, tag := range strings.Split(raw, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// Hidden reports whether a post must be left out of listings.
func Hidden(meta Metadata, mode HiddenMode) bool {
	if mode == HiddenByDate {
		return meta.DateString() == ""
	}
	return meta.HasTag(HiddenTag)
}
