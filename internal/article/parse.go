package article

import (
	"fmt"
	"strings"

	"github.com/adrg/frontmatter"
)

const titlePrefix = "# "

var frontMatterDelimiters = []string{"---", "+++", ";;;"}

type frontMatter struct {
	Title  string   `yaml:"title" toml:"title" json:"title"`
	Date   string   `yaml:"date" toml:"date" json:"date"`
	Tags   []string `yaml:"tags" toml:"tags" json:"tags"`
	Author string   `yaml:"author" toml:"author" json:"author"`
}

// Parse derives the metadata of a post from its base name (no extension)
// and content. The bracket prefix of the name wins over front matter, and a
// leading "# " line wins over a front matter title. Filename and URLPath
// are left for the caller to place.
func Parse(content, baseName, defaultAuthor string) (Parsed, error) {
	name := ParseName(baseName)

	body := content
	var front frontMatter
	if hasFrontMatter(body) {
		rest, err := frontmatter.Parse(strings.NewReader(body), &front)
		if err != nil {
			return Parsed{}, fmt.Errorf("article: front matter in %q: %w", baseName, err)
		}
		body = strings.TrimLeft(string(rest), "\r\n")
	}

	title := name.Filename
	if strings.HasPrefix(body, titlePrefix) {
		line, rest, _ := strings.Cut(body, "\n")
		title = strings.TrimSuffix(line[len(titlePrefix):], "\r")
		body = rest
	} else if front.Title != "" {
		title = front.Title
	}

	date := name.Date
	if date == nil && front.Date != "" {
		d := front.Date
		date = &d
	}

	tags := name.Tags
	if len(tags) == 0 && len(front.Tags) > 0 {
		tags = splitTags(strings.Join(front.Tags, ","))
	}

	author := name.Author
	if author == "" {
		author = front.Author
	}
	if author == "" {
		author = defaultAuthor
	}

	return Parsed{
		Metadata: Metadata{
			Title:    title,
			Date:     date,
			Author:   author,
			Tags:     tags,
			Filename: name.Filename,
		},
		Markdown: body,
	}, nil
}

func hasFrontMatter(content string) bool {
	for _, delim := range frontMatterDelimiters {
		if strings.HasPrefix(content, delim+"\n") || strings.HasPrefix(content, delim+"\r\n") {
			return true
		}
	}
	return false
}
