package rehost

import "regexp"

// imagePattern matches ![alt](http(s)://url) and ![alt](url "title").
// The URL stops at the first ")" or whitespace, so a remote URL containing
// a literal ")" is captured only up to that paren. The truncated URL is
// what gets downloaded, which normally fails the post; escape the paren
// as %29 in the source instead.
var imagePattern = regexp.MustCompile(`!\[[^\]]*\]\((https?://[^)\s]+)(?:\s+"[^"]*")?\)`)

// ExtractImageURLs returns the distinct remote image URLs of a markdown
// body in first-seen order. Local paths never match, so a rewritten body
// yields nothing on a second pass.
func ExtractImageURLs(markdown string) []string {
	matches := imagePattern.FindAllStringSubmatch(markdown, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		urls = append(urls, m[1])
	}
	return urls
}
