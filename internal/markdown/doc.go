// Package markdown renders post bodies with goldmark. On top of GFM it
// supports a "[TOC]" paragraph that expands into a table of contents and
// the legacy embedded component fences, which are returned to the caller
// as auxiliary files rather than written here.
package markdown
