// Package generator builds the blog: it scans the posts tree, renders every
// post through markdown and the page template, and publishes the listing
// artifacts (index.html, index.json, rss.xml and the profile README).
package generator
