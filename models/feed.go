package models

import (
	"html/template"
	"regexp"
	"sort"
	"strings"
)

var (
	reBold   = regexp.MustCompile(`\*\*(.*?)\*\*`)
	reItalic = regexp.MustCompile(`\*(.*?)\*`)
)

// Feed returns the approved posts, newest first.
func Feed(posts []Post) []Post {
	return project(posts, func(p Post) bool { return p.Status == StatusApproved })
}

// PendingQueue returns the posts awaiting a moderation decision, newest first.
func PendingQueue(posts []Post) []Post {
	return project(posts, func(p Post) bool { return p.Status == StatusPending })
}

// AdminList returns the admin's own text blocks, newest first.
func AdminList(posts []Post) []Post {
	return project(posts, func(p Post) bool { return p.Type == TypeAdmin })
}

// sortNewestFirst orders posts by timestamp descending in place. Equal
// timestamps keep their relative order.
func sortNewestFirst(posts []Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].Timestamp.After(posts[j].Timestamp)
	})
}

func project(posts []Post, keep func(Post) bool) []Post {
	out := make([]Post, 0, len(posts))
	for _, p := range posts {
		if keep(p) {
			out = append(out, p)
		}
	}
	sortNewestFirst(out)
	return out
}

// RenderContent escapes the post body. Admin posts additionally get the two
// markup tokens: **bold** and *italic*.
func RenderContent(p Post) template.HTML {
	escaped := template.HTMLEscapeString(p.Content)
	if p.Type == TypeAdmin {
		escaped = reBold.ReplaceAllString(escaped, "<b>$1</b>")
		escaped = reItalic.ReplaceAllString(escaped, "<i>$1</i>")
	}
	return template.HTML(strings.TrimSpace(escaped))
}
