package feed

import (
	"html"
	"regexp"
	"strings"

	xhtml "golang.org/x/net/html"
	"golang.org/x/text/cases"
)

const highlightOpen = `<mark class="search-highlight">`
const highlightClose = `</mark>`

// ApplySearch filters posts by query and highlights the matches in their
// content. A query starting with '#' selects posts carrying exactly that tag;
// anything else is a case-insensitive substring match on title or text.
// The input slice is not modified.
func ApplySearch(posts []Post, query string) []Post {
	term := strings.ToLower(strings.TrimSpace(query))
	result := []Post{}
	if term == "" {
		return append(result, posts...)
	}

	if tag, ok := strings.CutPrefix(term, "#"); ok {
		for _, post := range posts {
			if !hasTag(post.Tags, tag) {
				continue
			}
			post.Content = HighlightHTML(post.Content, "#"+tag)
			result = append(result, post)
		}
		return result
	}

	fold := cases.Fold()
	needle := fold.String(term)
	for _, post := range posts {
		if !strings.Contains(fold.String(post.Title), needle) && !strings.Contains(fold.String(post.Text), needle) {
			continue
		}
		post.Content = HighlightHTML(post.Content, term)
		result = append(result, post)
	}
	return result
}

func hasTag(tags []string, name string) bool {
	for _, tag := range tags {
		if strings.EqualFold(tag, name) {
			return true
		}
	}
	return false
}

// HighlightHTML wraps every case-insensitive occurrence of term found in the
// text runs of content with a highlight mark. Tags, attribute values and the
// bodies of script and style elements are copied through untouched.
func HighlightHTML(content, term string) string {
	if content == "" || term == "" {
		return content
	}

	pattern := regexp.MustCompile("(?i)" + regexp.QuoteMeta(term))
	z := xhtml.NewTokenizer(strings.NewReader(content))

	var b strings.Builder
	inRawText := false
	for {
		tt := z.Next()
		if tt == xhtml.ErrorToken {
			// The reader is a string, so the only error is io.EOF.
			return b.String()
		}

		raw := z.Raw()
		switch tt {
		case xhtml.TextToken:
			if inRawText {
				b.Write(raw)
			} else {
				b.WriteString(highlightText(string(raw), pattern))
			}
		case xhtml.StartTagToken:
			b.Write(raw)
			name, _ := z.TagName()
			inRawText = isRawTextElement(string(name))
		case xhtml.EndTagToken:
			b.Write(raw)
			inRawText = false
		default:
			b.Write(raw)
		}
	}
}

func isRawTextElement(name string) bool {
	return name == "script" || name == "style"
}

// highlightText works on the decoded text so a match never splits an entity.
// Runs without a match are returned verbatim.
func highlightText(raw string, pattern *regexp.Regexp) string {
	text := html.UnescapeString(raw)
	matches := pattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return raw
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(html.EscapeString(text[last:m[0]]))
		b.WriteString(highlightOpen)
		b.WriteString(html.EscapeString(text[m[0]:m[1]]))
		b.WriteString(highlightClose)
		last = m[1]
	}
	b.WriteString(html.EscapeString(text[last:]))
	return b.String()
}
