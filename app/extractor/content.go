package extractor

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// rewriteContent runs the content rewrite pass over a detached copy of a text
// container. scope keeps spoiler ids unique across posts.
func rewriteContent(content *goquery.Selection, scope string) {
	content.Find(".emoji").RemoveAttr("style")

	content.Find("a").Each(func(_ int, a *goquery.Selection) {
		a.SetAttr("title", a.Text())
		a.RemoveAttr("onclick")
	})

	content.Find("tg-spoiler").Each(func(i int, spoiler *goquery.Selection) {
		spoiler.SetAttr("id", fmt.Sprintf("spoiler-%s-%d", scope, i))
		spoiler.WrapHtml(`<label class="spoiler-button"></label>`)
		spoiler.BeforeHtml(`<input type="checkbox" />`)
	})

	content.Find("pre").Each(func(_ int, pre *goquery.Selection) {
		highlightBlock(pre)
	})

	stripUnsafe(content)
}

func highlightBlock(pre *goquery.Selection) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Code highlighting panicked", "error", r)
		}
	}()

	pre.Find("br").Each(func(_ int, br *goquery.Selection) {
		br.ReplaceWithNodes(&html.Node{Type: html.TextNode, Data: "\n"})
	})

	code := pre.Text()
	language, markup, err := HighlightCode(code)
	if err != nil {
		slog.Error("Failed to highlight code block", "error", err)
		return
	}

	pre.SetHtml(fmt.Sprintf(`<code class="language-%s">%s</code>`, language, markup))
}

// stripUnsafe removes script elements and inline event handler attributes.
func stripUnsafe(sel *goquery.Selection) {
	sel.Find("script").Remove()

	sel.Find("*").AddSelection(sel).Each(func(_ int, s *goquery.Selection) {
		for _, n := range s.Nodes {
			if n.Type != html.ElementNode {
				continue
			}
			kept := n.Attr[:0]
			for _, attr := range n.Attr {
				if strings.HasPrefix(strings.ToLower(attr.Key), "on") {
					continue
				}
				kept = append(kept, attr)
			}
			n.Attr = kept
		}
	})
}

// detached returns a sanitized copy of the selection that can be rewritten
// without touching the parsed source document.
func detached(sel *goquery.Selection) *goquery.Selection {
	clone := sel.Clone()
	stripUnsafe(clone)
	return clone
}

func outerHTML(sel *goquery.Selection) string {
	var b strings.Builder
	sel.Each(func(_ int, s *goquery.Selection) {
		out, err := goquery.OuterHtml(s)
		if err != nil {
			slog.Debug("Failed to render element", "error", err)
			return
		}
		b.WriteString(out)
	})
	return b.String()
}

func innerHTML(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}
	out, err := sel.Html()
	if err != nil {
		slog.Debug("Failed to render element content", "error", err)
		return ""
	}
	return out
}
