package feed

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

type Generator struct {
	version string
	now     func() time.Time
}

func NewGenerator(version string) *Generator {
	return &Generator{version: version, now: time.Now}
}

// Run renders an aggregate listing as RSS 2.0. siteURL is the public origin
// of this service; item links point at its post pages.
func (g *Generator) Run(result *AggregateResult, siteURL string) (string, error) {
	if result == nil {
		return "", fmt.Errorf("failed to generate RSS: no feed data")
	}
	siteURL = strings.TrimRight(siteURL, "/")

	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", result.Title, 4)
	g.writeElement(&buf, "link", siteURL, 4)
	g.writeElement(&buf, "description", cmp.Or(result.Description, result.Title), 4)

	fmt.Fprintf(&buf, "    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
		html.EscapeString(siteURL+"/rss.xml"))

	lastBuildDate := g.now()
	if len(result.Posts) > 0 {
		if at, err := dateparse.ParseAny(result.Posts[0].Datetime); err == nil {
			lastBuildDate = at
		}
	}
	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("Channel Feed/%s", g.version), 4)

	if result.Avatar != "" {
		buf.WriteString("    <image>\n")
		g.writeElement(&buf, "url", result.Avatar, 6)
		g.writeElement(&buf, "title", result.Title, 6)
		g.writeElement(&buf, "link", siteURL, 6)
		buf.WriteString("    </image>\n")
	}

	for _, post := range result.Posts {
		g.writeItem(&buf, post, siteURL)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, post Post, siteURL string) {
	buf.WriteString("    <item>\n")

	buf.WriteString("      <guid isPermaLink=\"false\">")
	xml.EscapeText(buf, []byte(post.Channel+"/"+post.ID))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", post.Title, 6)
	g.writeElement(buf, "link", siteURL+"/posts/"+post.ID, 6)
	g.writeElement(buf, "description", cmp.Or(post.Text, "No description available"), 6)

	if post.Content != "" {
		buf.WriteString("      <content:encoded><![CDATA[")
		// A literal "]]>" would end the section early.
		buf.WriteString(strings.ReplaceAll(post.Content, "]]>", "]]]]><![CDATA[>"))
		buf.WriteString("]]></content:encoded>\n")
	}

	if at, err := dateparse.ParseAny(post.Datetime); err == nil {
		g.writeElement(buf, "pubDate", at.Format(time.RFC1123Z), 6)
	}

	if post.Channel != "" {
		g.writeElement(buf, "author", post.Channel, 6)
	}

	for _, tag := range post.Tags {
		g.writeElement(buf, "category", tag, 6)
	}

	buf.WriteString("    </item>\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	buf.WriteString(strings.Repeat(" ", indent))
	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}
