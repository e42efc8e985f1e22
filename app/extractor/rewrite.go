package extractor

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	titlePattern           = regexp.MustCompile(`^(.*?)(?:。|\n|http\S)`)
	backgroundImagePattern = regexp.MustCompile(`(?i)url\(["'](.*?)["']`)

	// Matches the attribute or CSS lead-in, the scheme part and the host of a
	// media URL. Rendered markup encodes quotes inside style attributes, so the
	// entity forms are accepted too.
	mediaURLPattern = regexp.MustCompile(`(url\((?:["']|&#39;|&#34;|&quot;)?|src=["'])((?:https?:)?//)([^/"'()\s<>?#&:]*)`)
)

// DeriveTitle returns the text up to the first sentence terminator, newline or
// URL, or the whole text when no terminator is found.
func DeriveTitle(text string) string {
	m := titlePattern.FindStringSubmatch(text)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return text
	}
	return m[1]
}

// DerivePostID strips the "{channel}/" prefix from a data-post value.
func DerivePostID(dataPost, channel string) string {
	if channel == "" {
		return dataPost
	}
	prefix := channel + "/"
	if len(dataPost) >= len(prefix) && strings.EqualFold(dataPost[:len(prefix)], prefix) {
		return dataPost[len(prefix):]
	}
	return dataPost
}

// TagName turns a hashtag link text like "#news" into "news".
func TagName(text string) string {
	return strings.TrimSpace(strings.Replace(text, "#", "", 1))
}

func TagSearchPath(tag string) string {
	return "/search/tag/" + url.PathEscape(tag)
}

// ReplyPath maps an upstream post link such as https://t.me/channel/42 to the
// internal /posts/42 path.
func ReplyPath(href, channel string) string {
	path := href
	if u, err := url.Parse(href); err == nil {
		path = u.Path
	}
	if channel == "" {
		return path
	}
	segment := regexp.MustCompile(`(?i)/` + regexp.QuoteMeta(channel) + `/`)
	loc := segment.FindStringIndex(path)
	if loc == nil {
		return path
	}
	return path[:loc[0]] + "/posts/" + path[loc[1]:]
}

// BackgroundImageURL extracts the first url('...') from an inline style.
func BackgroundImageURL(style string) string {
	m := backgroundImagePattern.FindStringSubmatch(style)
	if m == nil {
		return ""
	}
	return m[1]
}

func isSourceHost(host, sourceHost string) bool {
	if sourceHost == "" || host == "" {
		return false
	}
	host = strings.ToLower(host)
	sourceHost = strings.ToLower(sourceHost)
	return host == sourceHost || strings.HasSuffix(host, "."+sourceHost)
}

// ProxyURL routes an absolute or protocol-relative media URL through the proxy
// prefix. URLs on the source host, URLs already behind the prefix and other
// relative values are returned unchanged.
func ProxyURL(proxyPrefix, sourceHost, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if proxyPrefix != "" && strings.HasPrefix(raw, proxyPrefix) {
		return raw
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return raw
	}
	if isSourceHost(u.Hostname(), sourceHost) {
		return raw
	}
	return proxyPrefix + raw
}

// RewriteMediaURLs applies ProxyURL to every url(...) and src attribute found
// in an HTML string.
func RewriteMediaURLs(html, proxyPrefix, sourceHost string) string {
	matches := mediaURLPattern.FindAllStringSubmatchIndex(html, -1)
	if len(matches) == 0 {
		return html
	}

	var b strings.Builder
	b.Grow(len(html) + len(matches)*len(proxyPrefix))

	last := 0
	for _, m := range matches {
		leadEnd := m[3]
		scheme := html[m[4]:m[5]]
		host := html[m[6]:m[7]]

		b.WriteString(html[last:leadEnd])
		last = leadEnd

		if isSourceHost(host, sourceHost) {
			continue
		}
		if proxyPrefix != "" && strings.HasPrefix(html[leadEnd:], proxyPrefix) {
			continue
		}

		b.WriteString(proxyPrefix)
		if scheme == "//" {
			b.WriteString("https://")
		} else {
			b.WriteString(scheme)
		}
		last = m[5]
	}
	b.WriteString(html[last:])

	return b.String()
}
