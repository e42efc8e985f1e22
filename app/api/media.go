package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Request headers passed through to the media origin.
var mediaRequestHeaders = []string{"Accept", "Range", "If-None-Match", "If-Modified-Since"}

// Response headers passed back to the client.
var mediaResponseHeaders = []string{"Content-Range", "Accept-Ranges", "Cache-Control", "ETag", "Last-Modified", "Expires"}

// MediaProxy streams upstream media referenced by rewritten post content.
type MediaProxy struct {
	httpClient  *http.Client
	userAgent   string
	hostAllowed func(host string) bool
}

func NewMediaProxy(httpClient *http.Client, userAgent string) *MediaProxy {
	return &MediaProxy{
		httpClient:  httpClient,
		userAgent:   userAgent,
		hostAllowed: isPublicHost,
	}
}

// NewMediaClient returns the client media is streamed with. Connecting and
// waiting for response headers are bounded; reading the body is not, so long
// videos are not cut off mid-stream.
func NewMediaClient(headerTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = headerTimeout
	return &http.Client{Transport: transport}
}

// ResolveTarget turns the path tail after the proxy prefix back into the
// upstream URL. Collapsed scheme slashes ("https:/host") are repaired.
func (p *MediaProxy) ResolveTarget(target, rawQuery string) (*url.URL, error) {
	raw := strings.TrimPrefix(target, "/")
	for _, scheme := range []string{"https:/", "http:/"} {
		if rest, ok := strings.CutPrefix(raw, scheme); ok && !strings.HasPrefix(rest, "/") {
			raw = scheme + "/" + rest
		}
	}
	if rawQuery != "" {
		raw += "?" + rawQuery
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse media URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported media URL scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("media URL has no host")
	}
	if !p.hostAllowed(u.Hostname()) {
		return nil, fmt.Errorf("media host %q is not allowed", u.Hostname())
	}
	return u, nil
}

func (p *MediaProxy) Serve(c *gin.Context) {
	target, err := p.ResolveTarget(c.Param("target"), c.Request.URL.RawQuery)
	if err != nil {
		slog.Warn("Rejected media request", "target", c.Param("target"), "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid media URL"})
		return
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid media URL"})
		return
	}
	req.Header.Set("User-Agent", p.userAgent)
	for _, key := range mediaRequestHeaders {
		if value := c.GetHeader(key); value != "" {
			req.Header.Set(key, value)
		}
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		slog.Error("Media fetch failed", "url", target.String(), "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch media"})
		return
	}
	defer resp.Body.Close()

	extra := map[string]string{}
	for _, key := range mediaResponseHeaders {
		if value := resp.Header.Get(key); value != "" {
			extra[key] = value
		}
	}

	c.DataFromReader(resp.StatusCode, resp.ContentLength, resp.Header.Get("Content-Type"), resp.Body, extra)
}

func isPublicHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return false
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return true
	}
	return !(addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast())
}
