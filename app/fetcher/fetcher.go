package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/lysyi3m/channel-feed/app/extractor"
	"github.com/lysyi3m/channel-feed/app/feed"
)

const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 100 * time.Millisecond
	DefaultUserAgent  = "Channel Feed/1.0"
)

// Inbound headers that are never forwarded upstream. The transport owns the
// last three.
var droppedHeaders = []string{
	"Host", "Cookie", "Origin", "Referer",
	"Accept-Encoding", "Connection", "Content-Length",
}

var retryableStatuses = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusConflict:            true,
	http.StatusTooEarly:            true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

var _ feed.ChannelSource = (*Fetcher)(nil)

type Config struct {
	// Upstream origin, e.g. https://t.me
	BaseURL     string
	StaticProxy string
	UserAgent   string
	MaxRetries  int
	RetryDelay  time.Duration
}

type Fetcher struct {
	httpClient  *http.Client
	baseURL     string
	sourceHost  string
	staticProxy string
	userAgent   string
	maxRetries  int
	retryDelay  time.Duration
}

func NewFetcher(httpClient *http.Client, config Config) (*Fetcher, error) {
	base, err := url.Parse(config.BaseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid upstream base URL %q", config.BaseURL)
	}

	f := &Fetcher{
		httpClient:  httpClient,
		baseURL:     strings.TrimRight(config.BaseURL, "/"),
		sourceHost:  base.Hostname(),
		staticProxy: config.StaticProxy,
		userAgent:   config.UserAgent,
		maxRetries:  config.MaxRetries,
		retryDelay:  config.RetryDelay,
	}
	if f.userAgent == "" {
		f.userAgent = DefaultUserAgent
	}
	if f.maxRetries < 0 {
		f.maxRetries = 0
	}
	if f.retryDelay <= 0 {
		f.retryDelay = DefaultRetryDelay
	}

	return f, nil
}

func (f *Fetcher) FetchChannel(ctx context.Context, channel string, q feed.Query, header http.Header) (*feed.ChannelInfo, error) {
	target := f.listingURL(channel, q)
	slog.Info("Fetching channel", "url", target, "channel", channel, "before", q.Before, "after", q.After)

	doc, err := f.fetchDocument(ctx, target, header)
	if err != nil {
		return nil, err
	}

	info := extractor.ExtractChannelPage(doc, f.extractionContext(channel))
	info.Channel = channel

	slog.Debug("Channel extracted", "channel", channel, "posts", len(info.Posts))
	return &info, nil
}

func (f *Fetcher) FetchPost(ctx context.Context, channel string, q feed.Query, header http.Header) (*feed.Post, error) {
	target := f.postURL(channel, q.PostID)
	slog.Info("Fetching post", "url", target, "channel", channel, "id", q.PostID)

	doc, err := f.fetchDocument(ctx, target, header)
	if err != nil {
		return nil, err
	}

	post := extractor.ExtractPost(doc.Selection, f.extractionContext(channel))
	post.Channel = channel
	return &post, nil
}

func (f *Fetcher) extractionContext(channel string) extractor.Context {
	return extractor.Context{
		Channel:     channel,
		StaticProxy: f.staticProxy,
		SourceHost:  f.sourceHost,
	}
}

func (f *Fetcher) listingURL(channel string, q feed.Query) string {
	target := f.baseURL + "/s/" + url.PathEscape(channel)

	params := url.Values{}
	if q.Before != "" {
		params.Set("before", q.Before)
	}
	if q.After != "" {
		params.Set("after", q.After)
	}
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	return target
}

func (f *Fetcher) postURL(channel, id string) string {
	return f.baseURL + "/" + url.PathEscape(channel) + "/" + url.PathEscape(id) + "?embed=1&mode=tme"
}

func (f *Fetcher) fetchDocument(ctx context.Context, target string, header http.Header) (*goquery.Document, error) {
	data, err := f.fetchWithRetry(ctx, target, header)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, target string, header http.Header) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			slog.Warn("Upstream request retry scheduled", "url", target, "retry_count", attempt, "max_retries", f.maxRetries, "delay", f.retryDelay.String(), "error", lastErr)

			timer := time.NewTimer(f.retryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, fmt.Errorf("failed to fetch %s: %w", target, ctx.Err())
			case <-timer.C:
			}
		}

		data, retryable, err := f.fetch(ctx, target, header)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if !retryable {
			break
		}
	}

	return nil, fmt.Errorf("failed to fetch %s: %w", target, lastErr)
}

// fetch performs a single GET. The boolean reports whether a failure is worth
// another attempt.
func (f *Fetcher) fetch(ctx context.Context, target string, header http.Header) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header = ForwardHeaders(header)
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, retryableStatuses[resp.StatusCode], fmt.Errorf("HTTP error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, false, nil
}

// ForwardHeaders copies inbound request headers minus the ones that must not
// reach upstream.
func ForwardHeaders(in http.Header) http.Header {
	out := in.Clone()
	if out == nil {
		out = http.Header{}
	}
	for _, key := range droppedHeaders {
		out.Del(key)
	}
	return out
}
