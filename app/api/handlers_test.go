package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/lysyi3m/channel-feed/app/cache"
	"github.com/lysyi3m/channel-feed/app/feed"
	"github.com/lysyi3m/channel-feed/app/tasks"
	"github.com/mmcdole/gofeed"
)

type mockFeedService struct {
	mu       sync.Mutex
	lastOpts feed.Options
	result   *feed.AggregateResult
	posts    map[string]*feed.Post
	tags     []string
}

func (m *mockFeedService) GetFeed(_ context.Context, opts feed.Options) *feed.AggregateResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastOpts = opts
	result := m.result.Clone()
	if opts.Query != "" {
		result.Posts = feed.ApplySearch(result.Posts, opts.Query)
	}
	return result
}

func (m *mockFeedService) GetPost(_ context.Context, opts feed.Options) *feed.Post {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastOpts = opts
	return m.posts[opts.PostID].Clone()
}

func (m *mockFeedService) GetAllTags(_ context.Context, _ http.Header) []string {
	return m.tags
}

type mockScheduler struct {
	calls int
}

func (m *mockScheduler) EnqueueWarmup() []tasks.TaskInterface {
	m.calls++
	return []tasks.TaskInterface{tasks.NewWarmFeedTask("", nil)}
}

func newTestServer(t *testing.T, apiKey string) (*gin.Engine, *mockFeedService, *cache.Cache[feed.Entry], *mockScheduler, *MediaProxy) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	service := &mockFeedService{
		result: &feed.AggregateResult{
			Title:       "Test Channel",
			Description: "About the channel",
			Posts: []feed.Post{
				{ID: "2", Title: "Weekly news", Text: "Weekly news", Datetime: "2024-01-02T10:00:00+00:00", Tags: []string{"news"}, Content: "<p>Weekly news</p>", Channel: "testchan", Type: feed.PostTypeText},
				{ID: "1", Title: "Hello", Text: "Hello world", Datetime: "2024-01-01T10:00:00+00:00", Tags: []string{}, Content: "<p>Hello world</p>", Channel: "testchan", Type: feed.PostTypeText},
			},
			Channels: []feed.ChannelSummary{{Name: "testchan", Title: "Test Channel"}},
		},
		posts: map[string]*feed.Post{
			"1": {ID: "1", Title: "Hello", Content: "<p>Hello world</p>", Channel: "testchan", Tags: []string{}},
			"9": {Channel: "testchan", Tags: []string{}},
		},
		tags: []string{"news", "weekly"},
	}

	c, err := cache.New[feed.Entry](cache.DefaultTTL, cache.DefaultMaxSize)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	scheduler := &mockScheduler{}
	media := NewMediaProxy(http.DefaultClient, "Test Agent")

	handler := NewHandler(service, feed.NewGenerator("test"), c, scheduler, media, "https://feed.example.org", "test")
	return NewServer(handler, apiKey), service, c, scheduler, media
}

func perform(r http.Handler, method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for key, values := range header {
		req.Header[key] = values
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetFeed(t *testing.T) {
	r, service, _, _, _ := newTestServer(t, "")

	header := http.Header{}
	header.Set("Accept-Language", "de")
	w := perform(r, http.MethodGet, "/api/feed?before=10&after=2&channel=testchan", header)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var result feed.AggregateResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result.Title != "Test Channel" || len(result.Posts) != 2 {
		t.Errorf("Unexpected feed response: %+v", result)
	}

	opts := service.lastOpts
	if opts.Before != "10" || opts.After != "2" || opts.SingleChannel != "testchan" {
		t.Errorf("Expected query parameters to reach the service, got %+v", opts)
	}
	if opts.Header.Get("Accept-Language") != "de" {
		t.Errorf("Expected inbound headers to reach the service, got %v", opts.Header)
	}
}

func TestGetFeed_Search(t *testing.T) {
	r, _, _, _, _ := newTestServer(t, "")

	w := perform(r, http.MethodGet, "/api/feed?q=hello", nil)

	var result feed.AggregateResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(result.Posts) != 1 || result.Posts[0].ID != "1" {
		t.Fatalf("Expected one matching post, got %+v", result.Posts)
	}
	if !strings.Contains(result.Posts[0].Content, `<mark class="search-highlight">Hello</mark>`) {
		t.Errorf("Expected highlighted content, got %s", result.Posts[0].Content)
	}
}

func TestGetPost(t *testing.T) {
	r, service, _, _, _ := newTestServer(t, "")

	w := perform(r, http.MethodGet, "/api/posts/1?channel=testchan", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var post feed.Post
	if err := json.Unmarshal(w.Body.Bytes(), &post); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if post.ID != "1" || post.Channel != "testchan" {
		t.Errorf("Unexpected post: %+v", post)
	}
	if service.lastOpts.PostID != "1" || service.lastOpts.SingleChannel != "testchan" {
		t.Errorf("Expected post options to reach the service, got %+v", service.lastOpts)
	}
}

func TestGetPost_NotFound(t *testing.T) {
	r, _, _, _, _ := newTestServer(t, "")

	if w := perform(r, http.MethodGet, "/api/posts/404", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for missing post, got %d", w.Code)
	}
	if w := perform(r, http.MethodGet, "/api/posts/9", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for empty fallback post, got %d", w.Code)
	}
}

func TestGetTags(t *testing.T) {
	r, _, _, _, _ := newTestServer(t, "")

	w := perform(r, http.MethodGet, "/api/tags", nil)

	var body struct {
		Tags  []string `json:"tags"`
		Total int      `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if strings.Join(body.Tags, ",") != "news,weekly" || body.Total != 2 {
		t.Errorf("Unexpected tags response: %+v", body)
	}
}

func TestSearchTag(t *testing.T) {
	r, service, _, _, _ := newTestServer(t, "")

	w := perform(r, http.MethodGet, "/search/tag/news", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if service.lastOpts.Query != "#news" {
		t.Errorf("Expected tag query '#news', got '%s'", service.lastOpts.Query)
	}
	if w.Header().Get("X-Search-Tag") != "news" {
		t.Errorf("Expected X-Search-Tag header, got '%s'", w.Header().Get("X-Search-Tag"))
	}

	var result feed.AggregateResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(result.Posts) != 1 || result.Posts[0].ID != "2" {
		t.Errorf("Expected only the tagged post, got %+v", result.Posts)
	}
}

func TestGetRSS(t *testing.T) {
	r, _, _, _, _ := newTestServer(t, "")

	w := perform(r, http.MethodGet, "/rss.xml", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "application/xml") {
		t.Errorf("Expected XML content type, got '%s'", w.Header().Get("Content-Type"))
	}
	if w.Header().Get("X-Feed-Items") != "2" {
		t.Errorf("Expected X-Feed-Items 2, got '%s'", w.Header().Get("X-Feed-Items"))
	}

	parsed, err := gofeed.NewParser().ParseString(w.Body.String())
	if err != nil {
		t.Fatalf("Failed to parse RSS: %v", err)
	}
	if len(parsed.Items) != 2 || parsed.Items[0].Link != "https://feed.example.org/posts/2" {
		t.Errorf("Unexpected RSS items: %+v", parsed.Items)
	}
}

func TestGetHealth(t *testing.T) {
	r, _, _, _, _ := newTestServer(t, "")

	w := perform(r, http.MethodGet, "/health", nil)

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body["version"] != "test" {
		t.Errorf("Expected version 'test', got %v", body["version"])
	}
	if _, ok := body["cache"].(map[string]interface{}); !ok {
		t.Errorf("Expected cache stats, got %v", body["cache"])
	}
	if body["timestamp"] == "" {
		t.Error("Expected timestamp")
	}
}

func TestMaintenanceEndpoints_Disabled(t *testing.T) {
	r, _, _, _, _ := newTestServer(t, "")

	if w := perform(r, http.MethodPost, "/api/warmup", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 without API key configured, got %d", w.Code)
	}
}

func TestMaintenanceEndpoints_Auth(t *testing.T) {
	r, _, c, scheduler, _ := newTestServer(t, "secret")

	if w := perform(r, http.MethodPost, "/api/warmup", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 without key, got %d", w.Code)
	}

	wrong := http.Header{}
	wrong.Set("X-API-Key", "nope")
	if w := perform(r, http.MethodPost, "/api/warmup", wrong); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 with wrong key, got %d", w.Code)
	}

	bearer := http.Header{}
	bearer.Set("Authorization", "Bearer secret")
	w := perform(r, http.MethodPost, "/api/warmup", bearer)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d", w.Code)
	}
	if scheduler.calls != 1 {
		t.Errorf("Expected one warmup call, got %d", scheduler.calls)
	}

	c.Set("key", feed.Entry{Post: &feed.Post{ID: "1"}})
	key := http.Header{}
	key.Set("X-API-Key", "secret")
	if w := perform(r, http.MethodPost, "/api/cache/purge", key); w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if c.Len() != 0 {
		t.Errorf("Expected empty cache after purge, got %d entries", c.Len())
	}
}

func TestCORSPreflight(t *testing.T) {
	r, _, _, _, _ := newTestServer(t, "")

	w := perform(r, http.MethodOptions, "/api/feed", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS header")
	}
}

func TestMediaProxy(t *testing.T) {
	var gotUA, gotRange, gotQuery string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotRange = r.Header.Get("Range")
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "max-age=3600")
		w.Header().Set("Set-Cookie", "tracking=1")
		fmt.Fprint(w, "jpeg-bytes")
	}))
	defer upstream.Close()

	r, _, _, _, media := newTestServer(t, "")
	media.hostAllowed = func(string) bool { return true }

	header := http.Header{}
	header.Set("Range", "bytes=0-")
	w := perform(r, http.MethodGet, "/static/"+upstream.URL+"/file/a.jpg?token=abc", header)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "jpeg-bytes" {
		t.Errorf("Expected proxied body, got '%s'", w.Body.String())
	}
	if w.Header().Get("Content-Type") != "image/jpeg" {
		t.Errorf("Expected image/jpeg, got '%s'", w.Header().Get("Content-Type"))
	}
	if w.Header().Get("Cache-Control") != "max-age=3600" {
		t.Errorf("Expected Cache-Control to be passed through, got '%s'", w.Header().Get("Cache-Control"))
	}
	if w.Header().Get("Set-Cookie") != "" {
		t.Error("Expected Set-Cookie to be dropped")
	}
	if gotUA != "Test Agent" || gotRange != "bytes=0-" || gotQuery != "token=abc" {
		t.Errorf("Unexpected upstream request: ua=%s range=%s query=%s", gotUA, gotRange, gotQuery)
	}
}

func TestMediaProxy_RejectsPrivateHosts(t *testing.T) {
	r, _, _, _, _ := newTestServer(t, "")

	for _, target := range []string{
		"/static/http://127.0.0.1/a.jpg",
		"/static/http://localhost/a.jpg",
		"/static/http://10.0.0.1/a.jpg",
		"/static/ftp://cdn.example.com/a.jpg",
		"/static/not-a-url",
	} {
		if w := perform(r, http.MethodGet, target, nil); w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400 for %s, got %d", target, w.Code)
		}
	}
}

func TestResolveTarget(t *testing.T) {
	media := NewMediaProxy(http.DefaultClient, "Test Agent")

	tests := []struct {
		target   string
		query    string
		expected string
	}{
		{"/https://cdn.example.com/a.jpg", "", "https://cdn.example.com/a.jpg"},
		{"/https:/cdn.example.com/a.jpg", "", "https://cdn.example.com/a.jpg"},
		{"/http:/cdn.example.com/a.jpg", "x=1", "http://cdn.example.com/a.jpg?x=1"},
	}

	for _, tt := range tests {
		u, err := media.ResolveTarget(tt.target, tt.query)
		if err != nil {
			t.Errorf("ResolveTarget(%q): unexpected error %v", tt.target, err)
			continue
		}
		if u.String() != tt.expected {
			t.Errorf("ResolveTarget(%q): expected '%s', got '%s'", tt.target, tt.expected, u.String())
		}
	}
}

func TestGetPost_SiteRoute(t *testing.T) {
	r, _, _, _, _ := newTestServer(t, "")

	w := perform(r, http.MethodGet, "/posts/1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for RSS item link, got %d", w.Code)
	}

	var post feed.Post
	if err := json.Unmarshal(w.Body.Bytes(), &post); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if post.ID != "1" {
		t.Errorf("Expected post '1', got '%s'", post.ID)
	}
}

func TestMediaProxy_SlowStream(t *testing.T) {
	chunk := strings.Repeat("x", 1024)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		flusher := w.(http.Flusher)
		for i := 0; i < 6; i++ {
			fmt.Fprint(w, chunk)
			flusher.Flush()
			time.Sleep(50 * time.Millisecond)
		}
	}))
	defer upstream.Close()

	gin.SetMode(gin.TestMode)
	media := NewMediaProxy(NewMediaClient(100*time.Millisecond), "Test Agent")
	media.hostAllowed = func(string) bool { return true }

	r := gin.New()
	r.GET("/static/*target", media.Serve)

	w := perform(r, http.MethodGet, "/static/"+upstream.URL+"/video.mp4", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if w.Body.Len() != 6*1024 {
		t.Errorf("Expected %d bytes, got %d", 6*1024, w.Body.Len())
	}
}
