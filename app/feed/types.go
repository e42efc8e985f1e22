package feed

import (
	"context"
	"net/http"
)

const (
	PostTypeText    = "text"
	PostTypeService = "service"
)

type Post struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Type     string   `json:"type"`
	Datetime string   `json:"datetime"`
	Tags     []string `json:"tags"`
	Text     string   `json:"text"`
	Content  string   `json:"content"`
	Channel  string   `json:"channel,omitempty"`
}

// Visible reports whether the post belongs in feed output.
func (p *Post) Visible() bool {
	return p.Type == PostTypeText && p.ID != "" && p.Content != ""
}

func (p *Post) Clone() *Post {
	if p == nil {
		return nil
	}
	c := *p
	if p.Tags != nil {
		c.Tags = append([]string(nil), p.Tags...)
	}
	return &c
}

type ChannelInfo struct {
	Posts           []Post `json:"posts"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	DescriptionHTML string `json:"descriptionHTML"`
	Avatar          string `json:"avatar"`
	Channel         string `json:"channel"`
}

type ChannelSummary struct {
	Name   string `json:"name"`
	Title  string `json:"title"`
	Avatar string `json:"avatar"`
}

type AggregateResult struct {
	Posts           []Post           `json:"posts"`
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	DescriptionHTML string           `json:"descriptionHTML"`
	Avatar          string           `json:"avatar"`
	Channels        []ChannelSummary `json:"channels"`
	IsMultiChannel  bool             `json:"isMultiChannel"`
}

func (r *AggregateResult) Clone() *AggregateResult {
	if r == nil {
		return nil
	}
	c := *r
	c.Posts = clonePosts(r.Posts)
	if r.Channels != nil {
		c.Channels = append([]ChannelSummary(nil), r.Channels...)
	}
	return &c
}

func clonePosts(posts []Post) []Post {
	if posts == nil {
		return nil
	}
	out := make([]Post, len(posts))
	for i := range posts {
		out[i] = *posts[i].Clone()
	}
	return out
}

// Query carries the pagination cursors and post id of one upstream request.
type Query struct {
	Before string
	After  string
	PostID string
}

// ChannelSource retrieves one channel from upstream.
type ChannelSource interface {
	FetchChannel(ctx context.Context, channel string, q Query, header http.Header) (*ChannelInfo, error)
	FetchPost(ctx context.Context, channel string, q Query, header http.Header) (*Post, error)
}

// Options describe a feed request. Header holds the inbound request headers
// to be forwarded upstream.
type Options struct {
	Before        string
	After         string
	Query         string
	PostID        string
	SingleChannel string
	Header        http.Header
}

// Config holds the channel selection for an Aggregator.
type Config struct {
	Channels       []string
	DefaultChannel string
}
