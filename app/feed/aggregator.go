package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sort"
	"time"

	"github.com/araddon/dateparse"
	"github.com/lysyi3m/channel-feed/app/cache"
	"golang.org/x/sync/errgroup"
)

const (
	requestTypeList      = "list"
	requestTypeMultiList = "multi-list"
	requestTypePost      = "post"
)

// Entry is what the aggregator keeps in the result cache: either a merged
// listing or a single post.
type Entry struct {
	Feed *AggregateResult `json:"feed,omitempty"`
	Post *Post            `json:"post,omitempty"`
}

type Aggregator struct {
	source ChannelSource
	cache  *cache.Cache[Entry]
	config Config
}

func NewAggregator(source ChannelSource, c *cache.Cache[Entry], config Config) *Aggregator {
	return &Aggregator{
		source: source,
		cache:  c,
		config: config,
	}
}

// targetChannels resolves which channels a request reads and whether the
// result counts as a multi-channel aggregate.
func (a *Aggregator) targetChannels(single string) ([]string, bool) {
	if single != "" {
		return []string{single}, false
	}
	if len(a.config.Channels) > 0 {
		return a.config.Channels, true
	}
	if a.config.DefaultChannel != "" {
		return []string{a.config.DefaultChannel}, false
	}
	return nil, false
}

// GetFeed returns the merged listing for the requested channels, filtered and
// highlighted by opts.Query. The unfiltered listing is cached, so requests
// differing only in their query share one upstream fetch. It never fails;
// channels that cannot be fetched are left out.
//
// The upstream fetch outlives ctx: a caller that gives up does not abort it,
// and the complete result still lands in the cache for the next caller.
func (a *Aggregator) GetFeed(ctx context.Context, opts Options) *AggregateResult {
	channels, multi := a.targetChannels(opts.SingleChannel)
	key := listingKey(channels, multi, opts)

	if entry, ok := a.cache.Get(key); ok && entry.Feed != nil {
		slog.Debug("Match cache", "channels", channels, "before", opts.Before, "after", opts.After, "query", opts.Query)
		return withSearch(entry.Feed.Clone(), opts.Query)
	}

	result, _ := a.fetchListing(context.WithoutCancel(ctx), channels, multi, opts)
	a.cache.Set(key, Entry{Feed: result})
	return withSearch(result.Clone(), opts.Query)
}

// Warm fetches the listing described by opts and stores it in the cache,
// replacing any cached copy. It fails only when no channel could be fetched,
// and then leaves the cached copy alone.
func (a *Aggregator) Warm(ctx context.Context, opts Options) error {
	channels, multi := a.targetChannels(opts.SingleChannel)

	result, fetched := a.fetchListing(ctx, channels, multi, opts)
	if fetched == 0 && len(channels) > 0 {
		return fmt.Errorf("failed to fetch any of %d channels", len(channels))
	}

	a.cache.Set(listingKey(channels, multi, opts), Entry{Feed: result})
	return nil
}

// listingKey keys a listing by its channels and cursors. Aggregates get their
// own request type so a configured list of one channel does not share an
// entry with a single-channel request for it.
func listingKey(channels []string, multi bool, opts Options) string {
	requestType := requestTypeList
	if multi {
		requestType = requestTypeMultiList
	}
	return cache.GenerateFeedKey(channels, opts.Before, opts.After, requestType, "")
}

// fetchListing fetches and merges the channels and reports how many answered.
func (a *Aggregator) fetchListing(ctx context.Context, channels []string, multi bool, opts Options) (*AggregateResult, int) {
	q := Query{Before: opts.Before, After: opts.After}
	infos := fanOut(ctx, channels, func(ctx context.Context, channel string) (*ChannelInfo, error) {
		return a.source.FetchChannel(ctx, channel, q, opts.Header)
	})

	return mergeChannels(infos, multi), len(infos)
}

// GetPost returns a single post by id, trying every target channel. The first
// post with an id and content wins; otherwise the first post returned at all
// is used. Returns nil when no channel answered. Like GetFeed, the fetch is
// not cancelled with ctx.
func (a *Aggregator) GetPost(ctx context.Context, opts Options) *Post {
	channels, _ := a.targetChannels(opts.SingleChannel)
	key := cache.GenerateFeedKey(channels, opts.Before, opts.After, requestTypePost, opts.PostID)

	if entry, ok := a.cache.Get(key); ok && entry.Post != nil {
		slog.Debug("Match cache", "channels", channels, "id", opts.PostID)
		return entry.Post.Clone()
	}

	q := Query{Before: opts.Before, After: opts.After, PostID: opts.PostID}
	posts := fanOut(context.WithoutCancel(ctx), channels, func(ctx context.Context, channel string) (*Post, error) {
		return a.source.FetchPost(ctx, channel, q, opts.Header)
	})
	if len(posts) == 0 {
		slog.Warn("Post not found in any channel", "channels", channels, "id", opts.PostID)
		return nil
	}

	chosen := posts[0]
	for _, post := range posts {
		if post.ID != "" && post.Content != "" {
			chosen = post
			break
		}
	}

	a.cache.Set(key, Entry{Post: chosen})
	return chosen.Clone()
}

// GetAllTags returns the sorted, distinct tags of the default listing.
func (a *Aggregator) GetAllTags(ctx context.Context, header http.Header) []string {
	result := a.GetFeed(ctx, Options{Header: header})

	seen := map[string]bool{}
	tags := []string{}
	for _, post := range result.Posts {
		for _, tag := range post.Tags {
			if !seen[tag] {
				seen[tag] = true
				tags = append(tags, tag)
			}
		}
	}

	sort.Strings(tags)
	return tags
}

// fanOut calls fetch for every channel concurrently and waits for all of them.
// Failures are logged and dropped; the results keep the channel order.
func fanOut[T any](ctx context.Context, channels []string, fetch func(context.Context, string) (*T, error)) []*T {
	results := make([]*T, len(channels))

	var g errgroup.Group
	for i, channel := range channels {
		g.Go(func() error {
			res, err := fetch(ctx, channel)
			if err != nil {
				slog.Error("Failed to fetch channel", "channel", channel, "error", err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	return slices.DeleteFunc(results, func(res *T) bool { return res == nil })
}

func mergeChannels(infos []*ChannelInfo, multi bool) *AggregateResult {
	result := &AggregateResult{
		Posts:          []Post{},
		Channels:       []ChannelSummary{},
		IsMultiChannel: multi,
	}

	for _, info := range infos {
		result.Posts = append(result.Posts, info.Posts...)
		result.Channels = append(result.Channels, ChannelSummary{
			Name:   info.Channel,
			Title:  info.Title,
			Avatar: info.Avatar,
		})
	}

	if len(infos) > 0 {
		primary := infos[0]
		result.Title = primary.Title
		result.Description = primary.Description
		result.DescriptionHTML = primary.DescriptionHTML
		result.Avatar = primary.Avatar
	}

	SortByDatetime(result.Posts)
	return result
}

// SortByDatetime orders posts newest first. Equal datetimes keep their input
// order and posts with an unparseable datetime go last.
func SortByDatetime(posts []Post) {
	type keyed struct {
		post Post
		at   time.Time
		ok   bool
	}

	items := make([]keyed, len(posts))
	for i, post := range posts {
		at, err := dateparse.ParseAny(post.Datetime)
		items[i] = keyed{post: post, at: at, ok: err == nil}
	}

	slices.SortStableFunc(items, func(a, b keyed) int {
		switch {
		case a.ok && b.ok:
			return b.at.Compare(a.at)
		case a.ok:
			return -1
		case b.ok:
			return 1
		}
		return 0
	})

	for i := range items {
		posts[i] = items[i].post
	}
}

func withSearch(result *AggregateResult, query string) *AggregateResult {
	if query != "" {
		result.Posts = ApplySearch(result.Posts, query)
	}
	return result
}
