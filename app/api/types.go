package api

import (
	"context"
	"net/http"

	"github.com/lysyi3m/channel-feed/app/cache"
	"github.com/lysyi3m/channel-feed/app/feed"
	"github.com/lysyi3m/channel-feed/app/tasks"
)

type FeedService interface {
	GetFeed(ctx context.Context, opts feed.Options) *feed.AggregateResult
	GetPost(ctx context.Context, opts feed.Options) *feed.Post
	GetAllTags(ctx context.Context, header http.Header) []string
}

var _ FeedService = (*feed.Aggregator)(nil)

type GeneratorInterface interface {
	Run(result *feed.AggregateResult, siteURL string) (string, error)
}

var _ GeneratorInterface = (*feed.Generator)(nil)

type CacheController interface {
	Stats() map[string]interface{}
	Purge()
}

var _ CacheController = (*cache.Cache[feed.Entry])(nil)

type WarmupScheduler interface {
	EnqueueWarmup() []tasks.TaskInterface
}

var _ WarmupScheduler = (*tasks.Scheduler)(nil)

type Handler struct {
	feeds     FeedService
	generator GeneratorInterface
	cache     CacheController
	scheduler WarmupScheduler
	media     *MediaProxy
	siteURL   string
	version   string
}
