package tasks

import (
	"context"

	"github.com/lysyi3m/channel-feed/app/feed"
)

// TaskSchedulerInterface is what the HTTP layer and main need from the
// scheduler.
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}

// FeedWarmer refreshes a cached listing.
type FeedWarmer interface {
	Warm(ctx context.Context, opts feed.Options) error
}

var _ FeedWarmer = (*feed.Aggregator)(nil)
