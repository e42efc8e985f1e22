package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/channel-feed/app/feed"
)

const defaultTarget = "default"

// WarmFeedTask refreshes the cached listing of one channel, or of the
// configured default listing when Channel is empty.
type WarmFeedTask struct {
	Task
	Channel string
	warmer  FeedWarmer
}

func NewWarmFeedTask(channel string, warmer FeedWarmer) *WarmFeedTask {
	target := channel
	if target == "" {
		target = defaultTarget
	}

	return &WarmFeedTask{
		Task:    NewTask(TaskTypeWarmFeed, target),
		Channel: channel,
		warmer:  warmer,
	}
}

func (t *WarmFeedTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	slog.Debug("Warming feed", "target", t.Target, "attempt", t.RetryCount+1)

	if err := t.warmer.Warm(ctx, feed.Options{SingleChannel: t.Channel}); err != nil {
		return fmt.Errorf("failed to warm feed %s: %w", t.Target, err)
	}
	return nil
}
