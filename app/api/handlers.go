package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/channel-feed/app/feed"
)

func NewHandler(feeds FeedService, generator GeneratorInterface, cache CacheController,
	scheduler WarmupScheduler, media *MediaProxy, siteURL, version string) *Handler {
	return &Handler{
		feeds:     feeds,
		generator: generator,
		cache:     cache,
		scheduler: scheduler,
		media:     media,
		siteURL:   siteURL,
		version:   version,
	}
}

func listingOptions(c *gin.Context) feed.Options {
	return feed.Options{
		Before:        c.Query("before"),
		After:         c.Query("after"),
		Query:         c.Query("q"),
		SingleChannel: c.Query("channel"),
		Header:        c.Request.Header,
	}
}

func (h *Handler) GetFeed(c *gin.Context) {
	result := h.feeds.GetFeed(c.Request.Context(), listingOptions(c))
	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetPost(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing post id parameter"})
		return
	}

	post := h.feeds.GetPost(c.Request.Context(), feed.Options{
		PostID:        id,
		SingleChannel: c.Query("channel"),
		Header:        c.Request.Header,
	})
	if post == nil || post.ID == "" {
		slog.Warn("Post not found", "id", id, "channel", c.Query("channel"))
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}

	c.JSON(http.StatusOK, post)
}

func (h *Handler) GetTags(c *gin.Context) {
	tags := h.feeds.GetAllTags(c.Request.Context(), c.Request.Header)

	c.JSON(http.StatusOK, gin.H{
		"tags":  tags,
		"total": len(tags),
	})
}

func (h *Handler) SearchTag(c *gin.Context) {
	tag := c.Param("tag")
	if tag == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing tag parameter"})
		return
	}

	opts := listingOptions(c)
	opts.Query = "#" + tag

	result := h.feeds.GetFeed(c.Request.Context(), opts)
	c.Header("X-Search-Tag", tag)
	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetRSS(c *gin.Context) {
	result := h.feeds.GetFeed(c.Request.Context(), feed.Options{
		SingleChannel: c.Query("channel"),
		Header:        c.Request.Header,
	})

	rss, err := h.generator.Run(result, h.siteURL)
	if err != nil {
		slog.Error("RSS generation error", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(result.Posts)))
	c.String(http.StatusOK, rss)
}

func (h *Handler) GetStatic(c *gin.Context) {
	h.media.Serve(c)
}

func (h *Handler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.version,
		"cache":     h.cache.Stats(),
	})
}

func (h *Handler) APIWarmup(c *gin.Context) {
	queued := h.scheduler.EnqueueWarmup()
	if len(queued) == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to enqueue warmup tasks"})
		return
	}

	taskList := make([]gin.H, 0, len(queued))
	for _, task := range queued {
		taskList = append(taskList, gin.H{
			"id":     task.GetID(),
			"type":   task.GetType(),
			"target": task.GetTarget(),
		})
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"tasks":   taskList,
	})
}

func (h *Handler) APIPurgeCache(c *gin.Context) {
	before := h.cache.Stats()["entries"]
	h.cache.Purge()
	slog.Info("Result cache purged", "entries", before)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"purged":  before,
	})
}
