package extractor

import (
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/lysyi3m/channel-feed/app/feed"
)

// Context carries what the extractor needs to know about the page being read.
type Context struct {
	Channel     string
	StaticProxy string
	SourceHost  string
	// Position of the message within its fetched page, in document order.
	Index int
}

type postExtraction struct {
	ctx   Context
	item  *goquery.Selection
	id    string
	title string
}

// guard runs one extraction step. A panicking step is logged and yields the
// zero value so the remaining fields are still extracted.
func guard[T any](ctx Context, step string, fn func() T) (out T) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Extraction step failed", "channel", ctx.Channel, "index", ctx.Index, "step", step, "error", r)
			var zero T
			out = zero
		}
	}()
	return fn()
}

// ExtractPost reads a single message. sel is either the message element
// itself or any ancestor of it (a listing wrapper or a whole embed page).
func ExtractPost(sel *goquery.Selection, ctx Context) feed.Post {
	item := sel
	if !item.HasClass("tgme_widget_message") {
		item = sel.Find(".tgme_widget_message").First()
	}

	x := &postExtraction{ctx: ctx, item: item}
	post := feed.Post{Tags: []string{}}

	post.ID = guard(ctx, "id", func() string {
		return DerivePostID(item.AttrOr("data-post", ""), ctx.Channel)
	})
	x.id = post.ID

	content := guard(ctx, "text", func() *goquery.Selection {
		var container *goquery.Selection
		if item.Find(".js-message_reply_text").Length() > 0 {
			container = item.Find(".tgme_widget_message_text.js-message_text").First()
		} else {
			container = item.Find(".tgme_widget_message_text").First()
		}
		clone := container.Clone()
		rewriteContent(clone, spoilerScope(ctx.Channel, post.ID, ctx.Index))
		return clone
	})
	if content == nil {
		content = &goquery.Selection{}
	}

	text := guard(ctx, "plain_text", func() string { return content.Text() })
	post.Text = text
	post.Title = guard(ctx, "title", func() string { return DeriveTitle(text) })
	x.title = post.Title

	if tags := guard(ctx, "tags", func() []string { return rewriteTags(content) }); tags != nil {
		post.Tags = tags
	}

	post.Type = guard(ctx, "type", func() string {
		if strings.Contains(item.AttrOr("class", ""), "service_message") {
			return feed.PostTypeService
		}
		return feed.PostTypeText
	})

	post.Datetime = guard(ctx, "datetime", func() string {
		return item.Find(".tgme_widget_message_date time").AttrOr("datetime", "")
	})

	pieces := []string{
		guard(ctx, "reply", x.reply),
		guard(ctx, "images", x.images),
		guard(ctx, "videos", x.videos),
		guard(ctx, "audio", x.audio),
		guard(ctx, "body", func() string { return innerHTML(content) }),
		guard(ctx, "image_stickers", x.imageStickers),
		guard(ctx, "video_stickers", x.videoStickers),
		guard(ctx, "poll", x.poll),
		guard(ctx, "document", func() string { return x.passthrough(".tgme_widget_message_document_wrap") }),
		guard(ctx, "unsupported_video", func() string { return x.passthrough(".tgme_widget_message_video_player.not_supported") }),
		guard(ctx, "location", func() string { return x.passthrough(".tgme_widget_message_location_wrap") }),
		guard(ctx, "link_preview", x.linkPreview),
	}
	pieces = slices.DeleteFunc(pieces, func(s string) bool { return s == "" })

	post.Content = RewriteMediaURLs(strings.Join(pieces, ""), ctx.StaticProxy, ctx.SourceHost)

	return post
}

// rewriteTags points hashtag links at the internal tag search and returns the
// tag names in document order.
func rewriteTags(content *goquery.Selection) []string {
	tags := []string{}
	content.Find(`a[href^="?q="]`).Each(func(_ int, a *goquery.Selection) {
		name := TagName(a.Text())
		a.SetAttr("href", TagSearchPath(name))
		tags = append(tags, name)
	})
	return tags
}

func spoilerScope(channel, id string, index int) string {
	if id == "" {
		return channel + "-idx-" + strconv.Itoa(index)
	}
	return channel + "-" + id
}

// ExtractChannelPage reads a channel listing: the visible posts, newest first,
// and the channel metadata. The channel name itself is left for the caller.
func ExtractChannelPage(doc *goquery.Document, ctx Context) feed.ChannelInfo {
	info := feed.ChannelInfo{Posts: []feed.Post{}}

	var posts []feed.Post
	doc.Find(".tgme_channel_history .tgme_widget_message_wrap").Each(func(i int, item *goquery.Selection) {
		postCtx := ctx
		postCtx.Index = i
		post := ExtractPost(item, postCtx)
		post.Channel = ctx.Channel
		posts = append(posts, post)
	})

	slices.Reverse(posts)
	for _, post := range posts {
		if post.Visible() {
			info.Posts = append(info.Posts, post)
		}
	}

	info.Title = guard(ctx, "channel_title", func() string {
		return doc.Find(".tgme_channel_info_header_title").First().Text()
	})
	info.Description = guard(ctx, "channel_description", func() string {
		return doc.Find(".tgme_channel_info_description").First().Text()
	})
	info.DescriptionHTML = guard(ctx, "channel_description_html", func() string {
		description := doc.Find(".tgme_channel_info_description").First()
		if description.Length() == 0 {
			return ""
		}
		clone := description.Clone()
		rewriteContent(clone, ctx.Channel+"-description")
		return innerHTML(clone)
	})
	info.Avatar = guard(ctx, "channel_avatar", func() string {
		return doc.Find(".tgme_page_photo_image img").First().AttrOr("src", "")
	})

	return info
}
