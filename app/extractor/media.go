package extractor

import (
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Posts beyond this position index load media eagerly.
const eagerIndexThreshold = 15

func loadingMode(index int) string {
	if index > eagerIndexThreshold {
		return "eager"
	}
	return "lazy"
}

func preloadMode(index int) string {
	if index > eagerIndexThreshold {
		return "auto"
	}
	return "metadata"
}

func (x *postExtraction) proxy(raw string) string {
	return ProxyURL(x.ctx.StaticProxy, x.ctx.SourceHost, raw)
}

func (x *postExtraction) reply() string {
	reply := x.item.Find(".tgme_widget_message_reply").First()
	if reply.Length() == 0 {
		return ""
	}

	clone := detached(reply)
	clone.SetHtml("<blockquote><small>" + innerHTML(clone) + "</small></blockquote>")

	if href, ok := reply.Attr("href"); ok && href != "" {
		clone.SetAttr("href", ReplyPath(href, x.ctx.Channel))
	}

	return outerHTML(clone)
}

func (x *postExtraction) images() string {
	var images []string
	x.item.Find(".tgme_widget_message_photo_wrap").Each(func(_ int, photo *goquery.Selection) {
		url := BackgroundImageURL(photo.AttrOr("style", ""))
		if url == "" {
			return
		}
		fullURL := html.EscapeString(x.proxy(url))
		images = append(images, fmt.Sprintf(
			`<button class="image-preview-button image-preview-wrap" type="button" data-image-index="%d" data-image-url="%s" aria-label="Open image preview"><img src="%s" alt="%s" loading="%s" /></button>`,
			len(images), fullURL, fullURL, html.EscapeString(x.title), loadingMode(x.ctx.Index)))
	})

	if len(images) == 0 {
		return ""
	}

	containerClass := "image-list-odd"
	if len(images)%2 == 0 {
		containerClass = "image-list-even"
	}
	return fmt.Sprintf(`<div class="image-list-container %s" data-post-id="%s">%s</div>`,
		containerClass, html.EscapeString(x.id), strings.Join(images, ""))
}

func (x *postExtraction) playable(sel *goquery.Selection) string {
	var b strings.Builder
	sel.Each(func(_ int, media *goquery.Selection) {
		clone := detached(media)
		if src, ok := media.Attr("src"); ok && src != "" {
			clone.SetAttr("src", x.proxy(src))
		}
		clone.SetAttr("controls", "")
		clone.SetAttr("preload", preloadMode(x.ctx.Index))
		clone.SetAttr("playsinline", "")
		clone.SetAttr("webkit-playsinline", "")
		b.WriteString(outerHTML(clone))
	})
	return b.String()
}

func (x *postExtraction) videos() string {
	return x.playable(x.item.Find(".tgme_widget_message_video_wrap video")) +
		x.playable(x.item.Find(".tgme_widget_message_roundvideo_wrap video"))
}

func (x *postExtraction) audio() string {
	var b strings.Builder
	x.item.Find(".tgme_widget_message_voice").Each(func(_ int, voice *goquery.Selection) {
		clone := detached(voice)
		if src, ok := voice.Attr("src"); ok && src != "" {
			clone.SetAttr("src", x.proxy(src))
		}
		clone.SetAttr("controls", "")
		b.WriteString(outerHTML(clone))
	})
	return b.String()
}

func (x *postExtraction) imageStickers() string {
	var b strings.Builder
	x.item.Find(".tgme_widget_message_sticker").Each(func(_ int, sticker *goquery.Selection) {
		url := sticker.AttrOr("data-webp", "")
		if url == "" {
			return
		}
		fmt.Fprintf(&b, `<img class="sticker" src="%s" style="width: 256px;" alt="Sticker" loading="%s" />`,
			html.EscapeString(x.proxy(url)), loadingMode(x.ctx.Index))
	})
	return b.String()
}

func (x *postExtraction) videoStickers() string {
	var b strings.Builder
	x.item.Find(".js-videosticker_video").Each(func(_ int, video *goquery.Selection) {
		url := video.AttrOr("src", "")
		if url == "" {
			return
		}
		fallback := video.Find("img").AttrOr("src", "")
		fmt.Fprintf(&b, `<div style="background-image: none; width: 256px;"><video src="%s" width="100%%" height="100%%" alt="Video Sticker" preload muted autoplay loop playsinline disablepictureinpicture><img class="sticker" src="%s" alt="Video Sticker" loading="%s" /></video></div>`,
			html.EscapeString(x.proxy(url)), html.EscapeString(x.proxy(fallback)), loadingMode(x.ctx.Index))
	})
	return b.String()
}

func (x *postExtraction) poll() string {
	poll := x.item.Find(".tgme_widget_message_poll").First()
	if poll.Length() == 0 {
		return ""
	}
	return innerHTML(detached(poll))
}

func (x *postExtraction) passthrough(selector string) string {
	sel := x.item.Find(selector)
	if sel.Length() == 0 {
		return ""
	}
	return outerHTML(detached(sel))
}

func (x *postExtraction) linkPreview() string {
	link := x.item.Find(".tgme_widget_message_link_preview")
	if link.Length() == 0 {
		return ""
	}

	title := x.item.Find(".link_preview_title").Text()
	if title == "" {
		title = x.item.Find(".link_preview_site_name").Text()
	}
	description := x.item.Find(".link_preview_description").Text()

	clone := detached(link)
	clone.SetAttr("target", "_blank")
	clone.SetAttr("rel", "noopener")
	clone.SetAttr("title", description)

	clone.Find(".link_preview_image").Each(func(_ int, image *goquery.Selection) {
		src := BackgroundImageURL(image.AttrOr("style", ""))
		if src != "" {
			src = x.proxy(src)
		}
		image.ReplaceWithHtml(fmt.Sprintf(`<img class="link_preview_image" alt="%s" src="%s" loading="%s" />`,
			html.EscapeString(title), html.EscapeString(src), loadingMode(x.ctx.Index)))
	})

	return outerHTML(clone)
}
