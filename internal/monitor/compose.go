package monitor

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/momentum-mod/livestreams/internal/domain"
)

const (
	embedColor = 0x9B59B6

	thumbnailWidth  = "1280"
	thumbnailHeight = "720"
)

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"_", `\_`,
	"~", `\~`,
	"`", "\\`",
	"|", `\|`,
	">", `\>`,
)

// EscapeMarkdown escapes the characters Discord treats as formatting.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// Composer renders the announcement for a broadcast.
type Composer struct {
	mentionRoleID string
	now           func() time.Time

	last atomic.Int64
}

func NewComposer(mentionRoleID string) *Composer {
	return &Composer{mentionRoleID: mentionRoleID, now: time.Now}
}

// Compose returns the message text and embed announcing b. Each call yields a
// thumbnail URL with a new cache-busting token.
func (c *Composer) Compose(b *domain.Broadcast, iconURL string) (string, domain.Embed) {
	text := fmt.Sprintf("%s has gone live! <@&%s>", EscapeMarkdown(b.UserName), c.mentionRoleID)

	now := c.now()
	url := b.ChannelURL()
	image := b.Thumbnail(thumbnailWidth, thumbnailHeight) + "?q=" + strconv.FormatInt(c.token(now), 10)

	embed := domain.Embed{
		Title:       EscapeMarkdown(b.Title),
		Description: humanize.Comma(int64(b.ViewerCount)) + " viewers",
		URL:         url,
		Color:       embedColor,
		Timestamp:   &now,
		Author: &domain.EmbedAuthor{
			Name:    b.UserName,
			URL:     url,
			IconURL: iconURL,
		},
		Image: &domain.EmbedImage{URL: image},
	}

	return text, embed
}

// token is strictly increasing across calls even when the clock stalls.
func (c *Composer) token(now time.Time) int64 {
	ms := now.UnixMilli()
	for {
		prev := c.last.Load()
		next := max(ms, prev+1)
		if c.last.CompareAndSwap(prev, next) {
			return next
		}
	}
}
