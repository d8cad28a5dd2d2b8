package domain

import (
	"context"
	"time"
)

type User struct {
	ID       string
	Username string
	Bot      bool
}

type Channel struct {
	ID      string
	GuildID string
	Name    string
}

type EmbedAuthor struct {
	Name    string `json:"name,omitempty"`
	URL     string `json:"url,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

type EmbedImage struct {
	URL string `json:"url,omitempty"`
}

type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Color       int          `json:"color,omitempty"`
	Timestamp   *time.Time   `json:"timestamp,omitempty"`
	Author      *EmbedAuthor `json:"author,omitempty"`
	Image       *EmbedImage  `json:"image,omitempty"`
}

// AuthorName returns the embed author's name, or an empty string when the
// embed has no author block.
func (e *Embed) AuthorName() string {
	if e == nil || e.Author == nil {
		return ""
	}
	return e.Author.Name
}

type Message struct {
	ID        string
	ChannelID string
	Author    User
	Content   string
	Embeds    []Embed
}

// SingleEmbed returns the message's embed when it carries exactly one.
func (m *Message) SingleEmbed() (*Embed, bool) {
	if len(m.Embeds) != 1 {
		return nil, false
	}
	return &m.Embeds[0], true
}

// ChatPlatform is the contract the monitor needs from the chat service hosting
// the announcement channel.
type ChatPlatform interface {
	CurrentUser(ctx context.Context) (User, error)
	GetChannel(ctx context.Context, channelID string) (Channel, error)

	ListMessages(ctx context.Context, channelID string, limit int) ([]Message, error)
	GetMessage(ctx context.Context, channelID, messageID string) (Message, error)
	PostMessage(ctx context.Context, channelID, content string, embed Embed) (Message, error)
	EditMessage(ctx context.Context, channelID, messageID, content string, embed Embed) error

	// DeleteMessage returns ErrNotFound when the message is already gone.
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}

// FromSelf filters msgs down to those authored by self.
func FromSelf(msgs []Message, self User) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Author.ID == self.ID {
			out = append(out, m)
		}
	}
	return out
}
