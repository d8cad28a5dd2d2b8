package domain

import (
	"context"
	"strings"
	"time"
)

// Broadcast is one live session as reported by the live-status provider. It is
// a read-only snapshot, valid for a single reconciliation pass.
type Broadcast struct {
	ID string

	// Owner information
	UserID    string
	UserLogin string
	UserName  string

	GameID       string
	Title        string
	ViewerCount  int
	ThumbnailURL string
	StartedAt    time.Time
}

// ChannelURL is the public link to the owner's channel.
func (b *Broadcast) ChannelURL() string {
	login := b.UserLogin
	if login == "" {
		login = b.UserName
	}
	return "https://twitch.tv/" + strings.ToLower(login)
}

// Thumbnail renders the provider's thumbnail template at the given size.
func (b *Broadcast) Thumbnail(width, height string) string {
	r := strings.NewReplacer("{width}", width, "{height}", height)
	return r.Replace(b.ThumbnailURL)
}

// LiveStatusProvider is the contract the monitor needs from a streaming platform.
type LiveStatusProvider interface {
	FetchLiveBroadcasts(ctx context.Context, gameID string) ([]Broadcast, error)
	GetOwnerIconURL(ctx context.Context, ownerID string) (string, error)

	// The provider keeps the last snapshot the monitor accepted so it can diff
	// against it on the next fetch.
	PreviousBroadcasts() []Broadcast
	SetPreviousBroadcasts(bs []Broadcast)
}
