package monitor_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/momentum-mod/livestreams/internal/domain"
)

type fakeProvider struct {
	mu         sync.Mutex
	broadcasts []domain.Broadcast
	err        error
	previous   []domain.Broadcast
	fetches    int

	// When set, every fetch signals entered and then waits on block.
	entered chan struct{}
	block   chan struct{}
}

func (p *fakeProvider) set(bs ...domain.Broadcast) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.broadcasts = bs
}

func (p *fakeProvider) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *fakeProvider) FetchLiveBroadcasts(ctx context.Context, _ string) ([]domain.Broadcast, error) {
	if p.block != nil {
		p.entered <- struct{}{}
		select {
		case <-p.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.fetches++
	if p.err != nil {
		return nil, p.err
	}
	out := make([]domain.Broadcast, len(p.broadcasts))
	copy(out, p.broadcasts)
	return out, nil
}

func (p *fakeProvider) GetOwnerIconURL(_ context.Context, ownerID string) (string, error) {
	return "https://img/" + ownerID + ".png", nil
}

func (p *fakeProvider) PreviousBroadcasts() []domain.Broadcast {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.previous
}

func (p *fakeProvider) SetPreviousBroadcasts(bs []domain.Broadcast) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.previous = bs
}

// fakeChat is a single in-memory channel. Messages are kept newest first, the
// order the platform lists them in.
type fakeChat struct {
	mu     sync.Mutex
	self   domain.User
	msgs   []domain.Message
	nextID int

	posts, edits, deletes int

	listErr   error
	postErr   error
	editErr   error
	deleteErr error

	// lostPostErr is returned once by PostMessage after the message was created.
	lostPostErr error
}

func newFakeChat() *fakeChat {
	return &fakeChat{self: domain.User{ID: "bot", Username: "livestreams", Bot: true}, nextID: 100}
}

func (c *fakeChat) seed(msgs ...domain.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msgs...)
}

// remove deletes a message out-of-band, like a moderator would.
func (c *fakeChat) remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drop(id)
}

func (c *fakeChat) drop(id string) bool {
	for i, m := range c.msgs {
		if m.ID == id {
			c.msgs = append(c.msgs[:i], c.msgs[i+1:]...)
			return true
		}
	}
	return false
}

func (c *fakeChat) find(id string) (domain.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.msgs {
		if m.ID == id {
			return m, true
		}
	}
	return domain.Message{}, false
}

func (c *fakeChat) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func (c *fakeChat) setErrs(list, post, edit, del error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listErr, c.postErr, c.editErr, c.deleteErr = list, post, edit, del
}

// losePostResponse makes the next post land in the channel but report err.
func (c *fakeChat) losePostResponse(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lostPostErr = err
}

// announcementsFor counts the messages whose embed author is ownerName.
func (c *fakeChat) announcementsFor(ownerName string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, m := range c.msgs {
		if embed, ok := m.SingleEmbed(); ok && embed.AuthorName() == ownerName {
			n++
		}
	}
	return n
}

func (c *fakeChat) counts() (posts, edits, deletes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.posts, c.edits, c.deletes
}

func (c *fakeChat) CurrentUser(context.Context) (domain.User, error) {
	return c.self, nil
}

func (c *fakeChat) GetChannel(_ context.Context, id string) (domain.Channel, error) {
	return domain.Channel{ID: id, Name: "livestreams"}, nil
}

func (c *fakeChat) ListMessages(_ context.Context, _ string, limit int) ([]domain.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.listErr != nil {
		return nil, c.listErr
	}
	n := len(c.msgs)
	if limit < n {
		n = limit
	}
	out := make([]domain.Message, n)
	copy(out, c.msgs[:n])
	return out, nil
}

func (c *fakeChat) GetMessage(_ context.Context, _, id string) (domain.Message, error) {
	if m, ok := c.find(id); ok {
		return m, nil
	}
	return domain.Message{}, domain.ErrNotFound
}

func (c *fakeChat) PostMessage(_ context.Context, channelID, content string, embed domain.Embed) (domain.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.postErr != nil {
		return domain.Message{}, c.postErr
	}
	c.nextID++
	c.posts++
	m := domain.Message{
		ID:        fmt.Sprint(c.nextID),
		ChannelID: channelID,
		Author:    c.self,
		Content:   content,
		Embeds:    []domain.Embed{embed},
	}
	c.msgs = append([]domain.Message{m}, c.msgs...)

	if err := c.lostPostErr; err != nil {
		c.lostPostErr = nil
		return domain.Message{}, err
	}
	return m, nil
}

func (c *fakeChat) EditMessage(_ context.Context, _, id, content string, embed domain.Embed) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.editErr != nil {
		return c.editErr
	}
	for i := range c.msgs {
		if c.msgs[i].ID == id {
			c.edits++
			c.msgs[i].Content = content
			c.msgs[i].Embeds = []domain.Embed{embed}
			return nil
		}
	}
	return domain.ErrNotFound
}

func (c *fakeChat) DeleteMessage(_ context.Context, _, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.deleteErr != nil {
		return c.deleteErr
	}
	if !c.drop(id) {
		return domain.ErrNotFound
	}
	c.deletes++
	return nil
}

func announcement(id, authorID, ownerName string) domain.Message {
	return domain.Message{
		ID:     id,
		Author: domain.User{ID: authorID},
		Embeds: []domain.Embed{{Author: &domain.EmbedAuthor{Name: ownerName}}},
	}
}

func broadcast(id, owner string, viewers int) domain.Broadcast {
	return domain.Broadcast{
		ID:           id,
		UserID:       "u-" + owner,
		UserLogin:    owner,
		UserName:     owner,
		GameID:       "42",
		Title:        "speedrun " + owner,
		ViewerCount:  viewers,
		ThumbnailURL: "https://static/" + owner + "-{width}x{height}.jpg",
	}
}
