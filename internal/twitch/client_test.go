package twitch_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentum-mod/livestreams/internal/domain"
	"github.com/momentum-mod/livestreams/internal/twitch"
)

// RoundTripFunc .
type RoundTripFunc func(req *http.Request) *http.Response

// RoundTrip .
func (f RoundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req), nil
}

func NewTestClient(fn RoundTripFunc) *http.Client {
	return &http.Client{Transport: fn}
}

func respond(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

const tokenBody = `{"access_token":"tok","expires_in":3600,"token_type":"bearer"}`

type memIcons struct {
	mu   sync.Mutex
	urls map[string]string
}

func (m *memIcons) Get(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.urls[id]; ok {
		return u, nil
	}
	return "", domain.ErrNotFound
}

func (m *memIcons) Set(_ context.Context, id, u string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.urls[id] = u
	return nil
}

func newClient(fn RoundTripFunc, icons twitch.IconCache) *twitch.Client {
	return twitch.NewClient("id", "secret", &statsd.NoOpClient{}, icons,
		twitch.WithRetry(false),
		twitch.WithClient(NewTestClient(fn)),
	)
}

func TestFetchLiveBroadcastsPaginates(t *testing.T) {
	t.Parallel()

	var tokens int32
	tc := func(req *http.Request) *http.Response {
		switch req.URL.Path {
		case "/oauth2/token":
			atomic.AddInt32(&tokens, 1)
			return respond(200, tokenBody)
		case "/helix/streams":
			assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
			assert.Equal(t, "id", req.Header.Get("Client-Id"))
			assert.Equal(t, "42", req.URL.Query().Get("game_id"))

			if req.URL.Query().Get("after") == "" {
				return respond(200, `{"data":[
					{"id":"1","user_id":"u1","user_login":"alpha","user_name":"Alpha","game_id":"42","type":"live","title":"run","viewer_count":10,"thumbnail_url":"https://x/{width}x{height}.jpg","started_at":"2024-01-01T00:00:00Z"},
					{"id":"2","user_id":"u2","user_name":"Beta","game_id":"42","type":""}
				],"pagination":{"cursor":"next"}}`)
			}
			return respond(200, `{"data":[
				{"id":"2","user_id":"u2","user_name":"Beta","game_id":"42","type":"live"},
				{"id":"3","user_id":"u3","user_name":"Gamma","game_id":"42","type":"rerun"}
			],"pagination":{}}`)
		}
		return respond(404, "")
	}

	c := newClient(tc, nil)
	bs, err := c.FetchLiveBroadcasts(context.Background(), "42")
	require.NoError(t, err)

	require.Len(t, bs, 2)
	assert.Equal(t, "1", bs[0].ID)
	assert.Equal(t, "Alpha", bs[0].UserName)
	assert.Equal(t, 10, bs[0].ViewerCount)
	assert.Equal(t, 2024, bs[0].StartedAt.Year())
	assert.Equal(t, "2", bs[1].ID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&tokens))
}

func TestErrorResponse(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		status int
		err    error
	}{
		"500 returns ServerError":     {500, twitch.ServerError{Body: "", StatusCode: 500}},
		"429 returns ErrRateLimited":  {429, twitch.ErrRateLimited},
		"401 returns ErrUnauthorized": {401, twitch.ErrUnauthorized},
	}

	for scenario, tt := range tests {
		tt := tt

		t.Run(scenario, func(t *testing.T) {
			t.Parallel()

			c := newClient(func(req *http.Request) *http.Response {
				if req.URL.Path == "/oauth2/token" {
					return respond(200, tokenBody)
				}
				return respond(tt.status, "")
			}, nil)

			_, err := c.FetchLiveBroadcasts(context.Background(), "42")
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestUnauthorizedRefreshesTokenOnce(t *testing.T) {
	t.Parallel()

	var tokens, calls int32
	c := newClient(func(req *http.Request) *http.Response {
		if req.URL.Path == "/oauth2/token" {
			atomic.AddInt32(&tokens, 1)
			return respond(200, tokenBody)
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			return respond(401, "")
		}
		return respond(200, `{"data":[],"pagination":{}}`)
	}, nil)

	bs, err := c.FetchLiveBroadcasts(context.Background(), "42")
	require.NoError(t, err)
	assert.Empty(t, bs)
	assert.Equal(t, int32(2), atomic.LoadInt32(&tokens))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestMissingCredentials(t *testing.T) {
	t.Parallel()

	c := twitch.NewClient("", "", &statsd.NoOpClient{}, nil, twitch.WithRetry(false))
	_, err := c.FetchLiveBroadcasts(context.Background(), "42")
	assert.True(t, errors.Is(err, twitch.ErrMissingCredentials))
}

func TestGetOwnerIconURL(t *testing.T) {
	t.Parallel()

	var lookups int32
	icons := &memIcons{urls: map[string]string{}}
	c := newClient(func(req *http.Request) *http.Response {
		switch req.URL.Path {
		case "/oauth2/token":
			return respond(200, tokenBody)
		case "/helix/users":
			atomic.AddInt32(&lookups, 1)
			if req.URL.Query().Get("id") == "broken" {
				return respond(500, "")
			}
			return respond(200, `{"data":[{"id":"u1","login":"alpha","display_name":"Alpha","profile_image_url":"https://img/alpha.png"}]}`)
		}
		return respond(404, "")
	}, icons)

	ctx := context.Background()

	u, err := c.GetOwnerIconURL(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "https://img/alpha.png", u)

	u, err = c.GetOwnerIconURL(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "https://img/alpha.png", u)
	assert.Equal(t, int32(1), atomic.LoadInt32(&lookups))

	u, err = c.GetOwnerIconURL(ctx, "broken")
	require.NoError(t, err)
	assert.Empty(t, u)
}

func TestPreviousBroadcastsIsACopy(t *testing.T) {
	t.Parallel()

	c := newClient(func(*http.Request) *http.Response { return respond(404, "") }, nil)
	assert.Empty(t, c.PreviousBroadcasts())

	bs := []domain.Broadcast{{ID: "1"}}
	c.SetPreviousBroadcasts(bs)
	bs[0].ID = "mutated"

	prev := c.PreviousBroadcasts()
	require.Len(t, prev, 1)
	assert.Equal(t, "1", prev[0].ID)
}
