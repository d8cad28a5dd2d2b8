package discord_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentum-mod/livestreams/internal/discord"
	"github.com/momentum-mod/livestreams/internal/domain"
)

func newServer(t *testing.T, h http.HandlerFunc) *discord.Client {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return discord.NewClient("secret", &statsd.NoOpClient{},
		discord.WithBaseURL(srv.URL),
		discord.WithClient(srv.Client()),
	)
}

func TestCurrentUser(t *testing.T) {
	t.Parallel()

	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/@me", r.URL.Path)
		assert.Equal(t, "Bot secret", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"id":"900","username":"livestreams","bot":true}`)
	})

	u, err := c.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.User{ID: "900", Username: "livestreams", Bot: true}, u)
}

func TestListMessagesPages(t *testing.T) {
	t.Parallel()

	var befores []string
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/channels/1/messages", r.URL.Path)

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		before := r.URL.Query().Get("before")
		befores = append(befores, before)

		start := 1000
		if before != "" {
			start, _ = strconv.Atoi(before)
		}

		msgs := make([]map[string]interface{}, 0, limit)
		for i := 1; i <= limit; i++ {
			msgs = append(msgs, map[string]interface{}{
				"id":         strconv.Itoa(start - i),
				"channel_id": "1",
				"author":     map[string]interface{}{"id": "900"},
			})
		}
		_ = json.NewEncoder(w).Encode(msgs)
	})

	msgs, err := c.ListMessages(context.Background(), "1", 150)
	require.NoError(t, err)
	require.Len(t, msgs, 150)
	assert.Equal(t, "999", msgs[0].ID)
	assert.Equal(t, "850", msgs[149].ID)
	assert.Equal(t, []string{"", "900"}, befores)
}

func TestListMessagesShortHistory(t *testing.T) {
	t.Parallel()

	calls := 0
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `[{"id":"5","author":{"id":"900"},"embeds":[{"title":"run","author":{"name":"Alpha"},"image":{"url":"https://x/y.jpg"},"timestamp":"2024-01-01T00:00:00+00:00"}]}]`)
	})

	msgs, err := c.ListMessages(context.Background(), "1", 200)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, 1, calls)

	e, ok := msgs[0].SingleEmbed()
	require.True(t, ok)
	assert.Equal(t, "Alpha", e.AuthorName())
	assert.Equal(t, "https://x/y.jpg", e.Image.URL)
	require.NotNil(t, e.Timestamp)
	assert.Equal(t, 2024, e.Timestamp.Year())
}

func TestPostMessage(t *testing.T) {
	t.Parallel()

	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body struct {
			Content string         `json:"content"`
			Embeds  []domain.Embed `json:"embeds"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body.Content)
		if assert.Len(t, body.Embeds, 1) {
			assert.Equal(t, "Alpha", body.Embeds[0].AuthorName())
		}

		fmt.Fprint(w, `{"id":"77","channel_id":"1","content":"hello","author":{"id":"900"}}`)
	})

	m, err := c.PostMessage(context.Background(), "1", "hello", domain.Embed{Author: &domain.EmbedAuthor{Name: "Alpha"}})
	require.NoError(t, err)
	assert.Equal(t, "77", m.ID)
	assert.Equal(t, "900", m.Author.ID)
}

func TestErrorResponse(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		status int
		body   string
		err    error
	}{
		"404 returns ErrNotFound":     {404, `{"message":"Unknown Message","code":10008}`, domain.ErrNotFound},
		"403 returns ErrUnauthorized": {403, `{}`, discord.ErrUnauthorized},
		"401 returns ErrUnauthorized": {401, `{}`, discord.ErrUnauthorized},
		"429 returns ErrRateLimited":  {429, `{"retry_after":1.5,"global":false}`, discord.ErrRateLimited},
		"502 returns ServerError":     {502, `bad gateway`, discord.ServerError{Body: "bad gateway", StatusCode: 502}},
	}

	for scenario, tt := range tests {
		tt := tt

		t.Run(scenario, func(t *testing.T) {
			t.Parallel()

			c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})

			err := c.DeleteMessage(context.Background(), "1", "2")
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestEditAndDelete(t *testing.T) {
	t.Parallel()

	var methods []string
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		assert.Equal(t, "/channels/1/messages/2", r.URL.Path)
		if r.Method == "DELETE" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		fmt.Fprint(w, `{"id":"2"}`)
	})

	ctx := context.Background()
	require.NoError(t, c.EditMessage(ctx, "1", "2", "hi", domain.Embed{}))
	require.NoError(t, c.DeleteMessage(ctx, "1", "2"))
	assert.Equal(t, []string{"PATCH", "DELETE"}, methods)
}
