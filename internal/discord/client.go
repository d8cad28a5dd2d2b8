// Package discord implements the chat platform against the Discord REST API
// using a bot token.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/valyala/fastjson"

	"github.com/momentum-mod/livestreams/internal/domain"
)

const (
	DefaultBaseURL = "https://discord.com/api/v10"

	userAgent = "DiscordBot (https://github.com/momentum-mod/livestreams, 1.0)"

	// Discord caps a single message history page at 100.
	messagePageSize = 100
)

type ResponseHandler func(*fastjson.Value) interface{}

type Client struct {
	token   string
	client  *http.Client
	pool    *fastjson.ParserPool
	statsd  statsd.ClientInterface
	baseURL string
}

type ClientOption func(*Client)

func WithClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

func NewClient(token string, sd statsd.ClientInterface, opts ...ClientOption) *Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.IdleConnTimeout = 60 * time.Second
	t.ResponseHeaderTimeout = 10 * time.Second

	if sd == nil {
		sd = &statsd.NoOpClient{}
	}

	c := &Client{
		token:   token,
		client:  &http.Client{Transport: t, Timeout: 30 * time.Second},
		pool:    &fastjson.ParserPool{},
		statsd:  sd,
		baseURL: DefaultBaseURL,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type call struct {
	method string
	path   string
	query  map[string]string
	body   interface{}
	tags   []string
}

func (c *Client) do(ctx context.Context, cl call) ([]byte, error) {
	var body io.Reader
	if cl.body != nil {
		bb, err := json.Marshal(cl.body)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(bb)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, body)
	if err != nil {
		return nil, err
	}

	q := req.URL.Query()
	for k, v := range cl.query {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()

	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.client.Do(req)

	_ = c.statsd.Incr("discord.api.calls", cl.tags, 0.1)
	_ = c.statsd.Histogram("discord.api.latency", float64(time.Since(start).Milliseconds()), cl.tags, 0.1)

	if err != nil {
		_ = c.statsd.Incr("discord.api.errors", cl.tags, 0.1)
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "timeout awaiting response headers") {
			return nil, ErrTimeout
		}
		return nil, err
	}
	defer resp.Body.Close()

	bb, err := io.ReadAll(resp.Body)
	if err != nil {
		_ = c.statsd.Incr("discord.api.errors", cl.tags, 0.1)
		return nil, err
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return bb, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		_ = c.statsd.Incr("discord.api.errors", cl.tags, 0.1)
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		_ = c.statsd.Incr("discord.api.ratelimit", cl.tags, 0.1)
		return nil, fmt.Errorf("%w: retry after %s", ErrRateLimited, c.retryAfter(bb))
	default:
		_ = c.statsd.Incr("discord.api.errors", cl.tags, 0.1)
		return nil, ServerError{Body: string(bb), StatusCode: resp.StatusCode}
	}
}

func (c *Client) retryAfter(bb []byte) time.Duration {
	parser := c.pool.Get()
	defer c.pool.Put(parser)

	val, err := parser.ParseBytes(bb)
	if err != nil {
		return 0
	}
	return time.Duration(val.GetFloat64("retry_after") * float64(time.Second))
}

func (c *Client) request(ctx context.Context, cl call, rh ResponseHandler) (interface{}, error) {
	bb, err := c.do(ctx, cl)
	if err != nil {
		return nil, err
	}

	parser := c.pool.Get()
	defer c.pool.Put(parser)

	val, err := parser.ParseBytes(bb)
	if err != nil {
		return nil, err
	}

	return rh(val), nil
}

func (c *Client) CurrentUser(ctx context.Context) (domain.User, error) {
	res, err := c.request(ctx, call{
		method: "GET",
		path:   "/users/@me",
		tags:   []string{"url:/users/@me"},
	}, NewUserResponse)
	if err != nil {
		return domain.User{}, err
	}
	return *res.(*domain.User), nil
}

func (c *Client) GetChannel(ctx context.Context, channelID string) (domain.Channel, error) {
	res, err := c.request(ctx, call{
		method: "GET",
		path:   "/channels/" + channelID,
		tags:   []string{"url:/channels/:id"},
	}, NewChannelResponse)
	if err != nil {
		return domain.Channel{}, err
	}
	return *res.(*domain.Channel), nil
}

// ListMessages returns up to limit of the channel's most recent messages,
// newest first.
func (c *Client) ListMessages(ctx context.Context, channelID string, limit int) ([]domain.Message, error) {
	var (
		out    []domain.Message
		before string
	)

	for len(out) < limit {
		n := limit - len(out)
		if n > messagePageSize {
			n = messagePageSize
		}

		q := map[string]string{"limit": fmt.Sprint(n)}
		if before != "" {
			q["before"] = before
		}

		res, err := c.request(ctx, call{
			method: "GET",
			path:   "/channels/" + channelID + "/messages",
			query:  q,
			tags:   []string{"url:/channels/:id/messages"},
		}, NewMessageListResponse)
		if err != nil {
			return nil, err
		}

		page := res.(*MessageListResponse).Messages
		out = append(out, page...)

		if len(page) < n {
			break
		}
		before = page[len(page)-1].ID
	}

	return out, nil
}

func (c *Client) GetMessage(ctx context.Context, channelID, messageID string) (domain.Message, error) {
	res, err := c.request(ctx, call{
		method: "GET",
		path:   "/channels/" + channelID + "/messages/" + messageID,
		tags:   []string{"url:/channels/:id/messages/:id"},
	}, NewMessageResponse)
	if err != nil {
		return domain.Message{}, err
	}
	return *res.(*domain.Message), nil
}

func payload(content string, embed domain.Embed) messagePayload {
	return messagePayload{
		Content:         content,
		Embeds:          []domain.Embed{embed},
		AllowedMentions: allowedMentions{Parse: []string{"roles"}},
	}
}

func (c *Client) PostMessage(ctx context.Context, channelID, content string, embed domain.Embed) (domain.Message, error) {
	res, err := c.request(ctx, call{
		method: "POST",
		path:   "/channels/" + channelID + "/messages",
		body:   payload(content, embed),
		tags:   []string{"url:/channels/:id/messages", "method:post"},
	}, NewMessageResponse)
	if err != nil {
		return domain.Message{}, err
	}
	return *res.(*domain.Message), nil
}

func (c *Client) EditMessage(ctx context.Context, channelID, messageID, content string, embed domain.Embed) error {
	_, err := c.do(ctx, call{
		method: "PATCH",
		path:   "/channels/" + channelID + "/messages/" + messageID,
		body:   payload(content, embed),
		tags:   []string{"url:/channels/:id/messages/:id", "method:patch"},
	})
	return err
}

func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	_, err := c.do(ctx, call{
		method: "DELETE",
		path:   "/channels/" + channelID + "/messages/" + messageID,
		tags:   []string{"url:/channels/:id/messages/:id", "method:delete"},
	})
	return err
}

var _ domain.ChatPlatform = (*Client)(nil)
