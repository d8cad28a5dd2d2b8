// Package twitch is a small Helix client covering the endpoints the stream
// monitor needs: app access tokens, live streams for a game, and user profile
// images.
package twitch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"github.com/momentum-mod/livestreams/internal/domain"
)

const (
	DefaultBaseURL = "https://api.twitch.tv"
	DefaultAuthURL = "https://id.twitch.tv"

	streamsPageSize = 100
	maxStreamPages  = 10

	// Tokens are refreshed this long before Twitch says they expire.
	tokenExpiryBuffer = 60 * time.Second
)

var backoffSchedule = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
}

// IconCache stores owner profile image URLs. Get returns domain.ErrNotFound on
// a miss.
type IconCache interface {
	Get(ctx context.Context, ownerID string) (string, error)
	Set(ctx context.Context, ownerID, iconURL string) error
}

type ResponseHandler func(*fastjson.Value) interface{}

type Client struct {
	id      string
	secret  string
	client  *http.Client
	pool    *fastjson.ParserPool
	statsd  statsd.ClientInterface
	icons   IconCache
	logger  *zap.Logger
	baseURL string
	authURL string
	retry   bool

	tokenMu     sync.Mutex
	accessToken string
	tokenExpiry time.Time

	prevMu   sync.Mutex
	previous []domain.Broadcast

	now func() time.Time
}

type ClientOption func(*Client)

func WithClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

func WithRetry(retry bool) ClientOption {
	return func(c *Client) {
		c.retry = retry
	}
}

func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

func WithAuthURL(u string) ClientOption {
	return func(c *Client) {
		c.authURL = strings.TrimRight(u, "/")
	}
}

func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(id, secret string, sd statsd.ClientInterface, icons IconCache, opts ...ClientOption) *Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.IdleConnTimeout = 60 * time.Second
	t.ResponseHeaderTimeout = 10 * time.Second

	if sd == nil {
		sd = &statsd.NoOpClient{}
	}

	c := &Client{
		id:      id,
		secret:  secret,
		client:  &http.Client{Transport: t, Timeout: 30 * time.Second},
		pool:    &fastjson.ParserPool{},
		statsd:  sd,
		icons:   icons,
		logger:  zap.NewNop(),
		baseURL: DefaultBaseURL,
		authURL: DefaultAuthURL,
		retry:   true,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) doRequest(ctx context.Context, r *Request) ([]byte, error) {
	req, err := r.HTTPRequest(ctx, c.id)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	resp, err := c.client.Do(req)

	_ = c.statsd.Incr("twitch.api.calls", r.tags, 0.1)
	_ = c.statsd.Histogram("twitch.api.latency", float64(time.Since(start).Milliseconds()), r.tags, 0.1)

	if err != nil {
		_ = c.statsd.Incr("twitch.api.errors", r.tags, 0.1)
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "timeout awaiting response headers") {
			return nil, ErrTimeout
		}
		return nil, err
	}
	defer resp.Body.Close()

	bb, err := io.ReadAll(resp.Body)
	if err != nil {
		_ = c.statsd.Incr("twitch.api.errors", r.tags, 0.1)
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return bb, nil
	case http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case http.StatusTooManyRequests:
		_ = c.statsd.Incr("twitch.api.ratelimit", r.tags, 0.1)
		return nil, ErrRateLimited
	default:
		_ = c.statsd.Incr("twitch.api.errors", r.tags, 0.1)
		return nil, ServerError{Body: string(bb), StatusCode: resp.StatusCode}
	}
}

func retryable(err error) bool {
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var se ServerError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	return false
}

func (c *Client) request(ctx context.Context, r *Request, rh ResponseHandler) (interface{}, error) {
	bb, err := c.doRequest(ctx, r)

	if err != nil && c.retry && retryable(err) {
		for _, backoff := range backoffSchedule {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}

			_ = c.statsd.Incr("twitch.api.retries", r.tags, 0.1)
			bb, err = c.doRequest(ctx, r)
			if err == nil || !retryable(err) {
				break
			}
		}
	}

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

// authorized issues a request that needs an app access token. A 401 drops the
// cached token and the request is retried once with a fresh one.
func (c *Client) authorized(ctx context.Context, rh ResponseHandler, opts ...RequestOption) (interface{}, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	res, err := c.request(ctx, NewRequest(append(opts, WithToken(token))...), rh)
	if !errors.Is(err, ErrUnauthorized) {
		return res, err
	}

	c.invalidateToken()
	if token, err = c.token(ctx); err != nil {
		return nil, err
	}

	return c.request(ctx, NewRequest(append(opts, WithToken(token))...), rh)
}

func (c *Client) token(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.accessToken != "" && c.now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	if c.id == "" || c.secret == "" {
		return "", ErrMissingCredentials
	}

	req := NewRequest(
		WithTags([]string{"url:/oauth2/token"}),
		WithMethod("POST"),
		WithURL(c.authURL+"/oauth2/token"),
		WithQuery("client_id", c.id),
		WithQuery("client_secret", c.secret),
		WithQuery("grant_type", "client_credentials"),
	)

	res, err := c.request(ctx, req, NewTokenResponse)
	if err != nil {
		return "", fmt.Errorf("failed to obtain twitch app token: %w", err)
	}

	tr := res.(*TokenResponse)
	if tr.AccessToken == "" {
		return "", fmt.Errorf("failed to obtain twitch app token: %w", ErrUnauthorized)
	}

	c.accessToken = tr.AccessToken
	c.tokenExpiry = c.now().Add(tr.Expiry - tokenExpiryBuffer)

	c.logger.Debug("obtained twitch app token", zap.Duration("expires_in", tr.Expiry))
	return c.accessToken, nil
}

func (c *Client) invalidateToken() {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	c.accessToken = ""
	c.tokenExpiry = time.Time{}
}

// FetchLiveBroadcasts returns every live broadcast for the game, following the
// pagination cursor for at most maxStreamPages pages.
func (c *Client) FetchLiveBroadcasts(ctx context.Context, gameID string) ([]domain.Broadcast, error) {
	var (
		cursor string
		out    []domain.Broadcast
		seen   = map[string]struct{}{}
	)

	for page := 0; page < maxStreamPages; page++ {
		opts := []RequestOption{
			WithTags([]string{"url:/helix/streams"}),
			WithMethod("GET"),
			WithURL(c.baseURL + "/helix/streams"),
			WithQuery("game_id", gameID),
			WithQuery("type", liveStreamType),
			WithQuery("first", fmt.Sprint(streamsPageSize)),
		}
		if cursor != "" {
			opts = append(opts, WithQuery("after", cursor))
		}

		res, err := c.authorized(ctx, NewStreamsResponse, opts...)
		if err != nil {
			return nil, err
		}

		sr := res.(*StreamsResponse)
		for _, b := range sr.Broadcasts {
			if _, ok := seen[b.ID]; ok {
				continue
			}
			seen[b.ID] = struct{}{}
			out = append(out, b)
		}

		if sr.Cursor == "" || len(sr.Broadcasts) == 0 {
			break
		}
		cursor = sr.Cursor
	}

	c.logChanges(gameID, out)
	return out, nil
}

func (c *Client) logChanges(gameID string, current []domain.Broadcast) {
	prev := make(map[string]domain.Broadcast)
	for _, b := range c.PreviousBroadcasts() {
		prev[b.ID] = b
	}

	for _, b := range current {
		p, ok := prev[b.ID]
		switch {
		case !ok:
			c.logger.Debug("broadcast started",
				zap.String("broadcast#id", b.ID),
				zap.String("broadcast#owner", b.UserName),
			)
		case p.GameID != b.GameID:
			c.logger.Debug("broadcast changed game",
				zap.String("broadcast#id", b.ID),
				zap.String("broadcast#game_from", p.GameID),
				zap.String("broadcast#game_to", b.GameID),
			)
		}
	}

	_ = c.statsd.Gauge("twitch.streams.live", float64(len(current)), []string{"game_id:" + gameID}, 1)
}

// GetOwnerIconURL resolves the profile image of a broadcast owner, consulting
// the icon cache first. Lookup failures are logged and yield "".
func (c *Client) GetOwnerIconURL(ctx context.Context, ownerID string) (string, error) {
	if ownerID == "" {
		return "", nil
	}

	if c.icons != nil {
		if u, err := c.icons.Get(ctx, ownerID); err == nil {
			_ = c.statsd.Incr("twitch.icons.hit", nil, 0.1)
			return u, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			c.logger.Debug("failed to read icon cache", zap.String("owner#id", ownerID), zap.Error(err))
		}
	}
	_ = c.statsd.Incr("twitch.icons.miss", nil, 0.1)

	users, err := c.Users(ctx, ownerID)
	if err != nil {
		c.logger.Debug("failed to fetch owner icon", zap.String("owner#id", ownerID), zap.Error(err))
		return "", nil
	}
	if len(users) == 0 {
		return "", nil
	}

	u := users[0].ProfileImageURL
	if c.icons != nil && u != "" {
		if err := c.icons.Set(ctx, ownerID, u); err != nil {
			c.logger.Debug("failed to write icon cache", zap.String("owner#id", ownerID), zap.Error(err))
		}
	}

	return u, nil
}

// Users looks up Helix users by id.
func (c *Client) Users(ctx context.Context, ids ...string) ([]User, error) {
	opts := []RequestOption{
		WithTags([]string{"url:/helix/users"}),
		WithMethod("GET"),
		WithURL(c.baseURL + "/helix/users"),
	}
	for _, id := range ids {
		opts = append(opts, WithQueryValue("id", id))
	}

	res, err := c.authorized(ctx, NewUsersResponse, opts...)
	if err != nil {
		return nil, err
	}

	return res.(*UsersResponse).Users, nil
}

func (c *Client) PreviousBroadcasts() []domain.Broadcast {
	c.prevMu.Lock()
	defer c.prevMu.Unlock()

	out := make([]domain.Broadcast, len(c.previous))
	copy(out, c.previous)
	return out
}

func (c *Client) SetPreviousBroadcasts(bs []domain.Broadcast) {
	c.prevMu.Lock()
	defer c.prevMu.Unlock()

	c.previous = make([]domain.Broadcast, len(bs))
	copy(c.previous, bs)
}

var _ domain.LiveStatusProvider = (*Client)(nil)
