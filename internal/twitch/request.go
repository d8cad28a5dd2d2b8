package twitch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

const userAgent = "livestreams (+https://momentum-mod.org)"

type Request struct {
	query  url.Values
	method string
	token  string
	url    string
	tags   []string
}

type RequestOption func(*Request)

func NewRequest(opts ...RequestOption) *Request {
	req := &Request{url.Values{}, "GET", "", "", nil}
	for _, opt := range opts {
		opt(req)
	}

	return req
}

func (r *Request) HTTPRequest(ctx context.Context, clientID string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, r.method, r.url, nil)
	if err != nil {
		return nil, err
	}
	req.URL.RawQuery = r.query.Encode()

	req.Header.Add("User-Agent", userAgent)
	req.Header.Add("Client-Id", clientID)

	if r.token != "" {
		req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", r.token))
	}

	return req, nil
}

func WithTags(tags []string) RequestOption {
	return func(req *Request) {
		req.tags = tags
	}
}

func WithMethod(method string) RequestOption {
	return func(req *Request) {
		req.method = method
	}
}

func WithURL(url string) RequestOption {
	return func(req *Request) {
		req.url = url
	}
}

func WithToken(token string) RequestOption {
	return func(req *Request) {
		req.token = token
	}
}

func WithQuery(key, val string) RequestOption {
	return func(req *Request) {
		req.query.Set(key, val)
	}
}

// WithQueryValue appends rather than replaces, for repeated keys like id=.
func WithQueryValue(key, val string) RequestOption {
	return func(req *Request) {
		req.query.Add(key, val)
	}
}
