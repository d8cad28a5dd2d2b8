package twitch

import (
	"errors"
	"fmt"
)

type ServerError struct {
	Body       string
	StatusCode int
}

func (se ServerError) Error() string {
	return fmt.Sprintf("error from twitch: %d (%s)", se.StatusCode, se.Body)
}

var (
	// ErrRateLimited .
	ErrRateLimited = errors.New("rate limited")
	// ErrTimeout .
	ErrTimeout = errors.New("timeout")
	// ErrUnauthorized .
	ErrUnauthorized = errors.New("unauthorized")
	// ErrMissingCredentials .
	ErrMissingCredentials = errors.New("missing twitch client id or secret")
)
