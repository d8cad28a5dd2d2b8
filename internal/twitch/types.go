package twitch

import (
	"time"

	"github.com/valyala/fastjson"

	"github.com/momentum-mod/livestreams/internal/domain"
)

const liveStreamType = "live"

type StreamsResponse struct {
	Broadcasts []domain.Broadcast
	Cursor     string
}

func NewStreamsResponse(val *fastjson.Value) interface{} {
	sr := &StreamsResponse{
		Cursor: string(val.GetStringBytes("pagination", "cursor")),
	}

	data := val.GetArray("data")
	sr.Broadcasts = make([]domain.Broadcast, 0, len(data))

	for _, d := range data {
		if t := string(d.GetStringBytes("type")); t != "" && t != liveStreamType {
			continue
		}

		b := domain.Broadcast{
			ID:           string(d.GetStringBytes("id")),
			UserID:       string(d.GetStringBytes("user_id")),
			UserLogin:    string(d.GetStringBytes("user_login")),
			UserName:     string(d.GetStringBytes("user_name")),
			GameID:       string(d.GetStringBytes("game_id")),
			Title:        string(d.GetStringBytes("title")),
			ViewerCount:  d.GetInt("viewer_count"),
			ThumbnailURL: string(d.GetStringBytes("thumbnail_url")),
		}
		if b.ID == "" {
			continue
		}
		if ts, err := time.Parse(time.RFC3339, string(d.GetStringBytes("started_at"))); err == nil {
			b.StartedAt = ts
		}

		sr.Broadcasts = append(sr.Broadcasts, b)
	}

	return sr
}

type User struct {
	ID              string
	Login           string
	DisplayName     string
	ProfileImageURL string
}

type UsersResponse struct {
	Users []User
}

func NewUsersResponse(val *fastjson.Value) interface{} {
	data := val.GetArray("data")
	ur := &UsersResponse{Users: make([]User, 0, len(data))}

	for _, d := range data {
		ur.Users = append(ur.Users, User{
			ID:              string(d.GetStringBytes("id")),
			Login:           string(d.GetStringBytes("login")),
			DisplayName:     string(d.GetStringBytes("display_name")),
			ProfileImageURL: string(d.GetStringBytes("profile_image_url")),
		})
	}

	return ur
}

type TokenResponse struct {
	AccessToken string
	Expiry      time.Duration
}

func NewTokenResponse(val *fastjson.Value) interface{} {
	return &TokenResponse{
		AccessToken: string(val.GetStringBytes("access_token")),
		Expiry:      time.Duration(val.GetInt("expires_in")) * time.Second,
	}
}
