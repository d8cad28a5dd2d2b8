package discord

import (
	"time"

	"github.com/valyala/fastjson"

	"github.com/momentum-mod/livestreams/internal/domain"
)

func parseUser(val *fastjson.Value) domain.User {
	return domain.User{
		ID:       string(val.GetStringBytes("id")),
		Username: string(val.GetStringBytes("username")),
		Bot:      val.GetBool("bot"),
	}
}

func parseEmbed(val *fastjson.Value) domain.Embed {
	e := domain.Embed{
		Title:       string(val.GetStringBytes("title")),
		Description: string(val.GetStringBytes("description")),
		URL:         string(val.GetStringBytes("url")),
		Color:       val.GetInt("color"),
	}

	if ts := val.GetStringBytes("timestamp"); len(ts) > 0 {
		if t, err := time.Parse(time.RFC3339, string(ts)); err == nil {
			e.Timestamp = &t
		}
	}

	if a := val.Get("author"); a != nil && a.Type() == fastjson.TypeObject {
		e.Author = &domain.EmbedAuthor{
			Name:    string(a.GetStringBytes("name")),
			URL:     string(a.GetStringBytes("url")),
			IconURL: string(a.GetStringBytes("icon_url")),
		}
	}

	if img := val.Get("image"); img != nil && img.Type() == fastjson.TypeObject {
		e.Image = &domain.EmbedImage{URL: string(img.GetStringBytes("url"))}
	}

	return e
}

func parseMessage(val *fastjson.Value) domain.Message {
	m := domain.Message{
		ID:        string(val.GetStringBytes("id")),
		ChannelID: string(val.GetStringBytes("channel_id")),
		Content:   string(val.GetStringBytes("content")),
	}

	if a := val.Get("author"); a != nil {
		m.Author = parseUser(a)
	}

	embeds := val.GetArray("embeds")
	if len(embeds) > 0 {
		m.Embeds = make([]domain.Embed, 0, len(embeds))
		for _, e := range embeds {
			m.Embeds = append(m.Embeds, parseEmbed(e))
		}
	}

	return m
}

func NewUserResponse(val *fastjson.Value) interface{} {
	u := parseUser(val)
	return &u
}

func NewChannelResponse(val *fastjson.Value) interface{} {
	return &domain.Channel{
		ID:      string(val.GetStringBytes("id")),
		GuildID: string(val.GetStringBytes("guild_id")),
		Name:    string(val.GetStringBytes("name")),
	}
}

func NewMessageResponse(val *fastjson.Value) interface{} {
	m := parseMessage(val)
	return &m
}

type MessageListResponse struct {
	Messages []domain.Message
}

func NewMessageListResponse(val *fastjson.Value) interface{} {
	arr, _ := val.Array()
	mlr := &MessageListResponse{Messages: make([]domain.Message, 0, len(arr))}
	for _, m := range arr {
		mlr.Messages = append(mlr.Messages, parseMessage(m))
	}
	return mlr
}

// messagePayload is the body of a create or edit message call.
type messagePayload struct {
	Content         string          `json:"content"`
	Embeds          []domain.Embed  `json:"embeds"`
	AllowedMentions allowedMentions `json:"allowed_mentions"`
}

type allowedMentions struct {
	Parse []string `json:"parse"`
}
