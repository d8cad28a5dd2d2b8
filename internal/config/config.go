// Package config loads the service configuration from the environment once at
// startup.
package config

import (
	"context"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sethvargo/go-envconfig"
)

var snowflake = regexp.MustCompile(`^[0-9]{15,21}$`)

type Config struct {
	// Discord
	DiscordToken  string `env:"DISCORD_TOKEN"`
	ChannelID     string `env:"DISCORD_CHANNEL_ID"`
	MentionRoleID string `env:"DISCORD_MENTION_ROLE_ID"`

	// Twitch
	TwitchClientID     string   `env:"TWITCH_CLIENT_ID"`
	TwitchClientSecret string   `env:"TWITCH_CLIENT_SECRET"`
	TwitchGameID       string   `env:"TWITCH_GAME_ID"`
	TwitchUserBans     []string `env:"TWITCH_USER_BANS"`

	// Monitor
	UpdateInterval      time.Duration `env:"STREAM_UPDATE_INTERVAL,default=5m"`
	MinimumViewers      int           `env:"MINIMUM_STREAM_VIEWERS_ANNOUNCE,default=0"`
	MessageHistoryLimit int           `env:"MESSAGE_HISTORY_LIMIT,default=200"`

	// Admin API
	AdminAddr  string `env:"ADMIN_ADDR,default=:4000"`
	AdminToken string `env:"ADMIN_TOKEN"`

	// Icon cache
	RedisURL     string        `env:"REDIS_URL"`
	IconCacheTTL time.Duration `env:"ICON_CACHE_TTL,default=1h"`
}

// Load decodes the environment into a Config and validates it.
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom is Load with an explicit lookuper, used by tests.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &cfg, l); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DiscordToken, validation.Required),
		validation.Field(&c.ChannelID, validation.Required, validation.Match(snowflake)),
		validation.Field(&c.MentionRoleID, validation.Required, validation.Match(snowflake)),
		validation.Field(&c.TwitchClientID, validation.Required),
		validation.Field(&c.TwitchClientSecret, validation.Required),
		validation.Field(&c.TwitchGameID, validation.Required),
		validation.Field(&c.UpdateInterval, validation.Min(10*time.Second)),
		validation.Field(&c.MinimumViewers, validation.Min(0)),
		validation.Field(&c.MessageHistoryLimit, validation.Min(1), validation.Max(500)),
	)
}

// HardBans returns the configured owner deny list with blanks and
// surrounding whitespace removed.
func (c *Config) HardBans() []string {
	bans := make([]string, 0, len(c.TwitchUserBans))
	for _, id := range c.TwitchUserBans {
		if id = strings.TrimSpace(id); id != "" {
			bans = append(bans, id)
		}
	}
	return bans
}
