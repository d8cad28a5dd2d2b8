package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEnv() map[string]string {
	return map[string]string{
		"DISCORD_TOKEN":           "token",
		"DISCORD_CHANNEL_ID":      "621036564894285825",
		"DISCORD_MENTION_ROLE_ID": "658076887229497387",
		"TWITCH_CLIENT_ID":        "client",
		"TWITCH_CLIENT_SECRET":    "secret",
		"TWITCH_GAME_ID":          "506473",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(validEnv()))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.UpdateInterval)
	assert.Equal(t, 0, cfg.MinimumViewers)
	assert.Equal(t, 200, cfg.MessageHistoryLimit)
	assert.Equal(t, ":4000", cfg.AdminAddr)
	assert.Equal(t, time.Hour, cfg.IconCacheTTL)
	assert.Empty(t, cfg.HardBans())
}

func TestLoadOverrides(t *testing.T) {
	env := validEnv()
	env["STREAM_UPDATE_INTERVAL"] = "30s"
	env["MINIMUM_STREAM_VIEWERS_ANNOUNCE"] = "10"
	env["TWITCH_USER_BANS"] = "111,222"

	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(env))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.UpdateInterval)
	assert.Equal(t, 10, cfg.MinimumViewers)
	assert.Equal(t, []string{"111", "222"}, cfg.HardBans())
}

func TestLoadInvalid(t *testing.T) {
	tests := map[string]struct {
		key   string
		value string
	}{
		"missing token":        {"DISCORD_TOKEN", ""},
		"non numeric channel":  {"DISCORD_CHANNEL_ID", "streams"},
		"missing game":         {"TWITCH_GAME_ID", ""},
		"interval too short":   {"STREAM_UPDATE_INTERVAL", "1s"},
		"negative viewers":     {"MINIMUM_STREAM_VIEWERS_ANNOUNCE", "-1"},
		"history out of range": {"MESSAGE_HISTORY_LIMIT", "1000"},
	}

	for scenario, tc := range tests {
		t.Run(scenario, func(t *testing.T) {
			env := validEnv()
			env[tc.key] = tc.value

			_, err := LoadFrom(context.Background(), envconfig.MapLookuper(env))
			assert.Error(t, err)
		})
	}
}
