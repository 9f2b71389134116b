package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("TARGET_CHAT_ID", "-1001234567890")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, int64(-1001234567890), cfg.TargetChatID)
	require.Equal(t, "*/15 * * * *", cfg.CronSchedule)
	require.Equal(t, "Europe/Istanbul", cfg.Timezone)
	require.Equal(t, 5, cfg.NewsCount)
	require.Equal(t, "gemini-1.5-pro-latest", cfg.GeminiModel)
	require.Equal(t, 60*time.Second, cfg.AITimeout)
	require.Equal(t, 30*time.Second, cfg.TelegramTimeout)
	require.Equal(t, time.Second, cfg.SendInterval)
	require.Equal(t, 5, cfg.MaxSendAttempts)
	require.Equal(t, time.Second, cfg.RateLimitMargin)
	require.False(t, cfg.NotifyOnFailure)
	require.False(t, cfg.RunOnStart)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, "8080", cfg.MonitoringPort)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("CRON_SCHEDULE", "0 8 * * *")
	t.Setenv("NEWS_COUNT", "3")
	t.Setenv("SEND_INTERVAL", "1500ms")
	t.Setenv("AI_TIMEOUT", "90")
	t.Setenv("NOTIFY_ON_FAILURE", "true")
	t.Setenv("DEBUG", "true")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "0 8 * * *", cfg.CronSchedule)
	require.Equal(t, 3, cfg.NewsCount)
	require.Equal(t, 1500*time.Millisecond, cfg.SendInterval)
	require.Equal(t, 90*time.Second, cfg.AITimeout)
	require.True(t, cfg.NotifyOnFailure)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "json", cfg.LogFormat)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "missing token", env: map[string]string{"TELEGRAM_BOT_TOKEN": ""}, want: "TELEGRAM_BOT_TOKEN"},
		{name: "missing api key", env: map[string]string{"GEMINI_API_KEY": " "}, want: "GEMINI_API_KEY"},
		{name: "missing chat", env: map[string]string{"TARGET_CHAT_ID": ""}, want: "TARGET_CHAT_ID is required"},
		{name: "username chat", env: map[string]string{"TARGET_CHAT_ID": "@mychannel"}, want: "TARGET_CHAT_ID must be an integer"},
		{name: "bad cron", env: map[string]string{"CRON_SCHEDULE": "every 15 minutes"}, want: "CRON_SCHEDULE"},
		{name: "zero count", env: map[string]string{"NEWS_COUNT": "0"}, want: "NEWS_COUNT"},
		{name: "non numeric count", env: map[string]string{"NEWS_COUNT": "five"}, want: "NEWS_COUNT"},
		{name: "zero attempts", env: map[string]string{"MAX_SEND_ATTEMPTS": "0"}, want: "MAX_SEND_ATTEMPTS"},
		{name: "bad duration", env: map[string]string{"SEND_INTERVAL": "soon"}, want: "SEND_INTERVAL"},
		{name: "bad log format", env: map[string]string{"LOG_FORMAT": "xml"}, want: "LOG_FORMAT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}
