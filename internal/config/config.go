// Package config loads bot settings from the environment.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/deusflow/newsbot/internal/gemini"
	"github.com/deusflow/newsbot/internal/scheduler"
)

type Config struct {
	// Telegram settings
	TelegramToken   string
	TargetChatID    int64
	TelegramTimeout time.Duration
	SendInterval    time.Duration
	MaxSendAttempts int
	RateLimitMargin time.Duration
	NotifyOnFailure bool

	// Gemini settings
	GeminiAPIKey string
	GeminiModel  string
	NewsTopic    string
	NewsLanguage string
	AITimeout    time.Duration

	// RSS grounding (optional)
	FeedsConfigPath string

	// Schedule
	CronSchedule string
	Timezone     string
	NewsCount    int
	RunOnStart   bool

	// App settings
	Debug            bool
	LogLevel         string
	LogFormat        string
	EnableMonitoring bool
	MonitoringPort   string

	rawChatID string
}

var chatIDPattern = regexp.MustCompile(`^-?\d+$`)

func Load() (*Config, error) {
	cfg := &Config{
		TelegramToken: strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
		GeminiAPIKey:  strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		rawChatID:     strings.TrimSpace(os.Getenv("TARGET_CHAT_ID")),

		GeminiModel:     getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-pro-latest"),
		NewsTopic:       getEnvOrDefault("NEWS_TOPIC", gemini.DefaultTopic),
		NewsLanguage:    getEnvOrDefault("NEWS_LANGUAGE", gemini.DefaultLanguage),
		FeedsConfigPath: strings.TrimSpace(os.Getenv("FEEDS_CONFIG_PATH")),

		CronSchedule: getEnvOrDefault("CRON_SCHEDULE", "*/15 * * * *"),
		Timezone:     scheduler.DefaultTimezone,
		NewsCount:    getEnvIntOrDefault("NEWS_COUNT", 5),
		RunOnStart:   getEnvBoolOrDefault("RUN_ON_START", false),

		MaxSendAttempts: getEnvIntOrDefault("MAX_SEND_ATTEMPTS", 5),
		NotifyOnFailure: getEnvBoolOrDefault("NOTIFY_ON_FAILURE", false),

		Debug:            getEnvBoolOrDefault("DEBUG", false),
		LogLevel:         getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        getEnvOrDefault("LOG_FORMAT", "console"),
		EnableMonitoring: getEnvBoolOrDefault("ENABLE_HTTP_MONITORING", false),
		MonitoringPort:   getEnvOrDefault("MONITORING_PORT", "8080"),
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	var err error
	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"AI_TIMEOUT", 60 * time.Second, &cfg.AITimeout},
		{"TELEGRAM_TIMEOUT", 30 * time.Second, &cfg.TelegramTimeout},
		{"SEND_INTERVAL", time.Second, &cfg.SendInterval},
		{"RATE_LIMIT_MARGIN", time.Second, &cfg.RateLimitMargin},
	}
	for _, d := range durations {
		if *d.dest, err = getEnvDurationOrDefault(d.key, d.def); err != nil {
			return cfg, err
		}
	}

	if chatIDPattern.MatchString(cfg.rawChatID) {
		id, err := strconv.ParseInt(cfg.rawChatID, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("TARGET_CHAT_ID out of range: %w", err)
		}
		cfg.TargetChatID = id
	}

	return cfg, cfg.Validate()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault returns -1 for a value that is set but not a number so
// that Validate rejects it instead of silently using the default.
func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		return -1
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDurationOrDefault accepts Go durations ("1500ms") and bare seconds ("30").
func getEnvDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return d, nil
}

// Validate returns the first configuration problem found.
func (c *Config) Validate() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.rawChatID == "" && c.TargetChatID == 0 {
		return fmt.Errorf("TARGET_CHAT_ID is required")
	}
	if c.rawChatID != "" && !chatIDPattern.MatchString(c.rawChatID) {
		return fmt.Errorf("TARGET_CHAT_ID must be an integer, got %q", c.rawChatID)
	}
	if err := scheduler.Validate(c.CronSchedule); err != nil {
		return fmt.Errorf("CRON_SCHEDULE: %w", err)
	}
	if c.NewsCount <= 0 {
		return fmt.Errorf("NEWS_COUNT must be a positive integer")
	}
	if c.MaxSendAttempts < 1 {
		return fmt.Errorf("MAX_SEND_ATTEMPTS must be at least 1")
	}
	if c.AITimeout <= 0 || c.TelegramTimeout <= 0 {
		return fmt.Errorf("AI_TIMEOUT and TELEGRAM_TIMEOUT must be positive")
	}
	if c.SendInterval < 0 || c.RateLimitMargin < 0 {
		return fmt.Errorf("SEND_INTERVAL and RATE_LIMIT_MARGIN must not be negative")
	}
	if f := strings.ToLower(c.LogFormat); f != "console" && f != "json" {
		return fmt.Errorf("LOG_FORMAT must be 'console' or 'json'")
	}
	if _, err := strconv.Atoi(c.MonitoringPort); err != nil {
		return fmt.Errorf("MONITORING_PORT must be a number, got %q", c.MonitoringPort)
	}
	return nil
}
