package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Config holds everything the binaries read from the environment.
type Config struct {
	Port    string
	BaseURL string

	DatabaseURL          string
	InstallNotifyTrigger bool

	RedisAddr string

	SubmitWebhookURL string
	AudioWebhookURL  string
	SubmitWaitBudget time.Duration
	PollInterval     time.Duration

	SupabaseURL    string
	SupabaseKey    string
	CoverArtBucket string

	TelegramBotToken     string
	TelegramNotifyChatID int64
	OperatorIDs          map[int64]bool
	FeedToken            string

	LogFormat string
	LogLevel  string
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file loaded")
	}

	cfg := &Config{
		Port:                 getenv("PORT", "8080"),
		BaseURL:              os.Getenv("BASE_URL"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		InstallNotifyTrigger: os.Getenv("INSTALL_NOTIFY_TRIGGER") == "true",
		RedisAddr:            getenv("REDIS_ADDR", "127.0.0.1:6379"),
		SubmitWebhookURL:     os.Getenv("N8N_SUBMIT_WEBHOOK_URL"),
		AudioWebhookURL:      os.Getenv("N8N_AUDIO_WEBHOOK_URL"),
		SupabaseURL:          strings.TrimRight(os.Getenv("SUPABASE_URL"), "/"),
		SupabaseKey:          os.Getenv("SUPABASE_KEY"),
		CoverArtBucket:       getenv("COVER_ART_BUCKET", "podcast_assets"),
		TelegramBotToken:     os.Getenv("TELEGRAM_BOT_TOKEN"),
		FeedToken:            os.Getenv("FEED_TOKEN"),
		LogFormat:            getenv("LOG_FORMAT", "json"),
		LogLevel:             getenv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.SubmitWaitBudget, err = durationEnv("SUBMIT_WAIT_BUDGET", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = durationEnv("POLL_INTERVAL", time.Second); err != nil {
		return nil, err
	}
	if raw := os.Getenv("TELEGRAM_NOTIFY_CHAT_ID"); raw != "" {
		if cfg.TelegramNotifyChatID, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_NOTIFY_CHAT_ID %q: %w", raw, err)
		}
	}
	if cfg.OperatorIDs, err = ParseOperatorIDs(os.Getenv("OPERATOR_IDS")); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseOperatorIDs parses a comma separated list of Telegram user ids.
// An empty list allows every authenticated Telegram user.
func ParseOperatorIDs(raw string) (map[int64]bool, error) {
	ids := make(map[int64]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid operator id %q: %w", part, err)
		}
		ids[id] = true
	}
	return ids, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}
