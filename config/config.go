package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// startDateLayout is the accepted format for HISTORY_START_DATE.
const startDateLayout = "2006-01-02T15:04:05"

// Config holds every runtime option, resolved once at startup. Components
// receive it by value and never read the environment themselves.
type Config struct {
	BotToken string
	Guild    string
	Channels []string

	IndexPath string

	PollingInterval  time.Duration
	HistoryHorizon   time.Duration
	BackfillSchedule string
	BatchSize        int
	QueueMultiplier  int
	ScanAtStartup    bool

	// HistoryStartDate, when non-zero, overrides the rolling history
	// horizon as the earliest point backfill will ever scan from.
	HistoryStartDate time.Time

	HealthCheckInterval time.Duration
	ListenAddr          string
	LogLevel            string
}

// Load reads configuration from a .env file, the environment and an
// optional config.yaml. Missing required settings are returned as errors so
// startup can abort before any collection begins.
func Load() (Config, error) {
	// A missing .env file is fine, the environment may carry everything.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("INDEX_PATH", "./data/messages.db")
	v.SetDefault("POLLING_INTERVAL", 300)
	v.SetDefault("HISTORY_HORIZON", 86400)
	v.SetDefault("BACKFILL_SCHEDULE", "@daily")
	v.SetDefault("MESSAGE_BATCH_SIZE", 1000)
	v.SetDefault("QUEUE_SIZE_MULTIPLIER", 100)
	v.SetDefault("SCAN_AT_STARTUP", true)
	v.SetDefault("HEALTH_CHECK_INTERVAL", 300)
	v.SetDefault("LISTEN_ADDR", ":5000")
	v.SetDefault("LOG_LEVEL", "info")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Config{
		BotToken:            v.GetString("BOT_TOKEN"),
		Guild:               v.GetString("GUILD"),
		IndexPath:           v.GetString("INDEX_PATH"),
		PollingInterval:     time.Duration(v.GetInt("POLLING_INTERVAL")) * time.Second,
		HistoryHorizon:      time.Duration(v.GetInt("HISTORY_HORIZON")) * time.Second,
		BackfillSchedule:    v.GetString("BACKFILL_SCHEDULE"),
		BatchSize:           v.GetInt("MESSAGE_BATCH_SIZE"),
		QueueMultiplier:     v.GetInt("QUEUE_SIZE_MULTIPLIER"),
		ScanAtStartup:       v.GetBool("SCAN_AT_STARTUP"),
		HealthCheckInterval: time.Duration(v.GetInt("HEALTH_CHECK_INTERVAL")) * time.Second,
		ListenAddr:          v.GetString("LISTEN_ADDR"),
		LogLevel:            v.GetString("LOG_LEVEL"),
	}

	if cfg.BotToken == "" {
		return Config{}, errors.New("BOT_TOKEN is empty")
	}
	if cfg.Guild == "" {
		return Config{}, errors.New("GUILD is empty")
	}

	channels, err := parseChannels(v.GetString("CHANNELS"))
	if err != nil {
		return Config{}, err
	}
	cfg.Channels = channels

	if raw := v.GetString("HISTORY_START_DATE"); raw != "" {
		start, err := time.Parse(startDateLayout, raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse HISTORY_START_DATE: %w", err)
		}
		cfg.HistoryStartDate = start.UTC()
	}

	if cfg.BatchSize < 1 {
		return Config{}, errors.New("MESSAGE_BATCH_SIZE must be at least 1")
	}
	if cfg.QueueMultiplier < 1 {
		return Config{}, errors.New("QUEUE_SIZE_MULTIPLIER must be at least 1")
	}

	return cfg, nil
}

// parseChannels splits the comma-separated channel ID list, validating each
// entry as a snowflake and dropping duplicates. An empty list is an error:
// scraping every channel of a server indiscriminately is never what anyone
// wants stored.
func parseChannels(raw string) ([]string, error) {
	if raw == "" {
		return nil, errors.New("CHANNELS is empty")
	}

	seen := make(map[string]bool)
	var channels []string
	for _, part := range strings.Split(raw, ",") {
		id := strings.TrimSpace(part)
		if id == "" {
			continue
		}
		if _, err := strconv.ParseUint(id, 10, 64); err != nil {
			return nil, fmt.Errorf("channel id %q is not a snowflake: %w", id, err)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		channels = append(channels, id)
	}
	if len(channels) == 0 {
		return nil, errors.New("CHANNELS is empty")
	}
	return channels, nil
}
