package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Environment variable names read by ApplyEnv.
const (
	EnvICSURL         = "ICS_URL"
	EnvICSPath        = "ICS_PATH"
	EnvSlackToken     = "SLACK_BOT_TOKEN"
	EnvSlackChannel   = "SLACK_CHANNEL"
	EnvSlackAPIURL    = "SLACK_API_URL"
	EnvOwner          = "CALENDAR_OWNER"
	EnvLogLevel       = "LOG_LEVEL"
	EnvTimezone       = "TIMEZONE"
	EnvDedupThreshold = "DEDUP_THRESHOLD"
	EnvDedupFirstWord = "DEDUP_FIRST_WORD"
	EnvRefreshCron    = "REFRESH_CRON"
	EnvListen         = "LISTEN"
	EnvCacheDir       = "CACHE_DIR"
	envSourceURLID    = "url"
	envSourcePathID   = "file"
	envSourceURLName  = "ICS URL"
	envSourcePathName = "ICS file"
)

// ApplyEnv overlays environment variables onto cfg. Sources given through
// ICS_URL / ICS_PATH replace file sources with the same ID ("url", "file")
// and are appended otherwise.
func ApplyEnv(cfg *Config) {
	v := viper.New()
	v.AutomaticEnv()

	setString := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = strings.TrimSpace(v.GetString(key))
		}
	}

	setString(EnvSlackToken, &cfg.Slack.Token)
	setString(EnvSlackChannel, &cfg.Slack.Channel)
	setString(EnvSlackAPIURL, &cfg.Slack.APIURL)
	setString(EnvOwner, &cfg.Owner)
	setString(EnvLogLevel, &cfg.LogLevel)
	setString(EnvTimezone, &cfg.Timezone)
	setString(EnvRefreshCron, &cfg.RefreshCron)
	setString(EnvListen, &cfg.Listen)
	setString(EnvCacheDir, &cfg.CacheDir)

	// GetFloat64 turns garbage into 0, so parse explicitly.
	if v.IsSet(EnvDedupThreshold) {
		raw := strings.TrimSpace(v.GetString(EnvDedupThreshold))
		if f, err := cast.ToFloat64E(raw); err != nil {
			cfg.envErrs = append(cfg.envErrs, fmt.Errorf("%s=%q: %w", EnvDedupThreshold, raw, ErrInvalidThreshold))
		} else {
			cfg.Dedup.Threshold = f
		}
	}
	if v.IsSet(EnvDedupFirstWord) {
		cfg.Dedup.RequireFirstWord = v.GetBool(EnvDedupFirstWord)
	}

	if v.IsSet(EnvICSURL) {
		upsertSource(cfg, SourceConfig{
			ID:   envSourceURLID,
			Name: envSourceURLName,
			URL:  strings.TrimSpace(v.GetString(EnvICSURL)),
		})
	}
	if v.IsSet(EnvICSPath) {
		upsertSource(cfg, SourceConfig{
			ID:   envSourcePathID,
			Name: envSourcePathName,
			Path: strings.TrimSpace(v.GetString(EnvICSPath)),
		})
	}

	cfg.Normalize()
}

func upsertSource(cfg *Config, src SourceConfig) {
	for i := range cfg.Sources {
		if cfg.Sources[i].ID == src.ID {
			cfg.Sources[i] = src
			return
		}
	}
	cfg.Sources = append(cfg.Sources, src)
}

// LoadWithEnv loads the YAML file (if any) and overlays the environment.
func LoadWithEnv(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	ApplyEnv(cfg)
	return cfg, nil
}
