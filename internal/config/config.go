package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Configuration validation errors.
var (
	ErrNoSources        = errors.New("at least one calendar source (url or path) is required")
	ErrSourceEmpty      = errors.New("source needs either url or path")
	ErrMissingToken     = errors.New("slack token is required (SLACK_BOT_TOKEN)")
	ErrMissingChannel   = errors.New("slack channel is required (SLACK_CHANNEL)")
	ErrInvalidThreshold = errors.New("dedup.threshold must be a number in (0, 1]")
	ErrInvalidWeekday   = errors.New("weekly_day must be a weekday name")
)

// SourceConfig describes a single calendar source. Path wins over URL when
// both are set.
type SourceConfig struct {
	// ID is an internal identifier used for logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	URL  string `yaml:"url,omitempty" json:"url,omitempty"`
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

// SlackConfig holds the static bot credentials and target channel.
type SlackConfig struct {
	Token   string `yaml:"token" json:"-"`
	Channel string `yaml:"channel" json:"channel"`
	// APIURL overrides the Slack Web API base, mostly for tests.
	APIURL string `yaml:"api_url,omitempty" json:"api_url,omitempty"`
}

// DedupConfig tunes the near-duplicate heuristic.
type DedupConfig struct {
	// Threshold is the similarity ratio a pair of summaries must exceed.
	Threshold float64 `yaml:"threshold" json:"threshold"`
	// RequireFirstWord additionally demands identical first words.
	RequireFirstWord bool `yaml:"require_first_word" json:"require_first_word"`
}

type FormatConfig struct {
	// HoursOverrideBelow: a "(N hrs)" description replaces the computed range
	// only when N is below this value.
	HoursOverrideBelow int `yaml:"hours_override_below" json:"hours_override_below"`
}

// Replacement is a literal substring rewrite applied to event summaries.
// The token {owner} in To is replaced with the configured owner name.
type Replacement struct {
	From string `yaml:"from" json:"from"`
	To   string `yaml:"to" json:"to"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the preview API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	Sources []SourceConfig `yaml:"sources" json:"sources"`
	Slack   SlackConfig    `yaml:"slack" json:"slack"`

	// Owner replaces "Your" in summaries ("Your Paid Time Off time" and such).
	Owner string `yaml:"owner" json:"owner"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// Timezone is the IANA timezone used for dates and rendering.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeeklyDay is the weekday on which the weekly summary is posted.
	WeeklyDay string `yaml:"weekly_day" json:"weekly_day"`

	// RefreshCron is the cron schedule used in daemon mode.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// Listen, when set, enables the preview HTTP API in daemon mode.
	Listen string `yaml:"listen,omitempty" json:"listen,omitempty"`

	// CacheDir enables the ETag/Last-Modified cache for URL sources.
	CacheDir string `yaml:"cache_dir,omitempty" json:"cache_dir,omitempty"`

	Dedup        DedupConfig   `yaml:"dedup" json:"dedup"`
	Format       FormatConfig  `yaml:"format" json:"format"`
	Replacements []Replacement `yaml:"replacements" json:"replacements"`

	// BasicAuth, if non-nil, protects the preview API except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"-"`

	// envErrs holds environment values ApplyEnv could not parse; Validate
	// reports them.
	envErrs []error
}

const (
	defaultOwner       = "Calendar Owner"
	defaultTimezone    = "America/New_York"
	defaultWeeklyDay   = "monday"
	defaultRefreshCron = "0 9 * * *"
	defaultThreshold   = 0.6
	defaultHoursBelow  = 8
)

func defaultReplacements() []Replacement {
	return []Replacement{
		{From: "Your", To: "{owner}"},
		{From: "Paid Time Off time", To: " - OOO"},
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Sources:     []SourceConfig{},
		Owner:       defaultOwner,
		LogLevel:    "INFO",
		Timezone:    defaultTimezone,
		WeeklyDay:   defaultWeeklyDay,
		RefreshCron: defaultRefreshCron,
		Dedup: DedupConfig{
			Threshold:        defaultThreshold,
			RequireFirstWord: true,
		},
		Format: FormatConfig{
			HoursOverrideBelow: defaultHoursBelow,
		},
		Replacements: defaultReplacements(),
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled files still behave.
func (c *Config) Normalize() {
	if c.Sources == nil {
		c.Sources = []SourceConfig{}
	}
	for i := range c.Sources {
		if c.Sources[i].ID == "" {
			c.Sources[i].ID = fmt.Sprintf("source-%d", i+1)
		}
	}
	c.Owner = strings.ReplaceAll(c.Owner, `"`, "")
	if strings.TrimSpace(c.Owner) == "" {
		c.Owner = defaultOwner
	}
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	c.WeeklyDay = strings.ToLower(strings.TrimSpace(c.WeeklyDay))
	if c.WeeklyDay == "" {
		c.WeeklyDay = defaultWeeklyDay
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.Format.HoursOverrideBelow <= 0 {
		c.Format.HoursOverrideBelow = defaultHoursBelow
	}
	if c.Replacements == nil {
		c.Replacements = defaultReplacements()
	}
}

// Validate checks the configuration. Slack credentials are only required
// when messages will actually be published.
func (c *Config) Validate(requireSlack bool) error {
	var errs []error

	if len(c.Sources) == 0 {
		errs = append(errs, ErrNoSources)
	}
	for _, s := range c.Sources {
		if s.URL == "" && s.Path == "" {
			errs = append(errs, fmt.Errorf("source %q: %w", s.ID, ErrSourceEmpty))
		}
	}
	if requireSlack {
		if c.Slack.Token == "" {
			errs = append(errs, ErrMissingToken)
		}
		if c.Slack.Channel == "" {
			errs = append(errs, ErrMissingChannel)
		}
	}
	// A zero threshold would merge every same-time pair.
	if !(c.Dedup.Threshold > 0 && c.Dedup.Threshold <= 1) {
		errs = append(errs, ErrInvalidThreshold)
	}
	errs = append(errs, c.envErrs...)
	if _, err := c.Weekday(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Weekday resolves WeeklyDay.
func (c *Config) Weekday() (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), c.WeeklyDay) {
			return d, nil
		}
	}
	return time.Monday, fmt.Errorf("%w: %q", ErrInvalidWeekday, c.WeeklyDay)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - empty path: defaults
//   - file does not exist: defaults (environment variables usually carry
//     the whole configuration)
//   - file exists: YAML unmarshalled over the defaults, then normalized
func Load(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	// Lists from the file replace the defaults rather than merging.
	cfg.Replacements = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600, since the file may carry the
//     Slack token.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calpost-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
