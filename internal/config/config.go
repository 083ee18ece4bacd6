package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"ttcal/internal/ics"
)

// RemoteUnit is a unit whose event-record document is fetched over HTTP
// instead of being discovered under SourceDir.
type RemoteUnit struct {
	Course     string `yaml:"course" json:"course"`
	CourseName string `yaml:"course_name,omitempty" json:"course_name,omitempty"`
	// Semester and Phase are the bare numbers, e.g. "3" and "1".
	Semester string `yaml:"semester" json:"semester"`
	Phase    string `yaml:"phase" json:"phase"`
	URL      string `yaml:"url" json:"url"`
}

// TimezoneConfig is the fixed zone written into every feed. It carries an
// explicit offset because the zone is declared without DST rules.
type TimezoneConfig struct {
	TZID      string `yaml:"tzid" json:"tzid"`
	Name      string `yaml:"name" json:"name"`
	UTCOffset string `yaml:"utc_offset" json:"utc_offset"`
}

type CalendarConfig struct {
	Product    string `yaml:"product" json:"product"`
	NamePrefix string `yaml:"name_prefix" json:"name_prefix"`
	// DisableDefaultReminders adds X-GOOGLE-DEFAULT-REMINDERS:false to every event.
	DisableDefaultReminders *bool `yaml:"disable_default_reminders,omitempty" json:"disable_default_reminders,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the read API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// SourceDir holds {Course Name (code)}/{semester}/{phase}.yaml documents.
	SourceDir string `yaml:"source_dir" json:"source_dir"`
	// OutputDir receives metadata.json, classes.json, per-batch JSON and feeds.
	OutputDir string `yaml:"output_dir" json:"output_dir"`
	// CurriculumFile maps subject codes to names; optional.
	CurriculumFile string `yaml:"curriculum_file,omitempty" json:"curriculum_file,omitempty"`

	Remote   []RemoteUnit `yaml:"remote" json:"remote"`
	CacheDir string       `yaml:"cache_dir" json:"cache_dir"`

	Timezone  TimezoneConfig `yaml:"timezone" json:"timezone"`
	TermWeeks int            `yaml:"term_weeks" json:"term_weeks"`
	Calendar  CalendarConfig `yaml:"calendar" json:"calendar"`

	// RefreshCron is a cron schedule for regeneration when serving.
	// Empty disables periodic regeneration.
	RefreshCron string `yaml:"refresh" json:"refresh"`
	// Workers bounds how many units are resolved at once.
	Workers int `yaml:"workers" json:"workers"`

	// Listen is the HTTP listen address for the read API.
	Listen string `yaml:"listen" json:"listen"`
	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`
}

func boolPtr(b bool) *bool { return &b }

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	feed := ics.DefaultFeedOptions()
	return &Config{
		SourceDir: "./timetables",
		OutputDir: "./public",
		Remote:    []RemoteUnit{},
		CacheDir:  "./var/source-cache",
		Timezone: TimezoneConfig{
			TZID:      feed.TZID,
			Name:      feed.TZName,
			UTCOffset: feed.UTCOffset,
		},
		TermWeeks: feed.TermWeeks,
		Calendar: CalendarConfig{
			Product:                 feed.Product,
			NamePrefix:              feed.NamePrefix,
			DisableDefaultReminders: boolPtr(feed.DisableDefaultReminders),
		},
		RefreshCron: "0 */6 * * *",
		Workers:     1,
		Listen:      "127.0.0.1:8080",
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// Normalize fills in missing or zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.SourceDir == "" {
		c.SourceDir = d.SourceDir
	}
	if c.OutputDir == "" {
		c.OutputDir = d.OutputDir
	}
	if c.Remote == nil {
		c.Remote = []RemoteUnit{}
	}
	if c.CacheDir == "" {
		c.CacheDir = d.CacheDir
	}
	if c.Timezone.TZID == "" {
		c.Timezone.TZID = d.Timezone.TZID
	}
	if c.Timezone.Name == "" {
		c.Timezone.Name = d.Timezone.Name
	}
	if c.Timezone.UTCOffset == "" {
		c.Timezone.UTCOffset = d.Timezone.UTCOffset
	}
	if c.TermWeeks <= 0 {
		c.TermWeeks = d.TermWeeks
	}
	if c.Calendar.Product == "" {
		c.Calendar.Product = d.Calendar.Product
	}
	if c.Calendar.DisableDefaultReminders == nil {
		c.Calendar.DisableDefaultReminders = d.Calendar.DisableDefaultReminders
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	switch strings.ToLower(c.LogFormat) {
	case "json":
		c.LogFormat = "json"
	default:
		c.LogFormat = "text"
	}
}

// Validate reports settings that Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := ics.ParseUTCOffset(c.Timezone.UTCOffset); err != nil {
		return fmt.Errorf("config: timezone.utc_offset: %w", err)
	}
	for i, r := range c.Remote {
		if r.Course == "" || r.Semester == "" || r.Phase == "" || r.URL == "" {
			return fmt.Errorf("config: remote[%d]: course, semester, phase and url are required", i)
		}
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" {
		return errors.New("config: basic_auth.username is empty")
	}
	return nil
}

// FeedOptions converts the calendar settings for the feed materializer.
func (c *Config) FeedOptions() ics.FeedOptions {
	opts := ics.FeedOptions{
		TZID:       c.Timezone.TZID,
		TZName:     c.Timezone.Name,
		UTCOffset:  c.Timezone.UTCOffset,
		TermWeeks:  c.TermWeeks,
		Product:    c.Calendar.Product,
		NamePrefix: c.Calendar.NamePrefix,
	}
	if c.Calendar.DisableDefaultReminders != nil {
		opts.DisableDefaultReminders = *c.Calendar.DisableDefaultReminders
	}
	return opts
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist, a default config is written there with 0600
// permissions and returned. Otherwise the file is parsed, normalized and
// validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save normalizes cfg and writes it to path through a temp file and rename,
// leaving the final file at 0600.
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

	tmp, err := os.CreateTemp(dir, ".ttcal-config-*.tmp")
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

func (c *Config) Save(path string) error {
	return Save(path, c)
}
