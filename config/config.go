// Package config loads studycache settings from a YAML file.
//
// Every field is optional; missing fields keep the values returned by
// Default. Sizes accept human-readable binary units ("250MiB", "1GiB",
// "150m") and are written back in the same form.
//
//	limits:
//	  budget: 250MiB
//	  low_mode_budget: 150MiB
//	  low_free_space: 1GiB
//	  max_sets: 150
//	  max_items: 100000
//	  stale_days: 120
//	snapshot:
//	  dir: ~/.local/share/studycache
//	archive:
//	  repository: registry.example.com/study/sets
//	  content_dir: ~/.local/share/studycache/sets
//	log:
//	  level: info
//	  format: text
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"

	"github.com/meigma/studycache/internal/settype"
	"github.com/meigma/studycache/policy"
)

// Config is the complete studycache configuration.
type Config struct {
	Limits    LimitsConfig    `yaml:"limits"`
	FreeSpace FreeSpaceConfig `yaml:"free_space"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Log       LogConfig       `yaml:"log"`
}

// LimitsConfig mirrors policy.Limits in file form.
type LimitsConfig struct {
	Budget        Size    `yaml:"budget"`
	LowModeBudget Size    `yaml:"low_mode_budget"`
	LowFreeSpace  Size    `yaml:"low_free_space"`
	MaxSets       int     `yaml:"max_sets"`
	MaxItems      int64   `yaml:"max_items"`
	StaleDays     int     `yaml:"stale_days"`
	EvictBatch    int     `yaml:"evict_batch"`
	WarnAtUsage   float64 `yaml:"warn_at_usage"`
}

// FreeSpaceConfig selects the volume probed for free space.
type FreeSpaceConfig struct {
	// Path on the volume to probe. Empty means the snapshot dir.
	Path string `yaml:"path"`
}

// SnapshotConfig selects where the set registry is persisted.
// RedisAddr takes precedence over Dir when both are set.
type SnapshotConfig struct {
	Dir       string `yaml:"dir"`
	RedisAddr string `yaml:"redis_addr"`
	RedisKey  string `yaml:"redis_key"`
	RedisDB   int    `yaml:"redis_db"`
}

// ArchiveConfig configures background upload of archived sets.
// An empty Repository disables uploads.
type ArchiveConfig struct {
	Repository   string `yaml:"repository"`
	PlainHTTP    bool   `yaml:"plain_http"`
	DockerConfig bool   `yaml:"docker_config"`
	ContentDir   string `yaml:"content_dir"`
	Workers      int    `yaml:"workers"`
	QueueSize    int    `yaml:"queue_size"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Size is a byte count written with binary units.
type Size int64

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Size) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	n, err := units.RAMInBytes(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*s = Size(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (s Size) MarshalYAML() (any, error) {
	return s.String(), nil
}

// String returns s in binary units, e.g. "250MiB".
func (s Size) String() string {
	return units.BytesSize(float64(s))
}

// Default returns the configuration used when no file is given.
func Default() Config {
	l := policy.Default()
	return Config{
		Limits: LimitsConfig{
			Budget:        Size(policy.BudgetBytes(l.BudgetMB)),
			LowModeBudget: Size(policy.BudgetBytes(l.LowModeBudgetMB)),
			LowFreeSpace:  Size(l.LowFreeSpaceGB * units.GiB),
			MaxSets:       l.MaxSets,
			MaxItems:      l.MaxItems,
			StaleDays:     int(l.StaleAfter / (24 * time.Hour)),
			EvictBatch:    l.EvictBatch,
			WarnAtUsage:   l.WarnAtUsage,
		},
		Archive: ArchiveConfig{
			Workers:   2,
			QueueSize: 64,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the file at path over Default and validates the result.
// Unknown keys are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes data over Default and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %v", settype.ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings that cannot be used.
func (c Config) Validate() error {
	if _, err := c.PolicyLimits(); err != nil {
		return err
	}
	if _, err := c.Log.level(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log format %q (want text or json)", settype.ErrInvalidConfig, c.Log.Format)
	}
	if c.Archive.Repository != "" {
		if c.Archive.ContentDir == "" {
			return fmt.Errorf("%w: archive.content_dir is required with archive.repository", settype.ErrInvalidConfig)
		}
		if c.Archive.Workers <= 0 || c.Archive.QueueSize <= 0 {
			return fmt.Errorf("%w: archive workers and queue_size must be > 0", settype.ErrInvalidConfig)
		}
	}
	if c.Snapshot.RedisDB < 0 {
		return fmt.Errorf("%w: snapshot.redis_db must be >= 0", settype.ErrInvalidConfig)
	}
	return nil
}

// PolicyLimits converts the limits section to policy.Limits.
// Budgets must be whole megabytes.
func (c Config) PolicyLimits() (policy.Limits, error) {
	budget, err := wholeMB("budget", c.Limits.Budget)
	if err != nil {
		return policy.Limits{}, err
	}
	lowMode, err := wholeMB("low_mode_budget", c.Limits.LowModeBudget)
	if err != nil {
		return policy.Limits{}, err
	}
	l := policy.Limits{
		BudgetMB:        budget,
		LowModeBudgetMB: lowMode,
		LowFreeSpaceGB:  float64(c.Limits.LowFreeSpace) / units.GiB,
		MaxSets:         c.Limits.MaxSets,
		MaxItems:        c.Limits.MaxItems,
		StaleAfter:      time.Duration(c.Limits.StaleDays) * 24 * time.Hour,
		EvictBatch:      c.Limits.EvictBatch,
		WarnAtUsage:     c.Limits.WarnAtUsage,
	}
	if err := l.Validate(); err != nil {
		return policy.Limits{}, err
	}
	return l, nil
}

// FreeSpacePath returns the path to probe for free space.
func (c Config) FreeSpacePath() string {
	if c.FreeSpace.Path != "" {
		return c.FreeSpace.Path
	}
	return c.Snapshot.Dir
}

// NewLogger returns a logger writing to w as configured.
func (c Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := c.Log.level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func (l LogConfig) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("%w: log level %q", settype.ErrInvalidConfig, l.Level)
	}
	return level, nil
}

func wholeMB(field string, s Size) (uint32, error) {
	if s <= 0 || int64(s)%policy.MB != 0 {
		return 0, fmt.Errorf("%w: limits.%s must be a positive whole number of MiB, got %s",
			settype.ErrInvalidConfig, field, s)
	}
	mb := int64(s) / policy.MB
	if mb > int64(^uint32(0)) {
		return 0, fmt.Errorf("%w: limits.%s is too large", settype.ErrInvalidConfig, field)
	}
	return uint32(mb), nil
}
