package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/viper"

	"github.com/paulschiretz/pgl-mirror/pkg/buildinfo"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// ConfigFileName is the default name of the configuration file.
const ConfigFileName = buildinfo.BinaryName + ".config.json"

// EnvPrefix prefixes every environment variable that overrides a config value,
// e.g. PGL_MIRROR_LOGLEVEL or PGL_MIRROR_SYNC_MODTIMEWINDOWSECONDS.
const EnvPrefix = "PGL_MIRROR"

// DefaultIntervalMinutes is used for pairs that do not set an interval.
const DefaultIntervalMinutes = 5

type PairConfig struct {
	// Name labels the pair in diagnostic logs. Defaults to "pair-<n>".
	Name            string `json:"name" mapstructure:"name"`
	Source          string `json:"source" mapstructure:"source"`
	Replica         string `json:"replica" mapstructure:"replica"`
	IntervalMinutes int    `json:"intervalMinutes" mapstructure:"intervalMinutes"`
	// LogPath is either an existing folder or a file path whose parent exists.
	LogPath string `json:"logPath" mapstructure:"logPath"`
}

// Interval returns the pause between two cycles of the pair.
func (p PairConfig) Interval() time.Duration {
	return time.Duration(p.IntervalMinutes) * time.Minute
}

type SyncConfig struct {
	ModTimeWindowSeconds int  `json:"modTimeWindowSeconds" mapstructure:"modTimeWindowSeconds" comment:"Time window in seconds to consider file modification times equal. 0 means exact match."`
	Metrics              bool `json:"metrics" mapstructure:"metrics"`
	// Note: omitempty is intentionally not used so that the exclusion lists
	// appear in the generated config file for better discoverability.
	ExcludeFiles []string `json:"excludeFiles" mapstructure:"excludeFiles"`
	ExcludeDirs  []string `json:"excludeDirs" mapstructure:"excludeDirs"`
}

// ModTimeWindow returns the tolerance used when comparing modification times.
func (s SyncConfig) ModTimeWindow() time.Duration {
	return time.Duration(s.ModTimeWindowSeconds) * time.Second
}

type HooksConfig struct {
	// PreCycle is a list of shell commands to execute before every cycle.
	// SECURITY: These commands are executed as provided. Ensure they are from a trusted source.
	PreCycle []string `json:"preCycle" mapstructure:"preCycle"`
	// PostCycle is a list of shell commands to execute after every cycle.
	// SECURITY: These commands are executed as provided. Ensure they are from a trusted source.
	PostCycle []string `json:"postCycle" mapstructure:"postCycle"`
	// FailFast fails the cycle when a pre-cycle command fails.
	FailFast bool `json:"failFast" mapstructure:"failFast"`
}

type Config struct {
	Version  string       `json:"version" mapstructure:"version"`
	LogLevel string       `json:"logLevel" mapstructure:"logLevel"`
	Pairs    []PairConfig `json:"pairs" mapstructure:"pairs"`
	Sync     SyncConfig   `json:"sync" mapstructure:"sync"`
	Hooks    HooksConfig  `json:"hooks" mapstructure:"hooks"`
}

// NewDefault returns a Config with sensible defaults and no pairs.
func NewDefault() Config {
	return Config{
		Version:  buildinfo.Version,
		LogLevel: "info",
		Pairs:    []PairConfig{},
		Sync: SyncConfig{
			ModTimeWindowSeconds: 0, // Modification times must match exactly.
			Metrics:              true,
			ExcludeFiles:         []string{},
			ExcludeDirs:          []string{},
		},
		Hooks: HooksConfig{
			PreCycle:  []string{},
			PostCycle: []string{},
			FailFast:  false,
		},
	}
}

// NewPair returns a PairConfig with the default interval.
func NewPair() PairConfig {
	return PairConfig{IntervalMinutes: DefaultIntervalMinutes}
}

// newViper returns a viper instance seeded with the scalar defaults so that
// PGL_MIRROR_* environment variables can override them.
func newViper() *viper.Viper {
	def := NewDefault()
	v := viper.New()
	v.SetDefault("logLevel", def.LogLevel)
	v.SetDefault("sync.modTimeWindowSeconds", def.Sync.ModTimeWindowSeconds)
	v.SetDefault("sync.metrics", def.Sync.Metrics)
	v.SetDefault("sync.excludeFiles", def.Sync.ExcludeFiles)
	v.SetDefault("sync.excludeDirs", def.Sync.ExcludeDirs)
	v.SetDefault("hooks.preCycle", def.Hooks.PreCycle)
	v.SetDefault("hooks.postCycle", def.Hooks.PostCycle)
	v.SetDefault("hooks.failFast", def.Hooks.FailFast)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the JSON configuration at path and applies PGL_MIRROR_*
// environment overrides. An empty path yields the defaults plus environment
// overrides. A path that does not exist is an error.
func Load(path string) (Config, error) {
	v := newViper()

	if path != "" {
		absPath, err := util.AbsPath(path)
		if err != nil {
			return Config{}, fmt.Errorf("could not determine absolute path for config file %s: %w", path, err)
		}
		v.SetConfigFile(absPath)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("error reading config file %s: %w", absPath, err)
		}
		plog.Info("Loading configuration", "path", absPath)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("error parsing configuration: %w", err)
	}

	// NOTE: if cfg.Version differs from buildinfo.Version a migration step goes here.
	cfg.Version = buildinfo.Version
	cfg.normalizeSlices()
	return cfg, nil
}

// normalizeSlices replaces nil slices with empty ones so generated files list them.
func (c *Config) normalizeSlices() {
	if c.Pairs == nil {
		c.Pairs = []PairConfig{}
	}
	if c.Sync.ExcludeFiles == nil {
		c.Sync.ExcludeFiles = []string{}
	}
	if c.Sync.ExcludeDirs == nil {
		c.Sync.ExcludeDirs = []string{}
	}
	if c.Hooks.PreCycle == nil {
		c.Hooks.PreCycle = []string{}
	}
	if c.Hooks.PostCycle == nil {
		c.Hooks.PostCycle = []string{}
	}
}

// Generate writes cfg as indented JSON to path. An existing file is only
// replaced when overwrite is set.
func Generate(path string, cfg Config, overwrite bool) error {
	absPath, err := util.AbsPath(path)
	if err != nil {
		return fmt.Errorf("could not determine absolute path for config file %s: %w", path, err)
	}
	if !overwrite {
		if _, err := os.Stat(absPath); err == nil {
			return fmt.Errorf("config file %s already exists, use --force to overwrite it", absPath)
		}
	}

	cfg.normalizeSlices()
	jsonData, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config to JSON: %w", err)
	}
	if err := os.WriteFile(absPath, append(jsonData, '\n'), util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	plog.Info("Successfully saved config file", "path", absPath)
	return nil
}

// Validate checks the configuration for logical errors. It expands and
// absolutizes all pair paths and names unnamed pairs. Filesystem checks on
// the pair roots happen later, when the schedulers are built.
func (c *Config) Validate() error {
	if _, err := plog.LevelFromString(c.LogLevel); err != nil {
		return fmt.Errorf("invalid logLevel: %w", err)
	}
	if len(c.Pairs) == 0 {
		return errors.New("at least one synchronization pair must be configured")
	}
	if c.Sync.ModTimeWindowSeconds < 0 {
		return errors.New("sync.modTimeWindowSeconds cannot be negative")
	}
	if err := validateGlobPatterns("sync.excludeFiles", c.Sync.ExcludeFiles); err != nil {
		return err
	}
	if err := validateGlobPatterns("sync.excludeDirs", c.Sync.ExcludeDirs); err != nil {
		return err
	}

	names := make(map[string]int, len(c.Pairs))
	replicas := make(map[string]int, len(c.Pairs))
	for i := range c.Pairs {
		p := &c.Pairs[i]
		if p.Name == "" {
			p.Name = fmt.Sprintf("pair-%d", i+1)
		}
		if err := p.validate(i); err != nil {
			return err
		}

		if j, ok := names[p.Name]; ok {
			return fmt.Errorf("pairs[%d] and pairs[%d] share the name %q", j, i, p.Name)
		}
		names[p.Name] = i

		replicaKey := p.Replica
		if util.IsHostCaseInsensitiveFS() {
			replicaKey = strings.ToLower(replicaKey)
		}
		if j, ok := replicas[replicaKey]; ok {
			return fmt.Errorf("pairs[%d] and pairs[%d] share the replica %s", j, i, p.Replica)
		}
		replicas[replicaKey] = i
	}
	return nil
}

func (p *PairConfig) validate(i int) error {
	if p.Source == "" {
		return fmt.Errorf("pairs[%d].source cannot be empty", i)
	}
	if p.Replica == "" {
		return fmt.Errorf("pairs[%d].replica cannot be empty", i)
	}
	if p.LogPath == "" {
		return fmt.Errorf("pairs[%d].logPath cannot be empty", i)
	}
	if p.IntervalMinutes <= 0 {
		return fmt.Errorf("pairs[%d].intervalMinutes must be a positive number of minutes, got %d", i, p.IntervalMinutes)
	}

	var err error
	if p.Source, err = util.AbsPath(p.Source); err != nil {
		return fmt.Errorf("could not expand pairs[%d].source: %w", i, err)
	}
	if p.Replica, err = util.AbsPath(p.Replica); err != nil {
		return fmt.Errorf("could not expand pairs[%d].replica: %w", i, err)
	}
	if p.LogPath, err = util.AbsPath(p.LogPath); err != nil {
		return fmt.Errorf("could not expand pairs[%d].logPath: %w", i, err)
	}
	return nil
}

// LogSummary prints a summary of the configuration on the diagnostic log.
func (c *Config) LogSummary() {
	logArgs := []any{
		"log_level", c.LogLevel,
		"pairs", len(c.Pairs),
		"mod_time_window", c.Sync.ModTimeWindow(),
		"metrics", c.Sync.Metrics,
	}
	if len(c.Sync.ExcludeFiles) > 0 {
		logArgs = append(logArgs, "exclude_files", strings.Join(c.Sync.ExcludeFiles, ", "))
	}
	if len(c.Sync.ExcludeDirs) > 0 {
		logArgs = append(logArgs, "exclude_dirs", strings.Join(c.Sync.ExcludeDirs, ", "))
	}
	if len(c.Hooks.PreCycle) > 0 {
		logArgs = append(logArgs, "pre_cycle_hooks", strings.Join(c.Hooks.PreCycle, "; "))
	}
	if len(c.Hooks.PostCycle) > 0 {
		logArgs = append(logArgs, "post_cycle_hooks", strings.Join(c.Hooks.PostCycle, "; "))
	}
	plog.Info("Configuration loaded", logArgs...)

	for _, p := range c.Pairs {
		plog.Info("Synchronization pair",
			"name", p.Name,
			"source", p.Source,
			"replica", p.Replica,
			"interval", p.Interval(),
			"log", p.LogPath)
	}
}

// validateGlobPatterns checks that every pattern is a valid glob.
func validateGlobPatterns(fieldName string, patterns []string) error {
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid glob pattern for %s: %q", fieldName, pattern)
		}
	}
	return nil
}

// pairFlags are the flags that describe a single pair.
var pairFlags = []string{"name", "source", "replica", "interval", "log"}

// MergeFlags overlays the values of flags explicitly set on the command line
// on top of base. Pair flags define a single pair: they refine the pair of a
// single-pair config and replace the pairs of any other config. Exclusion
// flags add to the configured patterns.
func MergeFlags(base Config, setFlags map[string]any) Config {
	merged := base
	merged.Pairs = append([]PairConfig(nil), base.Pairs...)

	hasPairFlag := false
	for _, name := range pairFlags {
		if _, ok := setFlags[name]; ok {
			hasPairFlag = true
			break
		}
	}
	if hasPairFlag {
		pair := NewPair()
		if len(merged.Pairs) == 1 {
			pair = merged.Pairs[0]
		}
		merged.Pairs = []PairConfig{pair}
	}

	for name, value := range setFlags {
		switch name {
		case "name":
			merged.Pairs[0].Name = value.(string)
		case "source":
			merged.Pairs[0].Source = value.(string)
		case "replica":
			merged.Pairs[0].Replica = value.(string)
		case "interval":
			merged.Pairs[0].IntervalMinutes = value.(int)
		case "log":
			merged.Pairs[0].LogPath = value.(string)
		case "log-level":
			merged.LogLevel = value.(string)
		case "metrics":
			merged.Sync.Metrics = value.(bool)
		case "mod-time-window":
			merged.Sync.ModTimeWindowSeconds = value.(int)
		case "exclude-files":
			merged.Sync.ExcludeFiles = util.MergeAndDeduplicate(base.Sync.ExcludeFiles, value.([]string))
		case "exclude-dirs":
			merged.Sync.ExcludeDirs = util.MergeAndDeduplicate(base.Sync.ExcludeDirs, value.([]string))
		case "pre-cycle-hooks":
			merged.Hooks.PreCycle = value.([]string)
		case "post-cycle-hooks":
			merged.Hooks.PostCycle = value.([]string)
		case "fail-fast":
			merged.Hooks.FailFast = value.(bool)
		default:
			plog.Debug("unhandled flag in MergeFlags", "flag", name)
		}
	}
	return merged
}
