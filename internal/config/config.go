package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/openmined/replisync/internal/replica"
	"github.com/openmined/replisync/internal/store"
	"github.com/openmined/replisync/internal/utils"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix           = "REPLISYNC"
	DefaultDatabaseFile = "data.sqlite"
	configName          = "replisync"

	ScheduleInterval = "interval"
	ScheduleCron     = "cron"
)

var (
	home, _           = os.UserHomeDir()
	DefaultConfigPath = filepath.Join(".", configName+".yaml")

	ErrNotFound = errors.New("config file not found")
)

// ConfigError reports an invalid configuration value. Configurations are
// rejected before any pass runs.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func invalid(field, format string, args ...any) error {
	return &ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}

type Schedule struct {
	Type         string `mapstructure:"type" yaml:"type"`
	EverySeconds int    `mapstructure:"every_seconds" yaml:"every_seconds,omitempty"`
	Expression   string `mapstructure:"expression" yaml:"expression,omitempty"`
}

type Collection struct {
	Name           string `mapstructure:"name" yaml:"name"`
	LocalTable     string `mapstructure:"local_table" yaml:"local_table"`
	CloudTable     string `mapstructure:"cloud_table" yaml:"cloud_table"`
	Direction      string `mapstructure:"direction" yaml:"direction"`
	ConflictPolicy string `mapstructure:"conflict_policy" yaml:"conflict_policy"`
}

type Config struct {
	// DatabaseFile holds the local tables and the sync checkpoints.
	DatabaseFile string `mapstructure:"database_file" yaml:"database_file"`
	// CloudDatabaseFile holds the cloud tables. Empty means DatabaseFile.
	CloudDatabaseFile string `mapstructure:"cloud_database_file" yaml:"cloud_database_file,omitempty"`
	// Schedule is optional; without one a single pass is run.
	Schedule    *Schedule    `mapstructure:"schedule" yaml:"schedule,omitempty"`
	Collections []Collection `mapstructure:"collections" yaml:"collections"`
	Path        string       `mapstructure:"-" yaml:"-"`
}

// Starter is the config written by `replisync init`.
func Starter() *Config {
	return &Config{
		DatabaseFile: DefaultDatabaseFile,
		Collections: []Collection{
			{
				Name:           "items",
				LocalTable:     "local_items",
				CloudTable:     "cloud_items",
				Direction:      replica.Both.String(),
				ConflictPolicy: replica.LatestWins.String(),
			},
		},
	}
}

// Load reads the config at path, or searches ./replisync.{yaml,json} and
// ~/.replisync/ when path is empty. A .env file in the working directory is
// loaded first so REPLISYNC_* variables can override file values.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(home, ".replisync"))
	}

	v.SetDefault("database_file", DefaultDatabaseFile)
	v.SetDefault("cloud_database_file", "")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, describePath(path))
		}
		return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config decode '%s': %w", v.ConfigFileUsed(), err)
	}
	cfg.Path = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func describePath(path string) string {
	if path != "" {
		return path
	}
	return fmt.Sprintf("%s.{yaml,json} in . or %s", configName, filepath.Join(home, ".replisync"))
}

// Validate checks the config and resolves database paths.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseFile) == "" {
		return invalid("database_file", "must be a non-empty string")
	}
	if len(c.Collections) == 0 {
		return invalid("collections", "must be a non-empty list")
	}

	dbPath, err := utils.ResolvePath(c.DatabaseFile)
	if err != nil {
		return invalid("database_file", "%w", err)
	}
	c.DatabaseFile = dbPath
	if c.CloudDatabaseFile != "" {
		cloudPath, err := utils.ResolvePath(c.CloudDatabaseFile)
		if err != nil {
			return invalid("cloud_database_file", "%w", err)
		}
		c.CloudDatabaseFile = cloudPath
	}

	names := make(map[string]struct{}, len(c.Collections))
	for i := range c.Collections {
		coll := &c.Collections[i]
		if err := c.validateCollection(i, coll); err != nil {
			return err
		}
		if _, dup := names[coll.Name]; dup {
			return invalid(fmt.Sprintf("collections[%d].name", i), "duplicate collection %q", coll.Name)
		}
		names[coll.Name] = struct{}{}
	}

	if c.Schedule != nil {
		if err := c.Schedule.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateCollection(i int, coll *Collection) error {
	field := func(name string) string {
		return fmt.Sprintf("collections[%d].%s", i, name)
	}

	coll.Name = strings.TrimSpace(coll.Name)
	if coll.Name == "" {
		return invalid(field("name"), "is required")
	}
	if !store.ValidTableName(coll.LocalTable) {
		return invalid(field("local_table"), "%q is not a valid table name", coll.LocalTable)
	}
	if !store.ValidTableName(coll.CloudTable) {
		return invalid(field("cloud_table"), "%q is not a valid table name", coll.CloudTable)
	}
	if coll.LocalTable == coll.CloudTable && !c.SeparateDatabases() {
		return invalid(field("cloud_table"), "must differ from local_table when both live in one database")
	}
	if _, err := replica.ParseDirection(coll.Direction); err != nil {
		return &ConfigError{Field: field("direction"), Err: err}
	}
	if _, err := replica.ParseConflictPolicy(coll.ConflictPolicy); err != nil {
		return &ConfigError{Field: field("conflict_policy"), Err: err}
	}
	return nil
}

func (s *Schedule) Validate() error {
	switch s.Type {
	case ScheduleInterval:
		if s.EverySeconds <= 0 {
			return invalid("schedule.every_seconds", "must be > 0")
		}
	case ScheduleCron:
		if strings.TrimSpace(s.Expression) == "" {
			return invalid("schedule.expression", "must be a non-empty string")
		}
		if _, err := cron.ParseStandard(s.Expression); err != nil {
			return invalid("schedule.expression", "%w", err)
		}
	default:
		return invalid("schedule.type", "must be 'interval' or 'cron', got %q", s.Type)
	}
	return nil
}

// SeparateDatabases reports whether cloud tables live in their own database file.
func (c *Config) SeparateDatabases() bool {
	return c.CloudDatabaseFile != "" && c.CloudDatabaseFile != c.DatabaseFile
}

// SyncCollections converts the validated collections into their typed form.
func (c *Config) SyncCollections() ([]replica.Collection, error) {
	out := make([]replica.Collection, 0, len(c.Collections))
	for i, coll := range c.Collections {
		direction, err := replica.ParseDirection(coll.Direction)
		if err != nil {
			return nil, &ConfigError{Field: fmt.Sprintf("collections[%d].direction", i), Err: err}
		}
		policy, err := replica.ParseConflictPolicy(coll.ConflictPolicy)
		if err != nil {
			return nil, &ConfigError{Field: fmt.Sprintf("collections[%d].conflict_policy", i), Err: err}
		}
		out = append(out, replica.Collection{
			Name:       coll.Name,
			LocalTable: coll.LocalTable,
			CloudTable: coll.CloudTable,
			Direction:  direction,
			Policy:     policy,
		})
	}
	return out, nil
}

// Collection returns the named collection.
func (c *Config) Collection(name string) (Collection, bool) {
	for _, coll := range c.Collections {
		if coll.Name == name {
			return coll, true
		}
	}
	return Collection{}, false
}

// Save writes the config as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
