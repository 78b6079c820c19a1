package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/harrisonrobin/sheetsync/pkg/syncerr"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	xdgAppName = "sheetsync"
	configFile = "config.yaml"
	envPrefix  = "SHEETSYNC_"
)

type Config struct {
	SpreadsheetID string `yaml:"spreadsheet_id"`
	TaskSheet     string `yaml:"task_sheet"`
	FirstRow      int    `yaml:"first_row"`
	LogSheet      string `yaml:"log_sheet"`
	LastSyncCell  string `yaml:"last_sync_cell"`

	Calendar      string        `yaml:"calendar"`
	TimeZone      string        `yaml:"timezone"`
	EventDuration time.Duration `yaml:"event_duration"`

	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	CredentialsFile string `yaml:"credentials_file"`
	TokenFile       string `yaml:"token_file"`
	StateFile       string `yaml:"state_file"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		TaskSheet:    "Tasks",
		FirstRow:     2,
		LogSheet:     "Logs",
		LastSyncCell: "Tasks!K1",
		Calendar:     "Tasks",
		TimeZone:     "Local",
		MaxAttempts:  5,
		BaseDelay:    time.Second,
		LogLevel:     "info",
	}
}

func GetConfigDir() (string, error) {
	xdgHome, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(xdgHome, ".config", xdgAppName), nil
}

func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// Load builds the configuration with precedence, lowest first:
// defaults, ~/.config/sheetsync/config.yaml, .env.local, SHEETSYNC_* variables.
func Load() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile is Load with an explicit YAML path. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return nil, err
	}

	// .env.local only fills variables that are not already set.
	if _, err := os.Stat(".env.local"); err == nil {
		_ = godotenv.Load(".env.local")
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.fillPaths(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadFile returns the defaults overlaid with the YAML file at path and
// nothing else. Commands that rewrite the file start from this so
// environment overrides are never persisted.
func ReadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, syncerr.Errorf(syncerr.KindConfig, "load config", "failed to read config: %v", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, syncerr.Errorf(syncerr.KindConfig, "load config", "failed to decode %s: %v", path, err)
		}
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"SPREADSHEET_ID":   &c.SpreadsheetID,
		"TASK_SHEET":       &c.TaskSheet,
		"LOG_SHEET":        &c.LogSheet,
		"LAST_SYNC_CELL":   &c.LastSyncCell,
		"CALENDAR":         &c.Calendar,
		"TIMEZONE":         &c.TimeZone,
		"LOG_LEVEL":        &c.LogLevel,
		"LOG_FILE":         &c.LogFile,
		"CREDENTIALS_FILE": &c.CredentialsFile,
		"TOKEN_FILE":       &c.TokenFile,
		"STATE_FILE":       &c.StateFile,
	}
	for name, dst := range strs {
		if v := getEnvOrFile(envPrefix+name, envPrefix+name+"_FILE"); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"FIRST_ROW":    &c.FirstRow,
		"MAX_ATTEMPTS": &c.MaxAttempts,
	}
	for name, dst := range ints {
		if v := os.Getenv(envPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return syncerr.Errorf(syncerr.KindConfig, "load config", "%s%s: %v", envPrefix, name, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"EVENT_DURATION": &c.EventDuration,
		"BASE_DELAY":     &c.BaseDelay,
	}
	for name, dst := range durations {
		if v := os.Getenv(envPrefix + name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return syncerr.Errorf(syncerr.KindConfig, "load config", "%s%s: %v", envPrefix, name, err)
			}
			*dst = d
		}
	}
	return nil
}

func (c *Config) fillPaths() error {
	if c.CredentialsFile != "" && c.TokenFile != "" && c.StateFile != "" {
		return nil
	}
	dir, err := GetConfigDir()
	if err != nil {
		return err
	}
	if c.CredentialsFile == "" {
		c.CredentialsFile = filepath.Join(dir, "credentials.json")
	}
	if c.TokenFile == "" {
		c.TokenFile = filepath.Join(dir, "token.json")
	}
	if c.StateFile == "" {
		c.StateFile = filepath.Join(dir, "state.json")
	}
	return nil
}

// Validate reports settings a sync run cannot do without.
func (c *Config) Validate() error {
	var missing []string
	if c.SpreadsheetID == "" {
		missing = append(missing, "spreadsheet_id")
	}
	if c.TaskSheet == "" {
		missing = append(missing, "task_sheet")
	}
	if c.Calendar == "" {
		missing = append(missing, "calendar")
	}
	if len(missing) > 0 {
		return syncerr.Errorf(syncerr.KindConfig, "validate config", "missing %s", strings.Join(missing, ", "))
	}
	if c.EventDuration < 0 {
		return syncerr.Errorf(syncerr.KindConfig, "validate config", "event_duration must not be negative")
	}
	if c.LogLevel != "" {
		if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
			return syncerr.Errorf(syncerr.KindConfig, "validate config", "unknown log_level %q", c.LogLevel)
		}
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.TimeZone == "" || c.TimeZone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, syncerr.Errorf(syncerr.KindConfig, "validate config", "unknown timezone %q: %v", c.TimeZone, err)
	}
	return loc, nil
}

// SaveFile writes cfg as YAML, creating the config directory if needed.
func SaveFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open config file for writing: %w", err)
	}
	defer f.Close()

	encoder := yaml.NewEncoder(f)
	encoder.SetIndent(2)
	if err := encoder.Encode(cfg); err != nil {
		return err
	}
	return encoder.Close()
}

// getEnvOrFile gets an environment variable value, or reads it from a file
// if the _FILE variant is set
func getEnvOrFile(envVar, fileVar string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}

	if filePath := os.Getenv(fileVar); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}

	return ""
}
