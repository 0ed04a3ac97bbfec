// Package config loads process options from flags and environment, and the
// sync/proxy settings from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Options are the process-level settings.
type Options struct {
	DBDriver     string `long:"db-driver" env:"DB_DRIVER" default:"sqlite" choice:"sqlite" choice:"postgres" description:"Database driver"`
	DBDSN        string `long:"db-dsn" env:"DB_DSN" default:"rssbox.db" description:"Database path (sqlite) or connection string (postgres)"`
	Listen       string `long:"listen" env:"LISTEN" default:":8080" description:"HTTP listen address"`
	SettingsFile string `long:"settings" env:"SETTINGS_FILE" default:"settings.yaml" description:"Sync and proxy settings file"`
	UserAgent    string `long:"user-agent" env:"USER_AGENT" description:"User agent for feed requests (browser-like default)"`
	Debug        bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// SyncSettings controls fetching and automatic syncing.
type SyncSettings struct {
	// Timeout is the request timeout in seconds.
	Timeout int `yaml:"timeout" json:"timeout"`
	// Interval is the auto-sync interval in minutes.
	Interval  int  `yaml:"interval" json:"interval"`
	Auto      bool `yaml:"auto" json:"auto"`
	OnStartup bool `yaml:"on_startup" json:"on_startup"`
}

// ProxyEndpoint is one forward proxy.
type ProxyEndpoint struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

type ProxySettings struct {
	HTTP   ProxyEndpoint `yaml:"http" json:"http"`
	Socks5 ProxyEndpoint `yaml:"socks5" json:"socks5"`
}

// Settings is the content of the settings file.
type Settings struct {
	Sync  SyncSettings  `yaml:"sync" json:"sync"`
	Proxy ProxySettings `yaml:"proxy" json:"proxy"`
}

// DefaultSettings returns the settings used when no file exists.
func DefaultSettings() Settings {
	return Settings{
		Sync: SyncSettings{
			Timeout:   15,
			Interval:  60,
			Auto:      true,
			OnStartup: true,
		},
		Proxy: ProxySettings{
			HTTP:   ProxyEndpoint{Host: "127.0.0.1", Port: 3218},
			Socks5: ProxyEndpoint{Host: "127.0.0.1", Port: 1080},
		},
	}
}

func (s SyncSettings) TimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

func (s SyncSettings) IntervalDuration() time.Duration {
	return time.Duration(s.Interval) * time.Minute
}

// Config is the loaded configuration.
type Config struct {
	Options
	Settings Settings
}

// Load reads .env (if present), parses args and loads the settings file.
// It returns nil, nil when help was requested.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse options: %w", err)
	}

	settings, err := LoadSettings(opts.SettingsFile)
	if err != nil {
		return nil, err
	}
	return &Config{Options: opts, Settings: settings}, nil
}

// LoadSettings reads path over the defaults. Keys absent from the file keep
// their default values; a missing file yields the defaults.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read settings %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if s.Sync.Timeout < 0 || s.Sync.Interval < 0 {
		return s, fmt.Errorf("invalid settings %s: negative duration", path)
	}
	return s, nil
}

// SaveSettings writes s to path.
func SaveSettings(path string, s Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write settings %s: %w", path, err)
	}
	return nil
}
