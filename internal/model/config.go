package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// AccountConfig holds the connection settings for one IMAP account.
type AccountConfig struct {
	// Host and Port locate the IMAP server.
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`

	// TLS selects implicit TLS; when false the client upgrades with STARTTLS.
	TLS bool `mapstructure:"tls" yaml:"tls"`

	Username string `mapstructure:"username" yaml:"username"`

	// Mailbox is the folder to poll (default INBOX).
	Mailbox string `mapstructure:"mailbox" yaml:"mailbox"`
}

// DecodeConfig holds settings consumed by the message decoder.
type DecodeConfig struct {
	// StorageDir is where attachment files are written, laid out as
	// <storage_dir>/<YYYY>/<MM>/<basename>. Empty disables writes;
	// attachment metadata is still recorded.
	StorageDir string `mapstructure:"storage_dir" yaml:"storage_dir"`

	// ServerEncoding is the charset assumed for text parts that declare
	// none.
	ServerEncoding string `mapstructure:"server_encoding" yaml:"server_encoding"`

	// MarkSeen controls whether fetching a message body marks it read on
	// the server. When false, part bodies are fetched with peek semantics.
	MarkSeen bool `mapstructure:"mark_seen" yaml:"mark_seen"`

	// BaseURI is prepended to attachment basenames when rewriting inline
	// cid: references in HTML bodies.
	BaseURI string `mapstructure:"base_uri" yaml:"base_uri"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Account         AccountConfig `mapstructure:"account" yaml:"account"`
	Decode          DecodeConfig  `mapstructure:"decode" yaml:"decode"`
	PollIntervalSec int           `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
	DBPath          string        `mapstructure:"db_path" yaml:"db_path"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailgrab/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailgrab", "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	home, _ := os.UserHomeDir()
	return &AppConfig{
		Account: AccountConfig{
			Port:    "993",
			TLS:     true,
			Mailbox: "INBOX",
		},
		Decode: DecodeConfig{
			ServerEncoding: "utf-8",
		},
		PollIntervalSec: 120,
		DBPath:          filepath.Join(home, ".config", "mailgrab", "state.db"),
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("account.port", "993")
	v.SetDefault("account.tls", true)
	v.SetDefault("account.mailbox", "INBOX")
	v.SetDefault("decode.server_encoding", "utf-8")
	v.SetDefault("poll_interval_sec", 120)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("account", cfg.Account)
	v.Set("decode", cfg.Decode)
	v.Set("poll_interval_sec", cfg.PollIntervalSec)
	v.Set("db_path", cfg.DBPath)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

// ValidateStorageDir checks that the configured storage directory either
// does not exist yet (it will be created on first write) or is a writable
// directory. A misconfigured storage directory is a startup error, not a
// per-attachment one.
func ValidateStorageDir(dir string) error {
	if dir == "" {
		return nil
	}

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking storage dir %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage dir %s is not a directory", dir)
	}

	probe := filepath.Join(dir, ".mailgrab-probe")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return fmt.Errorf("storage dir %s is not writable: %w", dir, err)
	}
	_ = os.Remove(probe)

	return nil
}
