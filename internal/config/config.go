package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultAPIURL is the public NuageX experience API.
const DefaultAPIURL = "https://experience.nuagenetworks.net/api"

type AuthConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type APIConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type WaitConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Interval time.Duration `mapstructure:"interval"`
}

type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
}

// LockConfig controls the per-lab lock files that keep concurrent nuxlab
// processes from reconciling the same lab at once. An empty Dir disables them.
type LockConfig struct {
	Dir string `mapstructure:"dir"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type Config struct {
	Auth    AuthConfig    `mapstructure:"auth"`
	API     APIConfig     `mapstructure:"api"`
	Wait    WaitConfig    `mapstructure:"wait"`
	Journal JournalConfig `mapstructure:"journal"`
	Locks   LockConfig    `mapstructure:"locks"`
	Server  ServerConfig  `mapstructure:"server"`
}

// Load reads nuxlab.yaml from the working directory or $HOME/.nuxlab, or the
// explicit path when one is given. A missing config file is not an error:
// credentials may come entirely from NUX_USERNAME and NUX_PASSWORD.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("nuxlab")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.nuxlab")
	}

	v.SetDefault("api.url", DefaultAPIURL)
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("wait.attempts", 20)
	v.SetDefault("wait.interval", 5*time.Second)
	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.db_path", filepath.Join(os.Getenv("HOME"), ".nuxlab", "nuxlab.db"))
	v.SetDefault("locks.dir", filepath.Join(os.Getenv("HOME"), ".nuxlab", "locks"))
	v.SetDefault("server.port", 8080)

	// NUX_USERNAME and NUX_PASSWORD predate the config file, so they are
	// bound explicitly rather than through the nested key replacer.
	v.SetEnvPrefix("NUX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("auth.username", "NUX_USERNAME")
	_ = v.BindEnv("auth.password", "NUX_PASSWORD")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Auth.Username = expandEnv(cfg.Auth.Username)
	cfg.Auth.Password = expandEnv(cfg.Auth.Password)
	cfg.Journal.DBPath = os.ExpandEnv(cfg.Journal.DBPath)
	cfg.Locks.Dir = os.ExpandEnv(cfg.Locks.Dir)

	return &cfg, nil
}

// expandEnv resolves values written as ${VAR}.
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	return s
}
