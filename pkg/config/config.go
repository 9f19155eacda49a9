// Package config loads the strvup settings from defaults, an optional config
// file and STRVUP_* environment variables, in increasing precedence. Command
// line flags bound to the viper instance take precedence over all of them.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "STRVUP"

type Config struct {
	TZ            string        `mapstructure:"tz"`
	OAuthPath     string        `mapstructure:"oauth"`
	ActivityType  string        `mapstructure:"type"`
	NoUpload      bool          `mapstructure:"no-upload"`
	SaveMerged    bool          `mapstructure:"save-merged"`
	Merge         bool          `mapstructure:"merge"`
	Format        string        `mapstructure:"format"`
	Public        bool          `mapstructure:"public"`
	SamplesOut    string        `mapstructure:"samples-out"`
	ArchiveBucket string        `mapstructure:"archive-bucket"`
	ArchivePrefix string        `mapstructure:"archive-prefix"`
	ArchiveRegion string        `mapstructure:"archive-region"`
	Workers       int           `mapstructure:"workers"`
	MetricsFile   string        `mapstructure:"metrics-file"`
	PollInterval  time.Duration `mapstructure:"poll-interval"`
	MaxPolls      int           `mapstructure:"max-polls"`
}

// SetDefaults registers every key with its default, which also makes the key
// visible to AutomaticEnv.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("tz", "+0000")
	v.SetDefault("oauth", "~/.config/strvup/oauth.json")
	v.SetDefault("type", "")
	v.SetDefault("no-upload", false)
	v.SetDefault("save-merged", false)
	v.SetDefault("merge", false)
	v.SetDefault("format", "gpx")
	v.SetDefault("public", false)
	v.SetDefault("samples-out", "")
	v.SetDefault("archive-bucket", "")
	v.SetDefault("archive-prefix", "strvup")
	v.SetDefault("archive-region", "us-east-1")
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("metrics-file", "")
	v.SetDefault("poll-interval", 2*time.Second)
	v.SetDefault("max-polls", 60)
}

// Load reads the configuration into a Config. configFile may be empty.
func Load(v *viper.Viper, configFile string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("error unmarshaling config: %w", err)
	}
	path, err := ExpandHome(cfg.OAuthPath)
	if err != nil {
		return Config{}, err
	}
	cfg.OAuthPath = path
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return cfg, nil
}

// ExpandHome replaces a leading ~ with the home directory of the user.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("error expanding %s: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
