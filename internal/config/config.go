// Package config provides configuration loading, validation, and defaults
// for the yunaMessage service. Values come from defaults, then an optional
// YAML file, then YUNA_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config defines the application configuration for all components:
// logging, HTTP server, database, message storage, scheduling, and the
// remote API client.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Client    ClientConfig    `mapstructure:"client"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

type ServerConfig struct {
	ListenAddr  string `mapstructure:"listen_addr"   validate:"required"`
	FileBaseURL string `mapstructure:"file_base_url" validate:"required,url"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// StorageConfig locates the per-group configuration files and the root of
// the per-member message directory tree.
type StorageConfig struct {
	GroupsDir  string `mapstructure:"groups_dir"  validate:"required"`
	MessageDir string `mapstructure:"message_dir" validate:"required"`
}

// SchedulerConfig maps job names to their cron cadences. A job may carry
// several expressions so different hours of the day can run at different
// frequencies.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

type TaskConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Schedules []string `mapstructure:"schedules"`
}

// ClientConfig holds the outbound request timeouts. Media timeouts escalate
// with the expected payload size.
type ClientConfig struct {
	TokenTimeout    time.Duration `mapstructure:"token_timeout"    validate:"min=1s"`
	TimelineTimeout time.Duration `mapstructure:"timeline_timeout" validate:"min=1s"`
	ImageTimeout    time.Duration `mapstructure:"image_timeout"    validate:"min=1s"`
	AudioTimeout    time.Duration `mapstructure:"audio_timeout"    validate:"min=1s"`
	VideoTimeout    time.Duration `mapstructure:"video_timeout"    validate:"min=1s"`
}

// Job names used as keys in SchedulerConfig.Tasks and by manual triggers.
const (
	JobGetToken   = "get_token"
	JobGetMessage = "get_message"
)

// Load reads configuration from the given YAML file path, applies defaults
// for every unset field, overlays YUNA_* environment variables, and
// validates the result. A missing config file is not an error; defaults
// are used instead.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("YUNA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
			}
		}
		// Missing file is fine, defaults apply.
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", true)

	v.SetDefault("server.listen_addr", ":8000")
	v.SetDefault("server.file_base_url", "http://file.densu.cc")

	v.SetDefault("database.path", "data/app.db")

	v.SetDefault("storage.groups_dir", "config")
	v.SetDefault("storage.message_dir", "data/messages")

	// Off hours (0-7) run nothing; evenings poll messages more often.
	v.SetDefault("scheduler.tasks."+JobGetToken+".enabled", true)
	v.SetDefault("scheduler.tasks."+JobGetToken+".schedules", []string{"*/10 8-23 * * *"})
	v.SetDefault("scheduler.tasks."+JobGetMessage+".enabled", true)
	v.SetDefault("scheduler.tasks."+JobGetMessage+".schedules", []string{"0 8-19 * * *", "*/10 20-23 * * *"})

	v.SetDefault("client.token_timeout", 20*time.Second)
	v.SetDefault("client.timeline_timeout", 30*time.Second)
	v.SetDefault("client.image_timeout", 60*time.Second)
	v.SetDefault("client.audio_timeout", 120*time.Second)
	v.SetDefault("client.video_timeout", 180*time.Second)
}
