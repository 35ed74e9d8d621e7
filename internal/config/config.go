// Package config loads botkit configuration from files, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides (BOTKIT_BOT_TOKEN, ...).
const EnvPrefix = "BOTKIT"

// Config is the root configuration.
type Config struct {
	Bot      BotConfig      `mapstructure:"bot"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Commands CommandsConfig `mapstructure:"commands"`
}

// BotConfig configures the Telegram bot and the command dispatcher.
type BotConfig struct {
	Token  string `mapstructure:"token"`
	APIURL string `mapstructure:"api_url"`

	// Handle overrides the username learned from getMe.
	Handle string `mapstructure:"handle"`

	// SaturationLimit is the number of API requests allowed per minute.
	SaturationLimit int `mapstructure:"saturation_limit"`

	ProcessNormalMessages   bool `mapstructure:"process_normal_messages"`
	AddCommandInfo          bool `mapstructure:"add_command_info"`
	CommandCaseSensitive    bool `mapstructure:"command_case_sensitive"`
	CaseSensitive           bool `mapstructure:"case_sensitive"`
	AcceptMultiWordTriggers bool `mapstructure:"accept_multi_word_triggers"`

	// AllowFrom restricts the bot to these user IDs or usernames. Empty allows everyone.
	AllowFrom []string `mapstructure:"allow_from"`

	// BotKey selects which keyed commands this bot loads. Zero loads all.
	BotKey uint32 `mapstructure:"bot_key"`

	// FloodRate and FloodBurst bound inbound messages per user.
	FloodRate  float64 `mapstructure:"flood_rate"`
	FloodBurst int     `mapstructure:"flood_burst"`

	PollTimeout time.Duration `mapstructure:"poll_timeout"`
}

// QueueConfig tunes the outbound action queue.
type QueueConfig struct {
	StandardWait  time.Duration `mapstructure:"standard_wait"`
	FailureWait   time.Duration `mapstructure:"failure_wait"`
	RateLimitWait time.Duration `mapstructure:"rate_limit_wait"`
	DispatchDelay time.Duration `mapstructure:"dispatch_delay"`
}

// DatabaseConfig configures the audit log database.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`

	// Retention is the age after which audit events are pruned. Zero keeps
	// everything.
	Retention time.Duration `mapstructure:"retention"`

	// PruneSchedule is a cron spec for the pruning job.
	PruneSchedule string `mapstructure:"prune_schedule"`
}

// LoggingConfig configures logging and the optional chat log sink.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`

	// SinkChatID forwards log lines to this chat when non-zero.
	SinkChatID int64  `mapstructure:"sink_chat_id"`
	SinkLevel  string `mapstructure:"sink_level"`
	SinkTag    string `mapstructure:"sink_tag"`
}

// CommandsConfig locates YAML reply commands.
type CommandsConfig struct {
	Dir string `mapstructure:"dir"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Bot: BotConfig{
			APIURL:                "https://api.telegram.org",
			SaturationLimit:       30,
			ProcessNormalMessages: true,
			AddCommandInfo:        true,
			FloodRate:             1,
			FloodBurst:            5,
			PollTimeout:           30 * time.Second,
		},
		Queue: QueueConfig{
			StandardWait:  500 * time.Millisecond,
			FailureWait:   2 * time.Second,
			RateLimitWait: 60 * time.Second,
			DispatchDelay: 100 * time.Millisecond,
		},
		Database: DatabaseConfig{
			Path:          filepath.Join(dataDir, "botkit.db"),
			Retention:     30 * 24 * time.Hour,
			PruneSchedule: "@daily",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "console",
			SinkLevel: "warn",
		},
		Commands: CommandsConfig{
			Dir: filepath.Join(configDir(), "replies"),
		},
	}
}

// Load reads configuration. An empty path searches the default locations;
// a missing file is not an error. A .env file in the working directory is
// loaded into the environment first.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir())
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Bot.SaturationLimit <= 0 {
		return fmt.Errorf("bot.saturation_limit must be positive, got %d", c.Bot.SaturationLimit)
	}
	if c.Bot.FloodRate < 0 {
		return fmt.Errorf("bot.flood_rate must not be negative")
	}
	if c.Bot.FloodRate > 0 && c.Bot.FloodBurst <= 0 {
		return fmt.Errorf("bot.flood_burst must be positive when flood_rate is set")
	}
	if c.Bot.PollTimeout < 0 {
		return fmt.Errorf("bot.poll_timeout must not be negative")
	}
	if c.Queue.StandardWait <= 0 {
		return fmt.Errorf("queue.standard_wait must be positive")
	}
	if c.Queue.FailureWait < c.Queue.StandardWait {
		return fmt.Errorf("queue.failure_wait must be at least queue.standard_wait")
	}
	if c.Queue.RateLimitWait < c.Queue.FailureWait {
		return fmt.Errorf("queue.rate_limit_wait must be at least queue.failure_wait")
	}
	if c.Queue.DispatchDelay < 0 {
		return fmt.Errorf("queue.dispatch_delay must not be negative")
	}
	if c.Database.Retention < 0 {
		return fmt.Errorf("database.retention must not be negative")
	}
	if c.Database.Retention > 0 && strings.TrimSpace(c.Database.PruneSchedule) == "" {
		return fmt.Errorf("database.prune_schedule is required when database.retention is set")
	}
	return nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("bot.token", d.Bot.Token)
	v.SetDefault("bot.api_url", d.Bot.APIURL)
	v.SetDefault("bot.handle", d.Bot.Handle)
	v.SetDefault("bot.saturation_limit", d.Bot.SaturationLimit)
	v.SetDefault("bot.process_normal_messages", d.Bot.ProcessNormalMessages)
	v.SetDefault("bot.add_command_info", d.Bot.AddCommandInfo)
	v.SetDefault("bot.command_case_sensitive", d.Bot.CommandCaseSensitive)
	v.SetDefault("bot.case_sensitive", d.Bot.CaseSensitive)
	v.SetDefault("bot.accept_multi_word_triggers", d.Bot.AcceptMultiWordTriggers)
	v.SetDefault("bot.allow_from", d.Bot.AllowFrom)
	v.SetDefault("bot.bot_key", d.Bot.BotKey)
	v.SetDefault("bot.flood_rate", d.Bot.FloodRate)
	v.SetDefault("bot.flood_burst", d.Bot.FloodBurst)
	v.SetDefault("bot.poll_timeout", d.Bot.PollTimeout)

	v.SetDefault("queue.standard_wait", d.Queue.StandardWait)
	v.SetDefault("queue.failure_wait", d.Queue.FailureWait)
	v.SetDefault("queue.rate_limit_wait", d.Queue.RateLimitWait)
	v.SetDefault("queue.dispatch_delay", d.Queue.DispatchDelay)

	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.retention", d.Database.Retention)
	v.SetDefault("database.prune_schedule", d.Database.PruneSchedule)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.sink_chat_id", d.Logging.SinkChatID)
	v.SetDefault("logging.sink_level", d.Logging.SinkLevel)
	v.SetDefault("logging.sink_tag", d.Logging.SinkTag)

	v.SetDefault("commands.dir", d.Commands.Dir)
}

func configDir() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".config", "botkit")
	}
	return ".botkit"
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".local", "share", "botkit")
	}
	return ".botkit"
}
