package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Session  SessionConfig  `mapstructure:"session"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Routine  RoutineConfig  `mapstructure:"routine"`
}

type AppConfig struct {
	Timezone string `mapstructure:"timezone"`
	LogLevel string `mapstructure:"log_level"`
}

type StorageConfig struct {
	// Backend is "file" (per-user JSON directories) or "sqlite".
	Backend    string `mapstructure:"backend"`
	Root       string `mapstructure:"root"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type SessionConfig struct {
	// Backend is "memory" or "redis".
	Backend       string        `mapstructure:"backend"`
	TTL           time.Duration `mapstructure:"ttl"`
	SelectTTL     time.Duration `mapstructure:"select_ttl"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
}

type ScheduleConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Weekly      string `mapstructure:"weekly"`
	Concurrency int    `mapstructure:"concurrency"`
}

type LLMConfig struct {
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Temperature float64       `mapstructure:"temperature"`
}

type RoutineConfig struct {
	Categories     []string          `mapstructure:"categories"`
	DegreeOptions  []string          `mapstructure:"degree_options"`
	CategoryColors map[string]string `mapstructure:"category_colors"`
}

// DefaultCategories is used when no categories are configured.
var DefaultCategories = []string{"睡眠", "工作", "学习", "运动", "娱乐", "生活", "健康"}

// Load reads the optional YAML config file, applies ROUTINE_* environment
// overrides and returns the merged configuration. An empty path searches
// ./routineagent.yaml and $HOME/.routineagent/routineagent.yaml; a missing file
// is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ROUTINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("routineagent")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.routineagent")
	}
	v.SetConfigType("yaml")

	v.SetDefault("app.timezone", "Asia/Shanghai")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.root", "user_data")
	v.SetDefault("storage.sqlite_path", "user_data/routine.sqlite")
	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.ttl", "24h")
	v.SetDefault("session.select_ttl", "5m")
	v.SetDefault("session.redis_db", 0)
	v.SetDefault("schedule.enabled", true)
	v.SetDefault("schedule.weekly", "0 0 9 * * 1")
	v.SetDefault("schedule.concurrency", 4)
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout", "3m")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("routine.categories", DefaultCategories)
	v.SetDefault("routine.degree_options", []string{})
	v.SetDefault("routine.category_colors", map[string]string{
		"睡眠": "午夜蓝",
		"工作": "砖红",
		"学习": "墨绿",
		"运动": "橙黄",
		"娱乐": "玫红",
		"生活": "米黄",
		"健康": "青绿",
	})

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && strings.TrimSpace(path) != "" {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if len(cfg.Routine.Categories) == 0 {
		cfg.Routine.Categories = append([]string(nil), DefaultCategories...)
	}
	return cfg, nil
}

// Location resolves the configured timezone, falling back to time.Local.
func (c Config) Location() *time.Location {
	name := strings.TrimSpace(c.App.Timezone)
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}
