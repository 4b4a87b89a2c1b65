package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	routineagent "github.com/routinebot/RoutineAgent"
	"github.com/routinebot/RoutineAgent/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "routineagent",
	Short: "Feishu routine tracking bot",
	Long:  `routineagent 是基于飞书长连接的日程记录机器人：通过聊天命令和交互卡片记录日常事项，每周一生成周报并推送给用户。`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setupLogging(rootLogLevel); err != nil {
			return err
		}
		var dirs []string
		if rootConfigPath != "" {
			dirs = append(dirs, filepath.Dir(rootConfigPath))
		}
		if err := routineagent.EnsureEnv(dirs...); err != nil {
			log.Warn().Err(err).Msg("load .env failed")
		}
		return nil
	},
	SilenceUsage: true,
}

var (
	rootConfigPath string
	rootLogLevel   string
)

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config", "", "配置文件路径（默认搜索 ./routineagent.yaml）")
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "", "日志级别 debug|info|warn|error（默认取配置 app.log_level）")
	rootCmd.AddCommand(
		newServeCmd(),
		newWeeklyCmd(),
		newTimelineCmd(),
		newStatsCmd(),
	)
}

func setupLogging(level string) error {
	level = strings.TrimSpace(level)
	if level == "" {
		return nil
	}
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(parsed)
	return nil
}

// loadConfig reads the config and applies app.log_level unless --log-level
// was given.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(rootConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if strings.TrimSpace(rootLogLevel) == "" {
		if err := setupLogging(cfg.App.LogLevel); err != nil {
			log.Warn().Err(err).Str("level", cfg.App.LogLevel).Msg("ignoring invalid app.log_level")
		}
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("routineagent command failed")
	}
}
