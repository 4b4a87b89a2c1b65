package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	routineagent "github.com/routinebot/RoutineAgent"
	"github.com/routinebot/RoutineAgent/internal/app"
	"github.com/routinebot/RoutineAgent/pkg/weekly"
)

func newServeCmd() *cobra.Command {
	var (
		flagForceMonday bool
		flagGrace       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Feishu listener and the weekly scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, app.Options{RequireFeishu: true})
			if err != nil {
				return err
			}
			defer a.Close()

			listener, err := a.Listener()
			if err != nil {
				return err
			}

			group := routineagent.NewSafeGroup(ctx)
			group.GoSafe("feishu-listener", listener.Start)
			if cfg.Schedule.Enabled {
				runner, err := a.Scheduler(group.Context())
				if err != nil {
					return err
				}
				group.GoSafe("weekly-cron", runner.Run)
			}
			if flagForceMonday || routineagent.ForceMonday() {
				group.GoSafe("weekly-startup", func(ctx context.Context) error {
					log.Info().Msg("FORCE_MONDAY set, running weekly pipeline at startup")
					a.RunWeekly(ctx, weekly.RunOptions{})
					return nil
				})
			}

			log.Info().
				Str("storage", cfg.Storage.Backend).
				Str("sessions", cfg.Session.Backend).
				Bool("schedule", cfg.Schedule.Enabled).
				Str("timezone", a.Location.String()).
				Msg("routineagent serving")
			err = group.WaitOrInterrupt(flagGrace)
			if errors.Is(err, context.Canceled) {
				log.Info().Msg("routineagent stopped")
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&flagForceMonday, "force-monday", false, "启动时立即生成上周周报（等同 FORCE_MONDAY=1）")
	cmd.Flags().DurationVar(&flagGrace, "shutdown-grace", 10*time.Second, "退出时等待后台任务结束的时间")
	return cmd
}
