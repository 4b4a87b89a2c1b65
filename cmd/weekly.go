package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	routineagent "github.com/routinebot/RoutineAgent"
	"github.com/routinebot/RoutineAgent/internal/app"
	"github.com/routinebot/RoutineAgent/pkg/weekly"
)

func newWeeklyCmd() *cobra.Command {
	var (
		flagUsers       []string
		flagOverwrite   bool
		flagForceMonday bool
		flagWeek        string
		flagPush        bool
	)
	cmd := &cobra.Command{
		Use:   "weekly",
		Short: "Generate the weekly reports of the previous week",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg, app.Options{RequireFeishu: flagPush, Silent: !flagPush})
			if err != nil {
				return err
			}
			defer a.Close()

			force := flagForceMonday || routineagent.ForceMonday() || flagWeek != ""
			if !force && !weekly.IsMonday(time.Now(), a.Location) {
				log.Info().Msg("not Monday, skipping weekly run (use --force-monday)")
				return nil
			}
			weekStart, err := parseDate(flagWeek, a.Location)
			if err != nil {
				return err
			}
			outcomes := a.RunWeekly(cmd.Context(), weekly.RunOptions{
				Users:     flagUsers,
				Overwrite: flagOverwrite,
				WeekStart: weekStart,
			})
			out := cmd.OutOrStdout()
			var failed int
			for _, o := range outcomes {
				status := "ok"
				switch {
				case o.Err != nil:
					status = "failed: " + o.Err.Error()
					failed++
				case o.Skipped:
					status = "skipped"
				case o.Degraded:
					status = "degraded"
				}
				fmt.Fprintf(out, "%s\t%s\t%s\n", o.UserID, o.WeekKey, status)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d weekly reports failed", failed, len(outcomes))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&flagUsers, "user", nil, "只处理指定用户（可重复，默认全部用户）")
	cmd.Flags().BoolVar(&flagOverwrite, "overwrite", false, "覆盖已存在的周报")
	cmd.Flags().BoolVar(&flagForceMonday, "force-monday", false, "非周一也立即执行（等同 FORCE_MONDAY=1）")
	cmd.Flags().StringVar(&flagWeek, "week", "", "指定周内任意日期 YYYY-MM-DD（默认上一周）")
	cmd.Flags().BoolVar(&flagPush, "push", false, "生成后通过飞书推送周报卡片")
	return cmd
}
