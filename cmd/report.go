package main

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/routinebot/RoutineAgent/internal/app"
	"github.com/routinebot/RoutineAgent/pkg/weekly"
)

type reportFlags struct {
	user  string
	start string
	end   string
}

func (f *reportFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.user, "user", "", "用户 open_id（必填）")
	cmd.Flags().StringVar(&f.start, "start", "", "开始日期 YYYY-MM-DD（默认上一周周一）")
	cmd.Flags().StringVar(&f.end, "end", "", "结束日期 YYYY-MM-DD，不含当天（默认开始后 7 天）")
}

func (f *reportFlags) analyze(cmd *cobra.Command) (*weekly.Analysis, error) {
	if strings.TrimSpace(f.user) == "" {
		return nil, errors.New("--user must be provided")
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.New(cmd.Context(), cfg, app.Options{})
	if err != nil {
		return nil, err
	}
	defer a.Close()

	start, end, err := resolveWindow(f.start, f.end, a.Location, a.Store.Now())
	if err != nil {
		return nil, err
	}
	return weekly.Analyze(cmd.Context(), a.Store, a.Palette, strings.TrimSpace(f.user), start, end, a.Location)
}

func newTimelineCmd() *cobra.Command {
	var flags reportFlags
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Print the atomic timeline of a user as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			analysis, err := flags.analyze(cmd)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), analysis.AtomicCSV)
			return err
		},
	}
	flags.bind(cmd)
	return cmd
}

func newStatsCmd() *cobra.Command {
	var flags reportFlags
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print interval statistics, category totals and the colour blend of a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			analysis, err := flags.analyze(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if _, err := fmt.Fprint(out, analysis.SummaryCSV); err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "\n%s\n", analysis.Color.PromptText())
			return err
		},
	}
	flags.bind(cmd)
	return cmd
}
