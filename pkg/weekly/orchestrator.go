// Package weekly generates the weekly narrative report of every user from
// the previous ISO week's records.
package weekly

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/routinebot/RoutineAgent/pkg/eventstore"
	"github.com/routinebot/RoutineAgent/pkg/llm"
	"github.com/routinebot/RoutineAgent/pkg/palette"
)

// Notifier delivers a generated report to its user.
type Notifier interface {
	PushWeekly(ctx context.Context, userID string, report eventstore.WeeklyReport) error
}

// Options configure an Orchestrator.
type Options struct {
	Location    *time.Location
	Concurrency int
	Temperature float64
	// ArtifactDir receives the per-user CSV inputs when set.
	ArtifactDir string
	Now         func() time.Time
	NewID       func() string
}

// Orchestrator runs the weekly pipeline.
type Orchestrator struct {
	store      *eventstore.Store
	summarizer llm.Summarizer
	palette    *palette.Calculator
	notifier   Notifier
	opts       Options
}

func NewOrchestrator(store *eventstore.Store, summarizer llm.Summarizer, calc *palette.Calculator, notifier Notifier, opts Options) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("weekly: event store is nil")
	}
	if calc == nil {
		calc = palette.NewCalculator(nil)
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Orchestrator{store: store, summarizer: summarizer, palette: calc, notifier: notifier, opts: opts}, nil
}

// RunOptions select what a run covers.
type RunOptions struct {
	// Users limits the run; empty means every stored user.
	Users     []string
	Overwrite bool
	// WeekStart overrides the previous-week window.
	WeekStart time.Time
}

// Outcome is the per-user result of a run.
type Outcome struct {
	UserID  string
	WeekKey string
	Skipped bool
	// Degraded reports that the placeholder report was stored.
	Degraded bool
	Err      error
}

// Run generates the report of every selected user. A failing user never
// stops the others; per-user errors are reported in the outcomes.
func (o *Orchestrator) Run(ctx context.Context, ro RunOptions) ([]Outcome, error) {
	users := ro.Users
	if len(users) == 0 {
		var err error
		users, err = o.store.Users(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "weekly: list users failed")
		}
	}
	weekStart := ro.WeekStart
	if weekStart.IsZero() {
		weekStart, _ = PreviousWeek(o.opts.Now(), o.opts.Location)
	} else {
		weekStart = WeekStart(weekStart, o.opts.Location)
	}
	log.Info().Int("users", len(users)).Str("week_key", eventstore.WeekKey(weekStart)).Msg("weekly: run started")

	var (
		mu       sync.Mutex
		outcomes = make([]Outcome, 0, len(users))
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.opts.Concurrency)
	for _, userID := range users {
		userID := userID
		group.Go(func() error {
			out := o.runUser(groupCtx, userID, weekStart, ro.Overwrite)
			mu.Lock()
			outcomes = append(outcomes, out)
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].UserID < outcomes[j].UserID })
	return outcomes, ctx.Err()
}

func (o *Orchestrator) runUser(ctx context.Context, userID string, weekStart time.Time, overwrite bool) (out Outcome) {
	out = Outcome{UserID: userID, WeekKey: eventstore.WeekKey(weekStart)}
	logger := log.With().Str("user_id", userID).Str("week_key", out.WeekKey).Logger()
	defer func() {
		if r := recover(); r != nil {
			out.Err = errors.Errorf("weekly: panic: %v", r)
			logger.Error().Interface("panic", r).Msg("weekly: user run panicked")
		}
	}()

	if !overwrite {
		reports, err := o.store.LoadWeeklyReports(ctx, userID)
		if err == nil {
			if _, exists := reports.Reports[out.WeekKey]; exists {
				logger.Info().Msg("weekly: report exists, skipping")
				out.Skipped = true
				return out
			}
		}
	}
	report, err := o.Generate(ctx, userID, weekStart)
	if err != nil {
		logger.Error().Err(err).Msg("weekly: generate failed")
		out.Err = err
		return out
	}
	out.Degraded = report.Error != ""
	if o.notifier != nil {
		if err := o.notifier.PushWeekly(ctx, userID, *report); err != nil {
			logger.Error().Err(err).Msg("weekly: push report failed")
			out.Err = err
		}
	}
	return out
}

// Generate builds, stores and returns one user's report for the week that
// starts at weekStart. Summarizer failures store a degraded report instead of
// failing.
func (o *Orchestrator) Generate(ctx context.Context, userID string, weekStart time.Time) (*eventstore.WeeklyReport, error) {
	weekStart = WeekStart(weekStart, o.opts.Location)
	weekEnd := weekStart.AddDate(0, 0, 7)
	weekKey := eventstore.WeekKey(weekStart)
	logger := log.With().Str("user_id", userID).Str("week_key", weekKey).Logger()

	analysis, err := Analyze(ctx, o.store, o.palette, userID, weekStart, weekEnd, o.opts.Location)
	if err != nil {
		return nil, err
	}
	o.writeArtifacts(userID, weekKey, analysis)

	reports, err := o.store.LoadWeeklyReports(ctx, userID)
	if err != nil {
		logger.Warn().Err(err).Msg("weekly: load previous reports failed, continuing without history")
		reports = &eventstore.WeeklyReportsDoc{UserID: userID, Reports: map[string]*eventstore.WeeklyReport{}}
	}
	previous := reports.Reports[eventstore.WeekKey(weekStart.AddDate(0, 0, -7))]
	prompt := buildPrompt(promptInput{
		WeekKey:     weekKey,
		AtomicCSV:   analysis.AtomicCSV,
		SummaryCSV:  analysis.SummaryCSV,
		ColorPrompt: analysis.Color.PromptText(),
		Previous:    previous,
		History:     suggestionHistory(reports, weekKey),
	})

	report := eventstore.WeeklyReport{
		WeekKey:     weekKey,
		WeekStart:   weekStart,
		GeneratedAt: o.opts.Now(),
		MainColor:   analysis.Color.Main.Name,
		ColorPrompt: analysis.Color.PromptText(),
	}
	narrative, suggestions, err := o.summarize(ctx, prompt)
	if err != nil {
		logger.Warn().Err(err).Msg("weekly: summarizer failed, storing degraded report")
		report.Error = err.Error()
	} else {
		report.Narrative = narrative
		report.Suggestions = suggestions
	}
	if err := o.store.SaveWeeklyReport(ctx, userID, report); err != nil {
		return nil, err
	}
	logger.Info().
		Int("records", len(analysis.Records)).
		Int("intervals", len(analysis.Intervals)).
		Bool("degraded", report.Error != "").
		Msg("weekly: report stored")
	return &report, nil
}

func (o *Orchestrator) summarize(ctx context.Context, prompt string) (eventstore.WeeklyNarrative, []eventstore.Suggestion, error) {
	if o.summarizer == nil {
		return eventstore.WeeklyNarrative{}, nil, llm.ErrNotConfigured
	}
	raw, err := o.summarizer.StructuredCall(ctx, prompt, Schema(), systemInstruction, o.opts.Temperature)
	if err != nil {
		return eventstore.WeeklyNarrative{}, nil, err
	}
	return decodeResult(raw, o.opts.NewID)
}

func (o *Orchestrator) writeArtifacts(userID, weekKey string, a *Analysis) {
	if o.opts.ArtifactDir == "" {
		return
	}
	dir := filepath.Join(o.opts.ArtifactDir, userID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("weekly: create artifact dir failed")
		return
	}
	files := map[string]string{
		weekKey + "_atomic.csv":  a.AtomicCSV,
		weekKey + "_summary.csv": a.SummaryCSV,
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("weekly: write artifact failed")
		}
	}
}
