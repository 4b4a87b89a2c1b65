// Package app wires the configured components of the routine bot.
package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	routineagent "github.com/routinebot/RoutineAgent"
	"github.com/routinebot/RoutineAgent/internal/config"
	"github.com/routinebot/RoutineAgent/internal/feishusdk"
	"github.com/routinebot/RoutineAgent/pkg/bot"
	"github.com/routinebot/RoutineAgent/pkg/card"
	"github.com/routinebot/RoutineAgent/pkg/eventstore"
	"github.com/routinebot/RoutineAgent/pkg/llm"
	"github.com/routinebot/RoutineAgent/pkg/palette"
	"github.com/routinebot/RoutineAgent/pkg/schedule"
	"github.com/routinebot/RoutineAgent/pkg/session"
	"github.com/routinebot/RoutineAgent/pkg/weekly"
)

// EnvArtifactDir keeps the weekly CSV inputs for inspection when set.
const EnvArtifactDir = "WEEKLY_ARTIFACT_DIR"

// Options select which optional services must be present.
type Options struct {
	// RequireFeishu fails New when the Feishu credentials are missing.
	RequireFeishu bool
	// Silent keeps generated weekly reports off the chat.
	Silent bool
}

// App holds the wired components. Feishu, Bot and Summarizer are nil when
// their credentials are not configured.
type App struct {
	Config     config.Config
	Location   *time.Location
	Store      *eventstore.Store
	Sessions   session.Store
	Composer   *card.Composer
	Palette    *palette.Calculator
	Summarizer llm.Summarizer
	Feishu     *feishusdk.Client
	Bot        *bot.Bot
	Weekly     *weekly.Orchestrator

	closers []func() error
}

// New builds every component from cfg.
func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg, Location: cfg.Location()}

	docs, err := openDocuments(cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, docs.Close)
	a.Store, err = eventstore.NewStore(docs, eventstore.Options{Categories: cfg.Routine.Categories})
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	sessions, closeSessions, err := openSessions(ctx, cfg.Session)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Sessions = sessions
	if closeSessions != nil {
		a.closers = append(a.closers, closeSessions)
	}

	a.Composer, err = card.NewComposer(a.Store, a.Sessions, card.Options{
		SessionTTL:    cfg.Session.TTL,
		DegreeOptions: cfg.Routine.DegreeOptions,
		Location:      a.Location,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Palette = palette.NewCalculator(cfg.Routine.CategoryColors)

	if s, err := newSummarizer(cfg.LLM); err == nil {
		a.Summarizer = s
		if routineagent.EnvString(routineagent.EnvOpenAIAPIKey, "") == "" {
			log.Warn().Msg("app: OPENAI_API_KEY not set, weekly reports degrade until it is configured")
		}
	} else {
		log.Warn().Err(err).Msg("app: summarizer disabled, weekly reports will be degraded")
	}

	if client, err := feishusdk.NewClientFromEnv(); err == nil {
		a.Feishu = client
	} else if opts.RequireFeishu {
		_ = a.Close()
		return nil, err
	} else {
		log.Warn().Err(err).Msg("app: feishu disabled")
	}

	var notifier weekly.Notifier
	if a.Feishu != nil {
		a.Bot, err = bot.New(a.Composer, a.Store, a.Sessions, a.Feishu, bot.Options{
			SelectTTL:    cfg.Session.SelectTTL,
			AdminUserIDs: routineagent.EnvList(routineagent.EnvAdminUserIDs),
			SecretVars:   routineagent.EnvList(routineagent.EnvAdminSecretVars),
			Persist:      routineagent.PersistEnv,
		})
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		if !opts.Silent {
			notifier = a.Bot
		}
	}

	a.Weekly, err = weekly.NewOrchestrator(a.Store, a.Summarizer, a.Palette, notifier, weekly.Options{
		Location:    a.Location,
		Concurrency: cfg.Schedule.Concurrency,
		Temperature: cfg.LLM.Temperature,
		ArtifactDir: routineagent.EnvString(EnvArtifactDir, ""),
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func openDocuments(cfg config.StorageConfig) (eventstore.DocumentStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "file":
		return eventstore.NewFileDocuments(cfg.Root)
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrap(err, "app: create sqlite dir")
			}
		}
		return eventstore.NewSQLiteDocuments(cfg.SQLitePath)
	default:
		return nil, errors.Errorf("app: unknown storage backend %q", cfg.Backend)
	}
}

func openSessions(ctx context.Context, cfg config.SessionConfig) (session.Store, func() error, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "memory":
		return session.NewMemoryStore(), nil, nil
	case "redis":
		addr := firstNonEmpty(cfg.RedisAddr, routineagent.EnvString(routineagent.EnvRedisAddr, ""))
		if addr == "" {
			return nil, nil, errors.New("app: redis session backend needs session.redis_addr or REDIS_ADDR")
		}
		store := session.NewRedisStore(&redis.Options{
			Addr:     addr,
			Password: firstNonEmpty(cfg.RedisPassword, routineagent.EnvString(routineagent.EnvRedisPassword, "")),
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			_ = store.Close()
			return nil, nil, errors.Wrapf(err, "app: ping redis %s", addr)
		}
		return store, store.Close, nil
	default:
		return nil, nil, errors.Errorf("app: unknown session backend %q", cfg.Backend)
	}
}

func newSummarizer(cfg config.LLMConfig) (llm.Summarizer, error) {
	// the key is read per call so an admin rotation reaches the running bot
	s, err := llm.NewOpenAI(llm.Config{
		KeySource: func() string {
			return routineagent.EnvString(routineagent.EnvOpenAIAPIKey, "")
		},
		BaseURL:    firstNonEmpty(cfg.BaseURL, routineagent.EnvString(routineagent.EnvOpenAIBaseURL, "")),
		Model:      firstNonEmpty(routineagent.EnvString(routineagent.EnvOpenAIModel, ""), cfg.Model),
		Timeout:    cfg.Timeout,
		SchemaName: "weekly_report",
		MaxRetries: 2,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Listener returns the Feishu long-connection listener bound to the bot.
func (a *App) Listener() (*feishusdk.Listener, error) {
	if a.Feishu == nil || a.Bot == nil {
		return nil, errors.New("app: feishu is not configured")
	}
	return feishusdk.NewListener(a.Feishu, a.Bot.HandleMessage, a.Bot.HandleCardAction)
}

// Scheduler returns a cron runner with the weekly job registered.
func (a *App) Scheduler(ctx context.Context) (*schedule.Runner, error) {
	runner := schedule.New(ctx, a.Location)
	id, err := runner.Add("weekly", a.Config.Schedule.Weekly, func(ctx context.Context) {
		a.RunWeekly(ctx, weekly.RunOptions{})
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("spec", a.Config.Schedule.Weekly).Time("next", runner.Next(id)).Msg("app: weekly job scheduled")
	return runner, nil
}

// RunWeekly runs the weekly pipeline and logs a summary of the outcomes.
func (a *App) RunWeekly(ctx context.Context, ro weekly.RunOptions) []weekly.Outcome {
	outcomes, err := a.Weekly.Run(ctx, ro)
	if err != nil {
		log.Error().Err(err).Msg("app: weekly run interrupted")
	}
	var generated, skipped, degraded, failed int
	for _, out := range outcomes {
		switch {
		case out.Err != nil:
			failed++
		case out.Skipped:
			skipped++
		case out.Degraded:
			degraded++
			generated++
		default:
			generated++
		}
	}
	log.Info().
		Int("generated", generated).
		Int("skipped", skipped).
		Int("degraded", degraded).
		Int("failed", failed).
		Msg("app: weekly run finished")
	return outcomes
}

// Close releases the storage and session backends.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if trimmed := strings.TrimSpace(val); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
