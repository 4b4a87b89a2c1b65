// Package schedule runs periodic jobs on a seconds-resolution cron.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Runner wraps a cron scheduler whose jobs receive a shared base context.
type Runner struct {
	cron    *cron.Cron
	baseCtx context.Context

	mu      sync.Mutex
	running map[string]bool
}

// New creates a runner in loc; a nil loc uses time.Local.
func New(baseCtx context.Context, loc *time.Location) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Runner{
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		baseCtx: baseCtx,
		running: map[string]bool{},
	}
}

// Add registers job under spec (six fields, seconds first). A job that is
// still running when its next tick fires is skipped for that tick.
func (r *Runner) Add(name, spec string, job func(context.Context)) (cron.EntryID, error) {
	id, err := r.cron.AddFunc(spec, func() {
		if !r.begin(name) {
			log.Warn().Str("job", name).Msg("schedule: previous run still active, skipping tick")
			return
		}
		defer r.end(name)
		start := time.Now()
		log.Info().Str("job", name).Msg("schedule: job started")
		job(r.baseCtx)
		log.Info().Str("job", name).Dur("elapsed", time.Since(start)).Msg("schedule: job finished")
	})
	if err != nil {
		return 0, errors.Wrapf(err, "schedule: invalid spec %q for %s", spec, name)
	}
	return id, nil
}

func (r *Runner) begin(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running[name] {
		return false
	}
	r.running[name] = true
	return true
}

func (r *Runner) end(name string) {
	r.mu.Lock()
	delete(r.running, name)
	r.mu.Unlock()
}

// Next returns the next activation of an entry, also before Start.
func (r *Runner) Next(id cron.EntryID) time.Time {
	entry := r.cron.Entry(id)
	if !entry.Next.IsZero() || entry.Schedule == nil {
		return entry.Next
	}
	return entry.Schedule.Next(time.Now().In(r.cron.Location()))
}

func (r *Runner) Start() {
	log.Info().Int("entries", len(r.cron.Entries())).Msg("schedule: cron started")
	r.cron.Start()
}

// Stop waits for running jobs to return.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	log.Info().Msg("schedule: cron stopped")
}

// Run starts the runner and blocks until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	r.Start()
	<-ctx.Done()
	r.Stop()
	return nil
}

// Validate parses spec with the runner's six-field parser.
func Validate(spec string) error {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(spec); err != nil {
		return errors.Wrapf(err, "schedule: invalid spec %q", spec)
	}
	return nil
}
