package routineagent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	restartBackoff    = 200 * time.Millisecond
	maxRestartBackoff = 30 * time.Second
)

// panicOutput receives panic reports. Panics may come from the logger itself,
// so they bypass it.
var panicOutput io.Writer = os.Stderr

// NewSafeGroup creates a SafeGroup backed by errgroup.WithContext.
func NewSafeGroup(ctx context.Context) *SafeGroup {
	if ctx == nil {
		ctx = context.Background()
	}
	group, groupCtx := errgroup.WithContext(ctx)
	return &SafeGroup{Group: group, ctx: groupCtx, parent: ctx}
}

// SafeGroup runs the long-lived loops of the bot (listener, scheduler).
// A panicking loop is restarted with backoff; a loop returning an error
// cancels the others.
type SafeGroup struct {
	*errgroup.Group
	// ctx is canceled on parent cancellation or the first non-nil error.
	ctx context.Context
	// parent is the caller context, typically signal.NotifyContext.
	parent context.Context
}

// Context returns the group context handed to every loop.
func (sg *SafeGroup) Context() context.Context {
	if sg == nil {
		return context.Background()
	}
	return sg.ctx
}

// GoSafe runs fn until it returns, restarting it after panics.
func (sg *SafeGroup) GoSafe(name string, fn func(context.Context) error) {
	if sg == nil || sg.Group == nil || fn == nil {
		return
	}
	GroupGoSafe(sg.ctx, sg.Group, name, fn)
}

// GroupGoSafe is GoSafe for a plain errgroup.
func GroupGoSafe(ctx context.Context, group *errgroup.Group, name string, fn func(context.Context) error) {
	if group == nil || fn == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	group.Go(func() error {
		return runRestarting(ctx, name, fn)
	})
}

func runRestarting(ctx context.Context, name string, fn func(context.Context) error) error {
	backoff := restartBackoff
	for {
		if ctx.Err() != nil {
			return nil
		}
		err, recovered, panicked := callRecover(ctx, fn)
		if !panicked {
			return err
		}
		_, _ = fmt.Fprintf(panicOutput, "WARN: %s panicked: %v\n%s\n", name, recovered, debug.Stack())

		jitter := time.Duration(0)
		if half := backoff / 2; half > 0 {
			jitter = time.Duration(time.Now().UnixNano() % int64(half))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff + jitter):
		}
		backoff *= 2
		if backoff > maxRestartBackoff {
			backoff = maxRestartBackoff
		}
	}
}

func callRecover(ctx context.Context, fn func(context.Context) error) (err error, recovered any, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			recovered, panicked = r, true
		}
	}()
	return fn(ctx), nil, false
}

// WaitOrInterrupt waits for the group, returning parent.Err() when the parent
// is canceled and the loops do not finish within gracePeriod.
func (sg *SafeGroup) WaitOrInterrupt(gracePeriod time.Duration) error {
	if sg == nil || sg.Group == nil {
		return nil
	}
	ctx := sg.parent
	waitCh := make(chan error, 1)
	go func() {
		waitCh <- sg.Group.Wait()
	}()

	select {
	case err := <-waitCh:
		return normalizeInterruptError(ctx, err)
	case <-ctx.Done():
		if gracePeriod <= 0 {
			return ctx.Err()
		}
		select {
		case err := <-waitCh:
			return normalizeInterruptError(ctx, err)
		case <-time.After(gracePeriod):
			return ctx.Err()
		}
	}
}

func normalizeInterruptError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ctx.Err())) {
		return ctx.Err()
	}
	return err
}
