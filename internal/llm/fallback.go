package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// FallbackAdapter attempts a primary adapter first and switches to a
// secondary one if the primary errors, or if it has not produced a first
// token within fallbackFirstTokenTimeout.
type FallbackAdapter struct {
	primary   Adapter
	secondary Adapter
}

var fallbackFirstTokenTimeout = 900 * time.Millisecond

func NewFallbackAdapter(primary, secondary Adapter) *FallbackAdapter {
	return &FallbackAdapter{primary: primary, secondary: secondary}
}

func (a *FallbackAdapter) Primary() Adapter   { return a.primary }
func (a *FallbackAdapter) Secondary() Adapter { return a.secondary }

func (a *FallbackAdapter) StreamTurn(ctx context.Context, req Request, onEvent EventHandler) error {
	if a.primary == nil {
		if a.secondary == nil {
			return fmt.Errorf("fallback adapter misconfigured")
		}
		return a.secondary.StreamTurn(ctx, req, onEvent)
	}
	if a.secondary == nil || fallbackFirstTokenTimeout <= 0 {
		return a.primary.StreamTurn(ctx, req, onEvent)
	}

	primaryErr, timedOut := a.runPrimaryAttempt(ctx, req, onEvent)
	if primaryErr == nil && !timedOut {
		return nil
	}
	if !timedOut && (errors.Is(primaryErr, context.Canceled) || errors.Is(primaryErr, context.DeadlineExceeded)) {
		return primaryErr
	}

	secondaryErr := a.secondary.StreamTurn(ctx, req, onEvent)
	if secondaryErr != nil {
		if timedOut {
			return fmt.Errorf("primary adapter timeout before first token (%s); secondary adapter error: %v", fallbackFirstTokenTimeout, secondaryErr)
		}
		return fmt.Errorf("primary adapter error: %w; secondary adapter error: %v", primaryErr, secondaryErr)
	}
	return nil
}

// runPrimaryAttempt races the primary adapter's first token event against a
// timeout. It returns the primary's terminal error (nil on success) and
// whether the attempt was abandoned before any token arrived.
func (a *FallbackAdapter) runPrimaryAttempt(ctx context.Context, req Request, onEvent EventHandler) (err error, timedOut bool) {
	primaryCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	firstTokenCh := make(chan struct{})
	var firstTokenOnce sync.Once
	var acceptPrimary atomic.Bool
	acceptPrimary.Store(true)
	resultCh := make(chan error, 1)

	go func() {
		resultCh <- a.primary.StreamTurn(primaryCtx, req, func(ev StreamEvent) error {
			if ev.Kind == EventToken && ev.Text != "" {
				firstTokenOnce.Do(func() { close(firstTokenCh) })
			}
			if !acceptPrimary.Load() {
				return context.Canceled
			}
			return onEvent(ev)
		})
	}()

	timer := time.NewTimer(fallbackFirstTokenTimeout)
	defer timer.Stop()

	select {
	case err := <-resultCh:
		return err, false
	case <-firstTokenCh:
		return <-resultCh, false
	case <-timer.C:
		acceptPrimary.Store(false)
		cancel()
		select {
		case <-resultCh:
			return nil, true
		case <-time.After(200 * time.Millisecond):
			return nil, true
		}
	}
}
