package tools

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Limits bounds one turn's tool usage, sourced from the tenant snapshot.
type Limits struct {
	PerCallTimeout time.Duration
	TotalTimeout   time.Duration
	MaxCalls       int
}

func (l Limits) withDefaults() Limits {
	if l.PerCallTimeout <= 0 {
		l.PerCallTimeout = 400 * time.Millisecond
	}
	if l.TotalTimeout <= 0 {
		l.TotalTimeout = time.Second
	}
	if l.MaxCalls <= 0 {
		l.MaxCalls = 2
	}
	return l
}

// Router validates, dispatches, and time-boxes tool calls against a
// tenant's read-only data store. It holds no mutable state of its own:
// every call is fetched fresh from the store, which is free to cache on
// its own terms (e.g. the tenant resolver's TTL cache).
type Router struct {
	store Store
}

func NewRouter(store Store) *Router {
	return &Router{store: store}
}

// Invoke validates args against the named tool's schema, enforces the
// per-call timeout (never past a deadline already set on ctx, which is how
// the engine applies the turn's total tool-time cap), and dispatches to
// the tenant store.
func (r *Router) Invoke(ctx context.Context, name Name, args map[string]any, tenantID string, limits Limits) Result {
	limits = limits.withDefaults()

	if !IsKnown(name) {
		return Result{Outcome: OutcomeSchemaError, Detail: fmt.Sprintf("unknown tool %q", name)}
	}
	// A policy or FAQ lookup with no topic is reported as Empty, not as a
	// schema error.
	if (name == GetPolicies || name == GetFAQs) && strings.TrimSpace(stringArg(args, "topic")) == "" {
		return Result{Outcome: OutcomeEmpty, Detail: "no topic given"}
	}
	if err := validateArgs(name, args); err != nil {
		return Result{Outcome: OutcomeSchemaError, Detail: err.Error()}
	}
	if strings.TrimSpace(tenantID) == "" {
		return Result{Outcome: OutcomeSchemaError, Detail: "tenant id is required"}
	}

	callCtx, cancel := context.WithTimeout(ctx, limits.PerCallTimeout)
	defer cancel()

	return r.dispatch(callCtx, name, args, tenantID)
}

// BudgetExhausted returns the synthetic result fed back to the model once
// a turn's tool budget has been used up.
func BudgetExhausted() Result {
	return Result{Outcome: OutcomeUpstream, Detail: "budget-exhausted"}
}

func (r *Router) dispatch(ctx context.Context, name Name, args map[string]any, tenantID string) Result {
	type outcome struct {
		result Result
	}
	done := make(chan outcome, 1)

	go func() {
		done <- outcome{result: r.call(ctx, name, args, tenantID)}
	}()

	select {
	case out := <-done:
		return out.result
	case <-ctx.Done():
		return Result{Outcome: OutcomeTimeout, Detail: "tool call exceeded its timeout"}
	}
}

func (r *Router) call(ctx context.Context, name Name, args map[string]any, tenantID string) Result {
	switch name {
	case GetLatestBooking:
		b, found, err := r.store.LatestBooking(ctx, tenantID, stringArg(args, "customer_phone"))
		return bookingResult(b, found, err)
	case GetBookingByID:
		b, found, err := r.store.BookingByID(ctx, tenantID, stringArg(args, "booking_id"))
		return bookingResult(b, found, err)
	case GetBusinessServices:
		services, err := r.store.BusinessServices(ctx, tenantID)
		if err != nil {
			return upstreamOrTimeout(err)
		}
		if len(services) == 0 {
			return Result{Outcome: OutcomeEmpty}
		}
		return Result{Outcome: OutcomeOK, Payload: services}
	case GetWorkingHours:
		hours, err := r.store.WorkingHours(ctx, tenantID)
		if err != nil {
			return upstreamOrTimeout(err)
		}
		if len(hours.ByDay) == 0 {
			return Result{Outcome: OutcomeEmpty}
		}
		return Result{Outcome: OutcomeOK, Payload: hours}
	case GetPolicies:
		p, found, err := r.store.Policies(ctx, tenantID, stringArg(args, "topic"))
		return topicResult(p, found, err)
	case GetFAQs:
		f, found, err := r.store.FAQs(ctx, tenantID, stringArg(args, "topic"))
		return topicResult(f, found, err)
	default:
		return Result{Outcome: OutcomeSchemaError, Detail: fmt.Sprintf("unhandled tool %q", name)}
	}
}

func bookingResult(b Booking, found bool, err error) Result {
	if err != nil {
		return upstreamOrTimeout(err)
	}
	if !found {
		return Result{Outcome: OutcomeNotFound}
	}
	return Result{Outcome: OutcomeOK, Payload: b}
}

func topicResult[T any](v T, found bool, err error) Result {
	if err != nil {
		return upstreamOrTimeout(err)
	}
	if !found {
		return Result{Outcome: OutcomeEmpty}
	}
	return Result{Outcome: OutcomeOK, Payload: v}
}

func upstreamOrTimeout(err error) Result {
	if err == context.DeadlineExceeded {
		return Result{Outcome: OutcomeTimeout, Detail: err.Error()}
	}
	return Result{Outcome: OutcomeUpstream, Detail: err.Error()}
}

func validateArgs(name Name, args map[string]any) error {
	for _, key := range requiredArgs[name] {
		if strings.TrimSpace(stringArg(args, key)) == "" {
			return fmt.Errorf("missing required argument %q", key)
		}
	}
	return nil
}

func stringArg(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	v, ok := args[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
