package tools

import (
	"context"
	"testing"
	"time"
)

func TestInvokeRejectsMissingRequiredArgument(t *testing.T) {
	r := NewRouter(NewMockStore())
	res := r.Invoke(context.Background(), GetBookingByID, nil, "tenant-1", Limits{})
	if res.Outcome != OutcomeSchemaError {
		t.Fatalf("Outcome = %v, want SchemaError", res.Outcome)
	}
}

func TestInvokeRejectsMissingTenant(t *testing.T) {
	r := NewRouter(NewMockStore())
	res := r.Invoke(context.Background(), GetBusinessServices, nil, "", Limits{})
	if res.Outcome != OutcomeSchemaError {
		t.Fatalf("Outcome = %v, want SchemaError", res.Outcome)
	}
}

func TestInvokeNotFound(t *testing.T) {
	store := NewMockStore()
	r := NewRouter(store)
	res := r.Invoke(context.Background(), GetBookingByID, map[string]any{"booking_id": "missing"}, "tenant-1", Limits{})
	if res.Outcome != OutcomeNotFound {
		t.Fatalf("Outcome = %v, want NotFound", res.Outcome)
	}
}

func TestInvokeEmptyTopic(t *testing.T) {
	store := NewMockStore()
	r := NewRouter(store)
	res := r.Invoke(context.Background(), GetPolicies, map[string]any{"topic": "refunds"}, "tenant-1", Limits{})
	if res.Outcome != OutcomeEmpty {
		t.Fatalf("Outcome = %v, want Empty", res.Outcome)
	}
}

func TestInvokeOK(t *testing.T) {
	store := NewMockStore()
	store.ByPhone["+15551234567"] = Booking{ID: "b1", CustomerPhone: "+15551234567", ServiceName: "Haircut"}
	r := NewRouter(store)

	res := r.Invoke(context.Background(), GetLatestBooking, map[string]any{"customer_phone": "+15551234567"}, "tenant-1", Limits{})
	if res.Outcome != OutcomeOK {
		t.Fatalf("Outcome = %v, want OK", res.Outcome)
	}
	booking, ok := res.Payload.(Booking)
	if !ok || booking.ID != "b1" {
		t.Fatalf("Payload = %+v, want booking b1", res.Payload)
	}
}

func TestInvokeTimeout(t *testing.T) {
	store := NewMockStore()
	store.Policy["cancellation"] = Policy{Topic: "cancellation", Body: "48h notice"}
	store.Delay = func(ctx context.Context) error {
		select {
		case <-time.After(2 * time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r := NewRouter(store)

	start := time.Now()
	res := r.Invoke(context.Background(), GetPolicies, map[string]any{"topic": "cancellation"}, "tenant-1", Limits{PerCallTimeout: 50 * time.Millisecond})
	if res.Outcome != OutcomeTimeout {
		t.Fatalf("Outcome = %v, want Timeout", res.Outcome)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("Invoke took %s, want it bounded by the per-call timeout", elapsed)
	}
}

func TestInvokeFetchesFreshEveryCall(t *testing.T) {
	store := NewMockStore()
	store.Bookings["b1"] = Booking{ID: "b1"}
	calls := 0
	wrapped := &countingStore{MockStore: store, calls: &calls}
	r := NewRouter(wrapped)

	for i := 0; i < 3; i++ {
		res := r.Invoke(context.Background(), GetBookingByID, map[string]any{"booking_id": "b1"}, "tenant-1", Limits{})
		if res.Outcome != OutcomeOK {
			t.Fatalf("Outcome = %v, want OK", res.Outcome)
		}
	}
	if calls != 3 {
		t.Fatalf("underlying store calls = %d, want 3 (router holds no cache)", calls)
	}
}

func TestInvokeSeesUpdatedStoreState(t *testing.T) {
	store := NewMockStore()
	store.ByPhone["+15551234567"] = Booking{ID: "b1", CustomerPhone: "+15551234567"}
	r := NewRouter(store)

	first := r.Invoke(context.Background(), GetLatestBooking, map[string]any{"customer_phone": "+15551234567"}, "tenant-1", Limits{})
	if booking, ok := first.Payload.(Booking); !ok || booking.ID != "b1" {
		t.Fatalf("Payload = %+v, want booking b1", first.Payload)
	}

	store.ByPhone["+15551234567"] = Booking{ID: "b2", CustomerPhone: "+15551234567"}
	second := r.Invoke(context.Background(), GetLatestBooking, map[string]any{"customer_phone": "+15551234567"}, "tenant-1", Limits{})
	booking, ok := second.Payload.(Booking)
	if !ok || booking.ID != "b2" {
		t.Fatalf("Payload = %+v, want the updated booking b2, not a stale cached result", second.Payload)
	}
}

type countingStore struct {
	*MockStore
	calls *int
}

func (c *countingStore) BookingByID(ctx context.Context, tenantID, id string) (Booking, bool, error) {
	*c.calls++
	return c.MockStore.BookingByID(ctx, tenantID, id)
}

func TestBudgetExhaustedResult(t *testing.T) {
	res := BudgetExhausted()
	if res.Outcome != OutcomeUpstream || res.Detail != "budget-exhausted" {
		t.Fatalf("BudgetExhausted() = %+v", res)
	}
}
