package tools

import "context"

// Booking is a single appointment record.
type Booking struct {
	ID            string
	CustomerName  string
	CustomerPhone string
	ServiceName   string
	StartsAt      string
	Status        string
}

// Service describes one bookable offering.
type Service struct {
	Name        string
	DurationMin int
	PriceCents  int
}

// WorkingHours describes one business's open hours, keyed by weekday name.
type WorkingHours struct {
	ByDay map[string]string
}

// Policy is a tenant's documented answer for one topic (cancellation,
// refunds, late arrival, and similar).
type Policy struct {
	Topic string
	Body  string
}

// FAQ is a tenant's documented answer for one frequently asked question
// topic.
type FAQ struct {
	Topic string
	Body  string
}

// Store is the tenant-scoped read-only data surface the tool handlers
// dispatch against. Every method is scoped to the tenant id it is given;
// an implementation must never let one tenant's call read another's data.
type Store interface {
	LatestBooking(ctx context.Context, tenantID, customerPhone string) (Booking, bool, error)
	BookingByID(ctx context.Context, tenantID, bookingID string) (Booking, bool, error)
	BusinessServices(ctx context.Context, tenantID string) ([]Service, error)
	WorkingHours(ctx context.Context, tenantID string) (WorkingHours, error)
	Policies(ctx context.Context, tenantID, topic string) (Policy, bool, error)
	FAQs(ctx context.Context, tenantID, topic string) (FAQ, bool, error)
}
