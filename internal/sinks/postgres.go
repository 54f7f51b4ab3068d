package sinks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink writes confirmed bookings to the same administration
// database the tenant store reads from. It implements BookingSink; a
// call's SMS confirmation goes out over a separate SMSSink, since the two
// external systems fail independently.
type PostgresSink struct {
	pool *pgxpool.Pool
}

func NewPostgresSink(ctx context.Context, databaseURL string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initBookingSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresSink{pool: pool}, nil
}

func initBookingSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			call_id TEXT NOT NULL,
			customer_name TEXT NOT NULL DEFAULT '',
			customer_phone TEXT NOT NULL DEFAULT '',
			service_name TEXT NOT NULL DEFAULT '',
			starts_at TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'confirmed',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_tenant_created ON bookings (tenant_id, created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresSink) CreateBooking(ctx context.Context, b Booking) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO bookings (id, tenant_id, call_id, customer_name, customer_phone, service_name, starts_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.NewString(), b.TenantID, b.CallID, b.CustomerName, b.CustomerPhone, b.ServiceName, b.StartsAt,
	)
	if err != nil {
		return fmt.Errorf("create booking: %w", err)
	}
	return nil
}

func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}

// NoopSMSSink is the SMS sink used when no SMS gateway URL is
// configured: it records nothing and never fails, so a call without SMS
// integration still completes normally.
type NoopSMSSink struct{}

func (NoopSMSSink) SendSMS(context.Context, SMSMessage) error { return nil }

// NoopBookingSink is the booking sink used when no database is
// configured: bookings are simply not recorded.
type NoopBookingSink struct{}

func (NoopBookingSink) CreateBooking(context.Context, Booking) error { return nil }
