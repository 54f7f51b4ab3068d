package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore reads the tenant-scoped catalogue (services, hours,
// policies, FAQs, bookings) the tool handlers dispatch against. It never
// writes; booking creation goes through internal/sinks instead.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initCatalogueSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initCatalogueSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tenant_services (
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			duration_min INT NOT NULL DEFAULT 0,
			price_cents INT NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS tenant_working_hours (
			tenant_id TEXT PRIMARY KEY,
			by_day JSONB NOT NULL DEFAULT '{}'
		);`,
		`CREATE TABLE IF NOT EXISTS tenant_policies (
			tenant_id TEXT NOT NULL,
			topic TEXT NOT NULL,
			body TEXT NOT NULL,
			PRIMARY KEY (tenant_id, topic)
		);`,
		`CREATE TABLE IF NOT EXISTS tenant_faqs (
			tenant_id TEXT NOT NULL,
			topic TEXT NOT NULL,
			body TEXT NOT NULL,
			PRIMARY KEY (tenant_id, topic)
		);`,
		// Shares the bookings table internal/sinks writes to; this store
		// only ever reads it.
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
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) LatestBooking(ctx context.Context, tenantID, customerPhone string) (Booking, bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, customer_name, customer_phone, service_name, starts_at, status FROM bookings
		 WHERE tenant_id = $1 AND customer_phone = $2 ORDER BY created_at DESC LIMIT 1`,
		tenantID, customerPhone,
	)
	return scanBooking(row)
}

func (s *PostgresStore) BookingByID(ctx context.Context, tenantID, bookingID string) (Booking, bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, customer_name, customer_phone, service_name, starts_at, status FROM bookings
		 WHERE tenant_id = $1 AND id = $2`,
		tenantID, bookingID,
	)
	return scanBooking(row)
}

func scanBooking(row pgx.Row) (Booking, bool, error) {
	var b Booking
	err := row.Scan(&b.ID, &b.CustomerName, &b.CustomerPhone, &b.ServiceName, &b.StartsAt, &b.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Booking{}, false, nil
		}
		return Booking{}, false, fmt.Errorf("scan booking row: %w", err)
	}
	return b, true, nil
}

func (s *PostgresStore) BusinessServices(ctx context.Context, tenantID string) ([]Service, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, duration_min, price_cents FROM tenant_services WHERE tenant_id = $1 ORDER BY name`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("query services: %w", err)
	}
	defer rows.Close()

	var services []Service
	for rows.Next() {
		var svc Service
		if err := rows.Scan(&svc.Name, &svc.DurationMin, &svc.PriceCents); err != nil {
			return nil, fmt.Errorf("scan service row: %w", err)
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate service rows: %w", err)
	}
	return services, nil
}

func (s *PostgresStore) WorkingHours(ctx context.Context, tenantID string) (WorkingHours, error) {
	row := s.pool.QueryRow(ctx, `SELECT by_day FROM tenant_working_hours WHERE tenant_id = $1`, tenantID)

	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WorkingHours{ByDay: map[string]string{}}, nil
		}
		return WorkingHours{}, fmt.Errorf("scan working hours: %w", err)
	}

	hours := WorkingHours{ByDay: map[string]string{}}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &hours.ByDay); err != nil {
			return WorkingHours{}, fmt.Errorf("decode working hours: %w", err)
		}
	}
	return hours, nil
}

func (s *PostgresStore) Policies(ctx context.Context, tenantID, topic string) (Policy, bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT topic, body FROM tenant_policies WHERE tenant_id = $1 AND topic = $2`,
		tenantID, topic,
	)
	var p Policy
	if err := row.Scan(&p.Topic, &p.Body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Policy{}, false, nil
		}
		return Policy{}, false, fmt.Errorf("scan policy row: %w", err)
	}
	return p, true, nil
}

func (s *PostgresStore) FAQs(ctx context.Context, tenantID, topic string) (FAQ, bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT topic, body FROM tenant_faqs WHERE tenant_id = $1 AND topic = $2`,
		tenantID, topic,
	)
	var f FAQ
	if err := row.Scan(&f.Topic, &f.Body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FAQ{}, false, nil
		}
		return FAQ{}, false, fmt.Errorf("scan faq row: %w", err)
	}
	return f, true, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
