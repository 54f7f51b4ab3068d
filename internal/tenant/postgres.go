package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore resolves tenant snapshots from the administration
// surface's database (owned by a collaborator outside this module's
// scope; this store only reads the tables it needs).
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			tenant_id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			industry TEXT NOT NULL DEFAULT '',
			language TEXT NOT NULL DEFAULT 'en',
			tone TEXT NOT NULL DEFAULT '',
			dialed_number TEXT NOT NULL DEFAULT '',
			greeting_text TEXT NOT NULL DEFAULT '',
			greeting_audio_ref TEXT NOT NULL DEFAULT '',
			voice_provider TEXT NOT NULL DEFAULT 'mock',
			voice_id TEXT NOT NULL DEFAULT 'default',
			voice_sample_rate INT NOT NULL DEFAULT 8000,
			system_prompt_vars JSONB NOT NULL DEFAULT '{}',
			max_tool_calls_per_turn INT NOT NULL DEFAULT 2,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tenants_dialed_number ON tenants (dialed_number);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) ByTenantID(ctx context.Context, tenantID string) (Snapshot, bool, error) {
	row := s.pool.QueryRow(ctx, selectTenantSQL+" WHERE tenant_id = $1", tenantID)
	return scanSnapshot(row)
}

func (s *PostgresStore) ByDialedNumber(ctx context.Context, number string) (Snapshot, bool, error) {
	row := s.pool.QueryRow(ctx, selectTenantSQL+" WHERE dialed_number = $1", number)
	return scanSnapshot(row)
}

const selectTenantSQL = `SELECT tenant_id, display_name, industry, language, tone, dialed_number,
	greeting_text, greeting_audio_ref, voice_provider, voice_id, voice_sample_rate,
	system_prompt_vars, max_tool_calls_per_turn FROM tenants`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (Snapshot, bool, error) {
	var (
		snap       Snapshot
		promptVars []byte
	)
	err := row.Scan(
		&snap.TenantID, &snap.DisplayName, &snap.Industry, &snap.Language, &snap.Tone,
		&snap.DialedNumber, &snap.GreetingText, &snap.GreetingAudioRef,
		&snap.Voice.Provider, &snap.Voice.VoiceID, &snap.Voice.SampleRate,
		&promptVars, &snap.ToolLimits.MaxToolCallsPerTurn,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("scan tenant row: %w", err)
	}

	snap.SystemPromptVars = map[string]string{}
	if len(promptVars) > 0 {
		if err := json.Unmarshal(promptVars, &snap.SystemPromptVars); err != nil {
			return Snapshot{}, false, fmt.Errorf("decode system_prompt_vars: %w", err)
		}
	}
	snap.ToolLimits.PerToolTimeout = 400 * time.Millisecond
	snap.ToolLimits.TotalToolTimeout = time.Second
	return snap, true, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
