package scratchpad

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS investigation_sections (
	investigation_id TEXT        NOT NULL,
	section          TEXT        NOT NULL,
	payload          JSONB       NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (investigation_id, section)
)`

const selectSectionSQL = `
	SELECT payload
	FROM investigation_sections
	WHERE investigation_id = $1 AND section = $2
`

const upsertSectionSQL = `
	INSERT INTO investigation_sections (investigation_id, section, payload, updated_at)
	VALUES ($1, $2, $3, NOW())
	ON CONFLICT (investigation_id, section)
	DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at
`

const deleteSectionSQL = `
	DELETE FROM investigation_sections
	WHERE investigation_id = $1 AND section = $2
`

// querier is the subset of pgxpool.Pool used by the store.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists sections as JSONB rows keyed by investigation and section.
type PostgresStore struct {
	db      querier
	pool    *pgxpool.Pool
	logger  *zap.Logger
	timeout time.Duration
}

// NewPostgresStore connects to PostgreSQL and ensures the section table exists.
func NewPostgresStore(ctx context.Context, dsn string, maxConns int32, logger *zap.Logger) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection URL: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = time.Minute
	config.ConnConfig.ConnectTimeout = 10 * time.Second

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := newPostgresStore(pool, logger)
	store.pool = pool
	if err := store.EnsureSchema(connectCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func newPostgresStore(db querier, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{db: db, logger: logger, timeout: 5 * time.Second}
}

// EnsureSchema creates the section table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create investigation_sections: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Health pings the database.
func (s *PostgresStore) Health(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Pad returns the scratchpad for an investigation.
func (s *PostgresStore) Pad(investigationID string) Scratchpad {
	return &postgresPad{store: s, id: investigationID}
}

type postgresPad struct {
	store *PostgresStore
	id    string
}

func (p *postgresPad) ReadSection(ctx context.Context, section Section) (json.RawMessage, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.store.timeout)
	defer cancel()

	var payload []byte
	err := p.store.db.QueryRow(ctx, selectSectionSQL, p.id, string(section)).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read section %s: %w", section, err)
	}
	return json.RawMessage(payload), true, nil
}

func (p *postgresPad) WriteSection(ctx context.Context, section Section, payload json.RawMessage) error {
	if !section.Valid() {
		return fmt.Errorf("unknown section %q", section)
	}
	ctx, cancel := context.WithTimeout(ctx, p.store.timeout)
	defer cancel()

	if _, err := p.store.db.Exec(ctx, upsertSectionSQL, p.id, string(section), []byte(payload)); err != nil {
		return fmt.Errorf("failed to write section %s: %w", section, err)
	}
	p.store.logger.Debug("section written",
		zap.String("investigation_id", p.id),
		zap.String("section", string(section)),
		zap.Int("bytes", len(payload)),
	)
	return nil
}

func (p *postgresPad) DeleteSection(ctx context.Context, section Section) error {
	ctx, cancel := context.WithTimeout(ctx, p.store.timeout)
	defer cancel()

	if _, err := p.store.db.Exec(ctx, deleteSectionSQL, p.id, string(section)); err != nil {
		return fmt.Errorf("failed to delete section %s: %w", section, err)
	}
	return nil
}
