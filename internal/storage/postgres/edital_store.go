// Package postgres provides the Postgres-backed edital Recorder.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/edital-crawler/internal/edital"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultTable holds one row per (instituicao, especialidade).
const DefaultTable = "editais"

// Config controls the Postgres connection pool used for edital rows.
type Config struct {
	DSN             string
	Password        string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	ConnectAttempts uint
	ConnectDelay    time.Duration
	OpTimeout       time.Duration
}

type pool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

// EditalStore upserts records with a check-then-write on the natural key.
// The check is advisory: two concurrent writers may both insert.
type EditalStore struct {
	pool      pool
	table     string
	ids       edital.IDGenerator
	clock     edital.Clock
	opTimeout time.Duration
	logger    *zap.Logger
}

// Option customizes an EditalStore.
type Option func(*EditalStore)

// WithLogger sets the store logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *EditalStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithOpTimeout bounds each Upsert.
func WithOpTimeout(d time.Duration) Option {
	return func(s *EditalStore) {
		s.opTimeout = d
	}
}

// NewEditalStore connects to Postgres and verifies the connection, retrying
// the ping a bounded number of times.
func NewEditalStore(ctx context.Context, cfg Config, ids edital.IDGenerator, clock edital.Clock, opts ...Option) (*EditalStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.Password != "" {
		poolCfg.ConnConfig.Password = cfg.Password
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := ping(ctx, p, cfg.ConnectAttempts, cfg.ConnectDelay); err != nil {
		p.Close()
		return nil, err
	}
	store, err := NewEditalStoreWithPool(p, cfg.Table, ids, clock, opts...)
	if err != nil {
		p.Close()
		return nil, err
	}
	if cfg.OpTimeout > 0 {
		store.opTimeout = cfg.OpTimeout
	}
	return store, nil
}

// NewEditalStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewEditalStoreWithPool(p pool, table string, ids edital.IDGenerator, clock edital.Clock, opts ...Option) (*EditalStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	s := &EditalStore{
		pool:      p,
		table:     table,
		ids:       ids,
		clock:     clock,
		opTimeout: 10 * time.Second,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func ping(ctx context.Context, p pool, attempts uint, delay time.Duration) error {
	if attempts == 0 {
		attempts = 5
	}
	if delay <= 0 {
		delay = time.Second
	}
	err := retry.Do(
		func() error {
			return p.Ping(ctx)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *EditalStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *EditalStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the edital table and its lookup index if missing.
func (s *EditalStore) EnsureSchema(ctx context.Context) error {
	create := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	instituicao TEXT NOT NULL,
	especialidade TEXT NOT NULL,
	estado TEXT,
	cidade TEXT,
	vagas INTEGER,
	inicio_inscricao DATE,
	fim_inscricao DATE,
	data_prova DATE,
	taxa NUMERIC(10,2),
	link TEXT,
	previsto BOOLEAN NOT NULL DEFAULT TRUE,
	updated_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, create); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	index := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s_natural_key_idx ON %s (instituicao, especialidade)`,
		s.table, s.table)
	if _, err := s.pool.Exec(ctx, index); err != nil {
		return fmt.Errorf("create natural key index on %s: %w", s.table, err)
	}
	return nil
}

// Upsert updates the row matching the record's natural key, or inserts a new one.
func (s *EditalStore) Upsert(ctx context.Context, rec edital.Record) (edital.UpsertResult, error) {
	key := rec.Key()
	if key.Institution == "" || key.Specialty == "" {
		return edital.UpsertResult{}, &edital.StoreError{Op: "validate", Key: key, Err: errors.New("natural key is blank")}
	}
	if s.opTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opTimeout)
		defer cancel()
	}

	var id string
	selectSQL := fmt.Sprintf(`SELECT id FROM %s WHERE instituicao = $1 AND especialidade = $2 LIMIT 1`, s.table)
	err := s.pool.QueryRow(ctx, selectSQL, key.Institution, key.Specialty).Scan(&id)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return s.insert(ctx, key, rec)
	case err != nil:
		return edital.UpsertResult{}, &edital.StoreError{Op: "select", Key: key, Err: err}
	}
	return s.update(ctx, id, key, rec)
}

func (s *EditalStore) insert(ctx context.Context, key edital.NaturalKey, rec edital.Record) (edital.UpsertResult, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return edital.UpsertResult{}, &edital.StoreError{Op: "insert", Key: key, Err: err}
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	instituicao,
	especialidade,
	estado,
	cidade,
	vagas,
	inicio_inscricao,
	fim_inscricao,
	data_prova,
	taxa,
	link,
	previsto,
	updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)`, s.table)
	args := append([]any{id, key.Institution, key.Specialty}, s.columns(rec)...)
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return edital.UpsertResult{}, &edital.StoreError{Op: "insert", Key: key, Err: err}
	}
	s.logger.Info("edital inserted", zap.String("id", id), zap.Stringer("key", key))
	return edital.UpsertResult{ID: id, Op: edital.OpInserted}, nil
}

func (s *EditalStore) update(ctx context.Context, id string, key edital.NaturalKey, rec edital.Record) (edital.UpsertResult, error) {
	query := fmt.Sprintf(`
UPDATE %s SET
	estado = $2,
	cidade = $3,
	vagas = $4,
	inicio_inscricao = $5,
	fim_inscricao = $6,
	data_prova = $7,
	taxa = $8,
	link = $9,
	previsto = $10,
	updated_at = $11
WHERE id = $1`, s.table)
	args := append([]any{id}, s.columns(rec)...)
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return edital.UpsertResult{}, &edital.StoreError{Op: "update", Key: key, Err: err}
	}
	if tag.RowsAffected() == 0 {
		return edital.UpsertResult{}, &edital.StoreError{Op: "update", Key: key, Err: fmt.Errorf("row %s vanished", id)}
	}
	s.logger.Info("edital updated", zap.String("id", id), zap.Stringer("key", key))
	return edital.UpsertResult{ID: id, Op: edital.OpUpdated}, nil
}

// columns returns the non-key column values shared by insert and update.
func (s *EditalStore) columns(rec edital.Record) []any {
	return []any{
		rec.State,
		rec.City,
		rec.Vacancies,
		dateArg(rec.RegistrationOpen),
		dateArg(rec.RegistrationClose),
		dateArg(rec.ExamDate),
		rec.Fee,
		rec.Link,
		rec.Projected,
		s.clock.Now(),
	}
}

func dateArg(d *edital.Date) any {
	if d == nil {
		return nil
	}
	return d.Time
}
