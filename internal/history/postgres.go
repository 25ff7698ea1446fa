package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roundone/Psych/internal/transcript"
)

// defaultHistoryKey identifies the single conversation record. Multiple
// Psych instances can share a database by configuring distinct keys.
const defaultHistoryKey = "chat_history"

// schema creates the history table. JSONB keeps the record queryable from
// psql without committing to a relational message layout.
const schema = `
CREATE TABLE IF NOT EXISTS chat_history (
    key        TEXT PRIMARY KEY,
    messages   JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Compile-time assertion that Postgres implements transcript.Store.
var _ transcript.Store = (*Postgres)(nil)

// PostgresOption is a functional option for configuring a Postgres store.
type PostgresOption func(*Postgres)

// WithKey overrides the record key under which the conversation is stored.
// Defaults to "chat_history".
func WithKey(key string) PostgresOption {
	return func(p *Postgres) {
		if key != "" {
			p.key = key
		}
	}
}

// Postgres persists the conversation as a single JSONB row.
// All operations are safe for concurrent use.
type Postgres struct {
	pool *pgxpool.Pool
	key  string
}

// NewPostgres creates a Postgres-backed store, establishes a connection pool
// to the database at dsn, and ensures the history table exists.
func NewPostgres(ctx context.Context, dsn string, opts ...PostgresOption) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("history: dsn must not be empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("history: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: ensure schema: %w", err)
	}

	p := &Postgres{pool: pool, key: defaultHistoryKey}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Load implements [transcript.Store]. A missing row yields an empty
// conversation; a row whose JSONB does not decode is discarded with a warning.
func (p *Postgres) Load(ctx context.Context) ([]transcript.Message, error) {
	var data []byte
	err := p.pool.QueryRow(ctx,
		`SELECT messages FROM chat_history WHERE key = $1`, p.key,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("history: load: %w", err)
	}

	var messages []transcript.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		slog.Warn("history: discarding corrupt history record",
			"key", p.key,
			"error", err,
		)
		return nil, nil
	}
	return messages, nil
}

// Save implements [transcript.Store].
func (p *Postgres) Save(ctx context.Context, messages []transcript.Message) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("history: encode messages: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO chat_history (key, messages, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key)
		DO UPDATE SET messages = EXCLUDED.messages, updated_at = now()
	`, p.key, data)
	if err != nil {
		return fmt.Errorf("history: save: %w", err)
	}
	return nil
}

// Clear implements [transcript.Store]. Deleting a row that does not exist is
// not an error.
func (p *Postgres) Clear(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx,
		`DELETE FROM chat_history WHERE key = $1`, p.key,
	); err != nil {
		return fmt.Errorf("history: clear: %w", err)
	}
	return nil
}

// Close releases all connections held by the underlying pool.
func (p *Postgres) Close() {
	p.pool.Close()
}
