package postgres

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/soullink/fay-gateway/internal/content/sqlstore"
)

// Store implements content.Store backed by PostgreSQL.
type Store struct {
	*sqlstore.Store
}

// Pool holds connection pool settings. Zero values keep database/sql defaults.
type Pool struct {
	MaxOpen         int
	MaxIdle         int
	LifetimeMinutes int
	IdleTimeMinutes int
}

// New opens a PostgreSQL-backed content store using the provided DSN.
func New(dsn string, pool Pool) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	if pool.MaxOpen > 0 {
		db.SetMaxOpenConns(pool.MaxOpen)
	}
	if pool.MaxIdle > 0 {
		db.SetMaxIdleConns(pool.MaxIdle)
	}
	if pool.LifetimeMinutes > 0 {
		db.SetConnMaxLifetime(time.Duration(pool.LifetimeMinutes) * time.Minute)
	}
	if pool.IdleTimeMinutes > 0 {
		db.SetConnMaxIdleTime(time.Duration(pool.IdleTimeMinutes) * time.Minute)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: sqlstore.New(db, sqlstore.Dollar)}, nil
}

func initSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id BIGSERIAL PRIMARY KEY,
	type TEXT NOT NULL CHECK(type IN ('member','fay')),
	way TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	created_at BIGINT NOT NULL,
	username TEXT NOT NULL DEFAULT 'User',
	model_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_messages_model ON messages(model_id);
CREATE INDEX IF NOT EXISTS idx_messages_username_model ON messages(username, model_id);
CREATE TABLE IF NOT EXISTS adopted (
	id BIGSERIAL PRIMARY KEY,
	message_id BIGINT NOT NULL UNIQUE REFERENCES messages(id),
	adopted_at BIGINT NOT NULL
);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
