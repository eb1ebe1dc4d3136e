package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	// register sqlite driver
	_ "modernc.org/sqlite"

	"github.com/soullink/fay-gateway/internal/content/sqlstore"
)

// Store implements content.Store backed by SQLite.
type Store struct {
	*sqlstore.Store
}

// New opens (or creates) a SQLite store at the given path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create content directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: sqlstore.New(db, sqlstore.Question)}, nil
}

func initSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	type TEXT NOT NULL CHECK(type IN ('member','fay')),
	way TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	username TEXT NOT NULL DEFAULT 'User',
	model_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_messages_model ON messages(model_id);
CREATE INDEX IF NOT EXISTS idx_messages_username_model ON messages(username, model_id);
CREATE TABLE IF NOT EXISTS adopted (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id INTEGER NOT NULL UNIQUE REFERENCES messages(id),
	adopted_at INTEGER NOT NULL
);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
