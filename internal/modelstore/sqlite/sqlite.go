package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	// register sqlite driver
	_ "modernc.org/sqlite"

	"github.com/soullink/fay-gateway/internal/modelstore"
	"github.com/soullink/fay-gateway/internal/stream"
)

// Store implements modelstore.Store backed by SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ modelstore.Store = (*Store)(nil)

// New opens (or creates) a SQLite store at the given path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create model directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	s := &Store{db: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS models (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	model_id TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	attribute_json TEXT NOT NULL DEFAULT '{}',
	creator_username TEXT,
	is_global INTEGER NOT NULL DEFAULT 0,
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	model3d_url TEXT NOT NULL DEFAULT '',
	idle_model_url TEXT NOT NULL DEFAULT '',
	talking_model_url TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_models_creator ON models(creator_username);
CREATE INDEX IF NOT EXISTS idx_models_global ON models(is_global);
CREATE TABLE IF NOT EXISTS user_models (
	username TEXT PRIMARY KEY,
	model_id TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases underlying database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Create inserts p, assigning a model id when empty.
func (s *Store) Create(ctx context.Context, p modelstore.Profile) (modelstore.Profile, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return modelstore.Profile{}, errors.New("model name required")
	}
	if p.ModelID == "" {
		p.ModelID = uuid.NewString()
	}
	if p.Attributes == nil {
		p.Attributes = map[string]string{}
	}
	attrs, err := json.Marshal(p.Attributes)
	if err != nil {
		return modelstore.Profile{}, fmt.Errorf("encode attributes: %w", err)
	}
	now := s.now()
	p.CreatedAt, p.UpdatedAt, p.IsActive = now, now, true
	var creator sql.NullString
	if p.CreatorUsername != "" {
		creator = sql.NullString{String: p.CreatorUsername, Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO models(model_id, name, description, attribute_json, creator_username, is_global, is_active, created_at, updated_at, model3d_url, idle_model_url, talking_model_url)
VALUES(?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?, ?)`,
		p.ModelID, p.Name, p.Description, string(attrs), creator, boolInt(p.IsGlobal),
		now.UnixMilli(), now.UnixMilli(), p.Model3DURL, p.IdleModelURL, p.TalkingModelURL)
	if err != nil {
		return modelstore.Profile{}, fmt.Errorf("insert model: %w", err)
	}
	return p, nil
}

const selectColumns = `
SELECT model_id, name, description, attribute_json, creator_username, is_global, is_active,
	created_at, updated_at, model3d_url, idle_model_url, talking_model_url
FROM models`

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (modelstore.Profile, error) {
	var (
		p                  modelstore.Profile
		attrs              string
		creator            sql.NullString
		global, active     int
		createdAt, updated int64
	)
	if err := row.Scan(&p.ModelID, &p.Name, &p.Description, &attrs, &creator, &global, &active,
		&createdAt, &updated, &p.Model3DURL, &p.IdleModelURL, &p.TalkingModelURL); err != nil {
		return modelstore.Profile{}, err
	}
	p.Attributes = map[string]string{}
	if err := json.Unmarshal([]byte(attrs), &p.Attributes); err != nil {
		return modelstore.Profile{}, fmt.Errorf("decode attributes of %s: %w", p.ModelID, err)
	}
	p.CreatorUsername = creator.String
	p.IsGlobal = global == 1
	p.IsActive = active == 1
	p.CreatedAt = time.UnixMilli(createdAt)
	p.UpdatedAt = time.UnixMilli(updated)
	return p, nil
}

// Get returns an active profile.
func (s *Store) Get(ctx context.Context, modelID string) (modelstore.Profile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx, selectColumns+` WHERE model_id = ? AND is_active = 1`, modelID))
	if errors.Is(err, sql.ErrNoRows) {
		return modelstore.Profile{}, modelstore.ErrNotFound
	}
	return p, err
}

// List returns active profiles visible under f.
func (s *Store) List(ctx context.Context, f modelstore.ListFilter) ([]modelstore.Profile, error) {
	var (
		q    string
		args []any
	)
	switch {
	case f.Username != "":
		q = selectColumns + `
WHERE is_active = 1 AND (creator_username = ? OR is_global = 1 OR (creator_username IS NULL AND is_global = 0))
ORDER BY is_global DESC, created_at DESC`
		args = append(args, f.Username)
	case f.IncludeGlobal:
		q = selectColumns + `
WHERE is_active = 1 AND (is_global = 1 OR creator_username IS NULL)
ORDER BY created_at DESC`
	default:
		q = selectColumns + `
WHERE is_active = 1
ORDER BY is_global DESC, created_at DESC`
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []modelstore.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Update applies the non-nil fields of u.
func (s *Store) Update(ctx context.Context, modelID string, u modelstore.Update) error {
	var (
		sets []string
		args []any
	)
	set := func(col string, v *string) {
		if v != nil {
			sets = append(sets, col+" = ?")
			args = append(args, *v)
		}
	}
	set("name", u.Name)
	set("description", u.Description)
	set("model3d_url", u.Model3DURL)
	set("idle_model_url", u.IdleModelURL)
	set("talking_model_url", u.TalkingModelURL)
	if u.Attributes != nil {
		attrs, err := json.Marshal(u.Attributes)
		if err != nil {
			return fmt.Errorf("encode attributes: %w", err)
		}
		sets = append(sets, "attribute_json = ?")
		args = append(args, string(attrs))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, s.now().UnixMilli(), modelID)

	res, err := s.db.ExecContext(ctx, `UPDATE models SET `+strings.Join(sets, ", ")+` WHERE model_id = ? AND is_active = 1`, args...)
	if err != nil {
		return fmt.Errorf("update model: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return modelstore.ErrNotFound
	}
	return nil
}

// Delete soft-deletes the profile.
func (s *Store) Delete(ctx context.Context, modelID string) (modelstore.Profile, error) {
	p, err := s.Get(ctx, modelID)
	if err != nil {
		return modelstore.Profile{}, err
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE models SET is_active = 0, updated_at = ? WHERE model_id = ?`, s.now().UnixMilli(), modelID); err != nil {
		return modelstore.Profile{}, fmt.Errorf("delete model: %w", err)
	}
	p.IsActive = false
	return p, nil
}

// Exists reports whether an active profile with modelID exists.
func (s *Store) Exists(ctx context.Context, modelID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM models WHERE model_id = ? AND is_active = 1`, modelID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// SelectModel records modelID as username's current persona.
func (s *Store) SelectModel(ctx context.Context, username, modelID string) error {
	ok, err := s.Exists(ctx, modelID)
	if err != nil {
		return err
	}
	if !ok {
		return modelstore.ErrNotFound
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO user_models(username, model_id, updated_at) VALUES(?, ?, ?)
ON CONFLICT(username) DO UPDATE SET model_id = excluded.model_id, updated_at = excluded.updated_at`,
		stream.NormalizeUsername(username), modelID, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("select model: %w", err)
	}
	return nil
}

// SelectedModel returns username's current persona, ignoring deleted ones.
func (s *Store) SelectedModel(ctx context.Context, username string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
SELECT u.model_id FROM user_models u
JOIN models m ON m.model_id = u.model_id AND m.is_active = 1
WHERE u.username = ?`, stream.NormalizeUsername(username)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}
