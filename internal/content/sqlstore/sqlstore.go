// Package sqlstore implements content.Store on database/sql. The sqlite and
// postgres packages open the connection and apply their schema; the queries
// here are written with ? placeholders and rebound per dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/soullink/fay-gateway/internal/content"
	"github.com/soullink/fay-gateway/internal/stream"
)

// Dialect selects the placeholder style.
type Dialect int

const (
	// Question uses ? placeholders (sqlite).
	Question Dialect = iota
	// Dollar uses $1, $2 placeholders (postgres).
	Dollar
)

// Store is a content.Store over an open *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

var _ content.Store = (*Store)(nil)

// New wraps db. The schema must already exist.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect, now: time.Now}
}

// DB exposes the handle for dialect specific setup.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) bind(q string) string {
	if s.dialect != Dollar {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// AddMessage inserts m and returns its id.
func (s *Store) AddMessage(ctx context.Context, m content.Message) (int64, error) {
	if m.Type != content.TypeMember && m.Type != content.TypeFay {
		return 0, fmt.Errorf("invalid message type %q", m.Type)
	}
	created := m.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	username := stream.NormalizeUsername(m.Username)
	q := `INSERT INTO messages(type, way, content, created_at, username, model_id) VALUES(?, ?, ?, ?, ?, ?)`
	args := []any{m.Type, m.Way, m.Content, created.UnixMilli(), username, nullable(m.ModelID)}
	if s.dialect == Dollar {
		var id int64
		if err := s.db.QueryRowContext(ctx, s.bind(q)+` RETURNING id`, args...).Scan(&id); err != nil {
			return 0, fmt.Errorf("insert message: %w", err)
		}
		return id, nil
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	return res.LastInsertId()
}

const selectColumns = `
SELECT m.id, m.type, m.way, m.content, m.created_at, m.username, m.model_id,
	CASE WHEN a.message_id IS NULL THEN 0 ELSE 1 END
FROM messages m
LEFT JOIN adopted a ON a.message_id = m.id`

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (content.Message, error) {
	var (
		m       content.Message
		created int64
		modelID sql.NullString
		adopted int
	)
	if err := row.Scan(&m.ID, &m.Type, &m.Way, &m.Content, &created, &m.Username, &modelID, &adopted); err != nil {
		return content.Message{}, err
	}
	m.CreatedAt = time.UnixMilli(created)
	m.ModelID = modelID.String
	m.IsAdopted = adopted == 1
	return m, nil
}

func (s *Store) queryOne(ctx context.Context, q string, args ...any) (content.Message, error) {
	m, err := scanMessage(s.db.QueryRowContext(ctx, s.bind(q), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return content.Message{}, content.ErrNotFound
	}
	return m, err
}

func (s *Store) queryMany(ctx context.Context, q string, args ...any) ([]content.Message, error) {
	rows, err := s.db.QueryContext(ctx, s.bind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []content.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetContentByID returns message id or content.ErrNotFound.
func (s *Store) GetContentByID(ctx context.Context, id int64) (content.Message, error) {
	return s.queryOne(ctx, selectColumns+` WHERE m.id = ?`, id)
}

// PreviousUserMessage returns the member message that prompted id.
func (s *Store) PreviousUserMessage(ctx context.Context, id int64) (content.Message, error) {
	ref, err := s.GetContentByID(ctx, id)
	if err != nil {
		return content.Message{}, err
	}
	return s.queryOne(ctx, selectColumns+`
WHERE m.id < ? AND m.type = ? AND m.username = ?
ORDER BY m.id DESC
LIMIT 1`, id, content.TypeMember, ref.Username)
}

// Adopt marks message id as adopted.
func (s *Store) Adopt(ctx context.Context, id int64) error {
	var one int
	err := s.db.QueryRowContext(ctx, s.bind(`SELECT 1 FROM messages WHERE id = ?`), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return content.ErrNotFound
	}
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.bind(`
INSERT INTO adopted(message_id, adopted_at) VALUES(?, ?)
ON CONFLICT(message_id) DO NOTHING`), id, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("adopt message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return content.ErrAlreadyAdopted
	}
	return nil
}

// List returns messages matching q.
func (s *Store) List(ctx context.Context, q content.ListQuery) ([]content.Message, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}
	var (
		where []string
		args  []any
	)
	switch q.Way {
	case content.WayAll:
	case content.WayNotAppended:
		where = append(where, "m.way != ?")
		args = append(args, content.WayAppended)
	default:
		where = append(where, "m.way = ?")
		args = append(args, q.Way)
	}
	if q.Username != "" {
		where = append(where, "m.username = ?")
		args = append(args, q.Username)
	}
	if q.ModelID != "" {
		where = append(where, "m.model_id = ?")
		args = append(args, q.ModelID)
	}
	stmt := selectColumns
	if len(where) > 0 {
		stmt += "\nWHERE " + strings.Join(where, " AND ")
	}
	// q.Order is one of ASC or DESC after Normalize.
	stmt += "\nORDER BY m.id " + q.Order + "\nLIMIT ?"
	args = append(args, q.Limit)
	return s.queryMany(ctx, stmt, args...)
}

// RecentByUser returns the conversation tail for username.
func (s *Store) RecentByUser(ctx context.Context, username string, limit int, modelID string) ([]content.Message, error) {
	if limit <= 0 {
		limit = content.DefaultRecentLimit
	}
	msgs, err := s.List(ctx, content.ListQuery{
		Way:      content.WayAll,
		Order:    "desc",
		Limit:    limit,
		Username: stream.NormalizeUsername(username),
		ModelID:  modelID,
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// ClearModelHistory deletes every message recorded against modelID.
func (s *Store) ClearModelHistory(ctx context.Context, modelID string) (int64, error) {
	if modelID == "" {
		return 0, errors.New("model id required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.bind(`
DELETE FROM adopted WHERE message_id IN (SELECT id FROM messages WHERE model_id = ?)`), modelID); err != nil {
		return 0, fmt.Errorf("clear adoptions: %w", err)
	}
	res, err := tx.ExecContext(ctx, s.bind(`DELETE FROM messages WHERE model_id = ?`), modelID)
	if err != nil {
		return 0, fmt.Errorf("clear messages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases underlying database resources.
func (s *Store) Close() error {
	return s.db.Close()
}
