// Package content records the conversation between users and the digital
// human, together with which replies an operator adopted as canonical answers.
package content

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a message id does not exist.
	ErrNotFound = errors.New("content: message not found")
	// ErrAlreadyAdopted is returned when a message was adopted before.
	ErrAlreadyAdopted = errors.New("content: message already adopted")
	// ErrInvalidQuery is returned for an unknown list order.
	ErrInvalidQuery = errors.New("content: invalid query")
)

// Message authors.
const (
	TypeMember = "member"
	TypeFay    = "fay"
)

// Message ways. Any other string is accepted and stored verbatim.
const (
	WaySpeak    = "speak"
	WayAppended = "appended"
	WayAll      = "all"
	// WayNotAppended lists every way except WayAppended.
	WayNotAppended = "notappended"
)

// DefaultRecentLimit bounds RecentByUser when no limit is given.
const DefaultRecentLimit = 30

// DefaultListLimit bounds List when no limit is given.
const DefaultListLimit = 1000

// Message is one persisted conversation line.
type Message struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Way       string    `json:"way"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Username  string    `json:"username"`
	ModelID   string    `json:"model_id,omitempty"`
	IsAdopted bool      `json:"is_adopted"`
}

// ListQuery filters List.
type ListQuery struct {
	Way      string
	Order    string
	Limit    int
	Username string
	ModelID  string
}

// Normalize fills defaults and validates the order.
func (q ListQuery) Normalize() (ListQuery, error) {
	q.Way = strings.TrimSpace(q.Way)
	if q.Way == "" {
		q.Way = WayAll
	}
	switch strings.ToLower(strings.TrimSpace(q.Order)) {
	case "", "desc":
		q.Order = "DESC"
	case "asc":
		q.Order = "ASC"
	default:
		return q, ErrInvalidQuery
	}
	if q.Limit <= 0 {
		q.Limit = DefaultListLimit
	}
	return q, nil
}

// Store persists messages and adoptions.
type Store interface {
	AddMessage(ctx context.Context, m Message) (int64, error)
	GetContentByID(ctx context.Context, id int64) (Message, error)
	// PreviousUserMessage returns the latest member message of the same user
	// with an id below id.
	PreviousUserMessage(ctx context.Context, id int64) (Message, error)
	Adopt(ctx context.Context, id int64) error
	List(ctx context.Context, q ListQuery) ([]Message, error)
	// RecentByUser returns the newest limit messages of username in
	// ascending id order.
	RecentByUser(ctx context.Context, username string, limit int, modelID string) ([]Message, error)
	ClearModelHistory(ctx context.Context, modelID string) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}
