// Package modelstore keeps the digital human profiles users can talk to and
// which profile each user has selected.
package modelstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a profile does not exist or was deleted.
var ErrNotFound = errors.New("modelstore: model not found")

// Profile is one persona with its 3D assets.
type Profile struct {
	ModelID         string            `json:"model_id"`
	Name            string            `json:"name"`
	Description     string            `json:"description"`
	Attributes      map[string]string `json:"attributes"`
	CreatorUsername string            `json:"creator_username,omitempty"`
	IsGlobal        bool              `json:"is_global"`
	IsActive        bool              `json:"is_active"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	Model3DURL      string            `json:"model3d_url,omitempty"`
	IdleModelURL    string            `json:"idle_model_url,omitempty"`
	TalkingModelURL string            `json:"talking_model_url,omitempty"`
}

// AssetURLs lists the non-empty asset URLs of p.
func (p Profile) AssetURLs() []string {
	var out []string
	for _, u := range []string{p.Model3DURL, p.IdleModelURL, p.TalkingModelURL} {
		if u != "" {
			out = append(out, u)
		}
	}
	return out
}

// Update carries a partial profile change. Nil fields are left untouched.
type Update struct {
	Name            *string
	Description     *string
	Attributes      map[string]string
	Model3DURL      *string
	IdleModelURL    *string
	TalkingModelURL *string
}

// ListFilter narrows List.
//
// With a Username, the user's own profiles, global profiles, and legacy
// ownerless profiles are returned. Without one, IncludeGlobal restricts the
// result to global and ownerless profiles; otherwise every active profile is
// returned.
type ListFilter struct {
	Username      string
	IncludeGlobal bool
}

// Store persists profiles and per-user selection.
type Store interface {
	Create(ctx context.Context, p Profile) (Profile, error)
	Get(ctx context.Context, modelID string) (Profile, error)
	List(ctx context.Context, f ListFilter) ([]Profile, error)
	Update(ctx context.Context, modelID string, u Update) error
	// Delete deactivates the profile and returns it so asset files can be
	// removed.
	Delete(ctx context.Context, modelID string) (Profile, error)
	Exists(ctx context.Context, modelID string) (bool, error)
	SelectModel(ctx context.Context, username, modelID string) error
	// SelectedModel returns "" when username has not selected a model.
	SelectedModel(ctx context.Context, username string) (string, error)
	Ping(ctx context.Context) error
	Close() error
}
