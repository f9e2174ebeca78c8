// Package sessions keeps the broker's per-user token pairs behind opaque ids.
package sessions

import (
	"slices"
	"time"

	"github.com/jrsteele09/go-token-broker/internal/logging"
)

// Session binds an opaque id to a user's current token pair and granted scopes
type Session struct {
	ID                    string
	UserID                string
	Scopes                []string
	AccessToken           string
	AccessTokenExpiresAt  time.Time
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
	RefreshCount          int
	CreatedAt             time.Time
	LastRefreshedAt       time.Time // Zero until the first refresh
}

func (s Session) HasScope(scope string) bool {
	return slices.Contains(s.Scopes, scope)
}

func (s Session) clone() Session {
	s.Scopes = slices.Clone(s.Scopes)
	return s
}

// Info is the token-free view of a session returned to callers
type Info struct {
	SessionID                    string     `json:"session_id"`
	UserID                       string     `json:"user_id"`
	Scopes                       []string   `json:"scopes"`
	AccessTokenExpiresInSeconds  int        `json:"access_token_expires_in_seconds"`
	RefreshTokenExpiresInSeconds int        `json:"refresh_token_expires_in_seconds"`
	RefreshCount                 int        `json:"refresh_count"`
	CreatedAt                    time.Time  `json:"created_at"`
	LastRefreshedAt              *time.Time `json:"last_refreshed_at"`
}

// Info summarises the session at now. Expiries never go negative.
func (s Session) Info(now time.Time) Info {
	info := Info{
		SessionID:                    logging.ShortID(s.ID),
		UserID:                       s.UserID,
		Scopes:                       slices.Clone(s.Scopes),
		AccessTokenExpiresInSeconds:  remaining(now, s.AccessTokenExpiresAt),
		RefreshTokenExpiresInSeconds: remaining(now, s.RefreshTokenExpiresAt),
		RefreshCount:                 s.RefreshCount,
		CreatedAt:                    s.CreatedAt,
	}
	if !s.LastRefreshedAt.IsZero() {
		t := s.LastRefreshedAt
		info.LastRefreshedAt = &t
	}
	if info.Scopes == nil {
		info.Scopes = []string{}
	}
	return info
}

func remaining(now, t time.Time) int {
	d := t.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}
