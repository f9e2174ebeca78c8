package clients

import (
	"crypto/subtle"
	"slices"
	"strings"

	"github.com/jrsteele09/go-token-broker/internal/errors"
)

type ClientType string

const (
	ClientTypeConfidential ClientType = "confidential" // Can keep secrets (server-side apps)
	ClientTypePublic       ClientType = "public"       // Cannot keep secrets
)

type Client struct {
	ID          string     `json:"id"`
	Type        ClientType `json:"type"` // public or confidential
	Description string     `json:"description"`
	Secret      string     `json:"secret"`
	Scopes      []string   `json:"scopes"` // Allowed scopes for this client, empty allows any
}

// IsPublic returns true if the client is a public client
func (c *Client) IsPublic() bool {
	return c.Type == ClientTypePublic
}

// Authenticate checks the presented secret. Public clients never need one.
func (c *Client) Authenticate(secret string) error {
	if c.IsPublic() && secret == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(c.Secret), []byte(secret)) != 1 {
		return errors.ErrInvalidClient
	}
	return nil
}

// HasScope checks if the client has permission for a specific scope
func (c *Client) HasScope(scope string) bool {
	return len(c.Scopes) == 0 || slices.Contains(c.Scopes, scope)
}

// FilterScopes keeps the requested scopes this client may carry, in order
func (c *Client) FilterScopes(requested []string) []string {
	allowed := make([]string, 0, len(requested))
	for _, s := range requested {
		if c.HasScope(s) {
			allowed = append(allowed, s)
		}
	}
	return allowed
}

// ValidateScopes checks if all requested space separated scopes are allowed for this client
func (c *Client) ValidateScopes(requestedScopes string) error {
	for _, scope := range strings.Fields(requestedScopes) {
		if !c.HasScope(scope) {
			return errors.ErrInvalidScope
		}
	}
	return nil
}

func (c *Client) clone() *Client {
	cp := *c
	cp.Scopes = slices.Clone(c.Scopes)
	return &cp
}
