package users

import (
	"slices"

	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID           string   `json:"id,omitempty"`       // Unique identifier for the user, used as the token subject
	Username     string   `json:"username,omitempty"` // Unique login name
	PasswordHash string   `json:"-"`                  // Hashed version of the user's password - never serialize
	Email        string   `json:"email,omitempty"`
	Name         string   `json:"name,omitempty"`
	Scopes       []string `json:"scopes,omitempty"` // Scopes granted to any token issued for this user
	Blocked      bool     `json:"blocked,omitempty"`
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// CheckPassword checks a plain password against the user's stored hash
func (u *User) CheckPassword(password string) bool {
	return CheckPasswordHash(password, u.PasswordHash)
}

func (u *User) HasScope(scope string) bool {
	return slices.Contains(u.Scopes, scope)
}

func (u *User) clone() *User {
	c := *u
	c.Scopes = slices.Clone(u.Scopes)
	return &c
}
