package users

import "fmt"

// DemoAccount is a login seeded into development issuers
type DemoAccount struct {
	Username string
	Password string
	Email    string
	Name     string
	Scopes   []string
}

var DemoAccounts = []DemoAccount{
	{
		Username: "admin_user",
		Password: "admin_pass",
		Email:    "admin@example.com",
		Name:     "Admin User",
		Scopes:   []string{"assets:read", "risk:analyze", "investments:write"},
	},
	{
		Username: "limited_user",
		Password: "limited_pass",
		Email:    "limited@example.com",
		Name:     "Limited User",
		Scopes:   []string{"assets:read"},
	},
}

// Seed hashes and stores each account. The username doubles as the user id.
func Seed(repo UserRepo, accounts []DemoAccount) error {
	for _, account := range accounts {
		hash, err := HashPassword(account.Password)
		if err != nil {
			return fmt.Errorf("failed to hash password for %s: %w", account.Username, err)
		}
		if err := repo.Upsert(&User{
			ID:           account.Username,
			Username:     account.Username,
			PasswordHash: hash,
			Email:        account.Email,
			Name:         account.Name,
			Scopes:       account.Scopes,
		}); err != nil {
			return err
		}
	}
	return nil
}
