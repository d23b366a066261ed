// Package models holds the records persisted by the account store.
package models

// Account is a registered user. Email is the unique key; PasswordHash is an
// encoded hash and never plaintext. ActiveToken is empty when no session is
// active.
type Account struct {
	Email        string `json:"email"`
	PasswordHash []byte `json:"password_hash"`
	ActiveToken  string `json:"active_token,omitempty"`
}

// HasSession reports whether a token is currently stored for the account.
func (a *Account) HasSession() bool {
	return a != nil && a.ActiveToken != ""
}
