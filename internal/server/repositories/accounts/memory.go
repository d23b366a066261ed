package accounts

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// MemoryRepository keeps accounts in process memory. It is used by the
// testing profile and by service tests.
type MemoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]models.Account
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{accounts: make(map[string]models.Account)}
}

var _ Repository = (*MemoryRepository)(nil)

func (r *MemoryRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[email]
	if !ok {
		return nil, nil
	}
	return clone(a), nil
}

func (r *MemoryRepository) FindByToken(ctx context.Context, token string) (*models.Account, error) {
	if token == "" {
		return nil, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	email, ok := r.emailByToken(token)
	if !ok {
		return nil, nil
	}
	return clone(r.accounts[email]), nil
}

func (r *MemoryRepository) Create(ctx context.Context, email string, passwordHash []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[email]; ok {
		return common.ErrDuplicateEmail
	}
	r.accounts[email] = models.Account{Email: email, PasswordHash: append([]byte(nil), passwordHash...)}
	return nil
}

func (r *MemoryRepository) SetToken(ctx context.Context, email, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[email]
	if !ok {
		return nil
	}
	a.ActiveToken = token
	r.accounts[email] = a
	return nil
}

func (r *MemoryRepository) SwapToken(ctx context.Context, email, expected, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[email]
	if !ok || a.ActiveToken != expected {
		return false, nil
	}
	a.ActiveToken = token
	r.accounts[email] = a
	return true, nil
}

func (r *MemoryRepository) RevokeToken(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	email, ok := r.emailByToken(token)
	if !ok {
		return false, nil
	}
	a := r.accounts[email]
	a.ActiveToken = ""
	r.accounts[email] = a
	return true, nil
}

func (r *MemoryRepository) DeleteByToken(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	email, ok := r.emailByToken(token)
	if !ok {
		return false, nil
	}
	delete(r.accounts, email)
	return true, nil
}

func (r *MemoryRepository) UpdatePasswordHash(ctx context.Context, email string, passwordHash []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[email]
	if !ok {
		return nil
	}
	a.PasswordHash = append([]byte(nil), passwordHash...)
	r.accounts[email] = a
	return nil
}

// emailByToken must be called with mu held.
func (r *MemoryRepository) emailByToken(token string) (string, bool) {
	for email, a := range r.accounts {
		if a.ActiveToken == token {
			return email, true
		}
	}
	return "", false
}

func clone(a models.Account) *models.Account {
	a.PasswordHash = append([]byte(nil), a.PasswordHash...)
	return &a
}
