package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"go.etcd.io/bbolt"
)

var (
	accountsBucket = []byte("accounts")
	tokensBucket   = []byte("tokens")
)

// BoltRepository stores accounts in an embedded bbolt file. Accounts are JSON
// records keyed by email; a second bucket maps each active token back to its
// email. Every mutation runs in a single read-write transaction, which bbolt
// serialises.
type BoltRepository struct {
	db *bbolt.DB
}

var _ Repository = (*BoltRepository)(nil)

// NewBoltRepository creates the buckets if needed.
func NewBoltRepository(db *bbolt.DB) (*BoltRepository, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{accountsBucket, tokensBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bolt error: %w", err)
	}
	return &BoltRepository{db: db}, nil
}

func (r *BoltRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account *models.Account
	err := r.db.View(func(tx *bbolt.Tx) error {
		var err error
		account, err = getAccount(tx, email)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("bolt error: %w", err)
	}
	return account, nil
}

func (r *BoltRepository) FindByToken(ctx context.Context, token string) (*models.Account, error) {
	if token == "" {
		return nil, nil
	}

	var account *models.Account
	err := r.db.View(func(tx *bbolt.Tx) error {
		email := tx.Bucket(tokensBucket).Get([]byte(token))
		if email == nil {
			return nil
		}
		var err error
		account, err = getAccount(tx, string(email))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("bolt error: %w", err)
	}
	return account, nil
}

func (r *BoltRepository) Create(ctx context.Context, email string, passwordHash []byte) error {
	err := r.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(accountsBucket).Get([]byte(email)) != nil {
			return common.ErrDuplicateEmail
		}
		return putAccount(tx, &models.Account{Email: email, PasswordHash: passwordHash})
	})
	if errors.Is(err, common.ErrDuplicateEmail) {
		return err
	}
	if err != nil {
		return fmt.Errorf("bolt error: %w", err)
	}
	return nil
}

func (r *BoltRepository) SetToken(ctx context.Context, email, token string) error {
	return r.update(func(tx *bbolt.Tx) error {
		account, err := getAccount(tx, email)
		if err != nil || account == nil {
			return err
		}
		return replaceToken(tx, account, token)
	})
}

func (r *BoltRepository) SwapToken(ctx context.Context, email, expected, token string) (bool, error) {
	swapped := false
	err := r.update(func(tx *bbolt.Tx) error {
		account, err := getAccount(tx, email)
		if err != nil || account == nil || account.ActiveToken != expected {
			return err
		}
		swapped = true
		return replaceToken(tx, account, token)
	})
	return swapped, err
}

func (r *BoltRepository) RevokeToken(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	revoked := false
	err := r.update(func(tx *bbolt.Tx) error {
		account, err := accountByToken(tx, token)
		if err != nil || account == nil {
			return err
		}
		revoked = true
		return replaceToken(tx, account, "")
	})
	return revoked, err
}

func (r *BoltRepository) DeleteByToken(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	deleted := false
	err := r.update(func(tx *bbolt.Tx) error {
		account, err := accountByToken(tx, token)
		if err != nil || account == nil {
			return err
		}
		if err := tx.Bucket(tokensBucket).Delete([]byte(token)); err != nil {
			return err
		}
		deleted = true
		return tx.Bucket(accountsBucket).Delete([]byte(account.Email))
	})
	return deleted, err
}

func (r *BoltRepository) UpdatePasswordHash(ctx context.Context, email string, passwordHash []byte) error {
	return r.update(func(tx *bbolt.Tx) error {
		account, err := getAccount(tx, email)
		if err != nil || account == nil {
			return err
		}
		account.PasswordHash = passwordHash
		return putAccount(tx, account)
	})
}

func (r *BoltRepository) update(fn func(tx *bbolt.Tx) error) error {
	if err := r.db.Update(fn); err != nil {
		return fmt.Errorf("bolt error: %w", err)
	}
	return nil
}

func getAccount(tx *bbolt.Tx, email string) (*models.Account, error) {
	data := tx.Bucket(accountsBucket).Get([]byte(email))
	if data == nil {
		return nil, nil
	}
	var account models.Account
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func accountByToken(tx *bbolt.Tx, token string) (*models.Account, error) {
	email := tx.Bucket(tokensBucket).Get([]byte(token))
	if email == nil {
		return nil, nil
	}
	return getAccount(tx, string(email))
}

func putAccount(tx *bbolt.Tx, account *models.Account) error {
	data, err := json.Marshal(account)
	if err != nil {
		return err
	}
	return tx.Bucket(accountsBucket).Put([]byte(account.Email), data)
}

// replaceToken updates the account record and keeps the token index in step.
func replaceToken(tx *bbolt.Tx, account *models.Account, token string) error {
	tokens := tx.Bucket(tokensBucket)
	if account.ActiveToken != "" {
		if err := tokens.Delete([]byte(account.ActiveToken)); err != nil {
			return err
		}
	}
	if token != "" {
		if err := tokens.Put([]byte(token), []byte(account.Email)); err != nil {
			return err
		}
	}
	account.ActiveToken = token
	return putAccount(tx, account)
}
