// Package services contains server-side business logic. SessionService
// coordinates signup, login and the lifecycle of the single session token an
// account may hold.
package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

// SessionState describes the session a token represents.
type SessionState struct {
	LoggedIn bool
	Email    string
	// Expired is set when the token was well-formed but past its lifetime;
	// it has been cleared from the store.
	Expired bool
}

// AccountInfo is a read-only view of an account for operators.
type AccountInfo struct {
	Email         string
	SessionActive bool
}

type SessionService struct {
	repomanager repomanager.RepositoryManager
	hasher      auth.PasswordHasher
	tokens      *auth.TokenService
	logger      logging.Logger
	dummyHash   []byte
}

// NewSessionService wires the coordinator. A throwaway hash is computed up
// front so that logins for unknown emails cost the same as real ones.
func NewSessionService(m repomanager.RepositoryManager, hasher auth.PasswordHasher, tokens *auth.TokenService, logger logging.Logger) (*SessionService, error) {
	dummy, err := hasher.Hash("authkeeper-unknown-account")
	if err != nil {
		return nil, err
	}
	return &SessionService{
		repomanager: m,
		hasher:      hasher,
		tokens:      tokens,
		logger:      logger.With("module", "session_service"),
		dummyHash:   dummy,
	}, nil
}

// Signup registers email with password. Every problem with the input is
// reported at once in a *common.ValidationError. The new account is not
// logged in.
func (s *SessionService) Signup(ctx context.Context, email, password, confirm string) error {
	email = common.NormalizeEmail(email)

	// hash before the transaction so the write lock is not held during it
	var hash []byte
	if email != "" && password != "" && password == confirm {
		var err error
		if hash, err = s.hasher.Hash(password); err != nil {
			metrics.RecordSignup(metrics.OutcomeError)
			return s.internal(ctx, "password hash failed", err, "email", email)
		}
	}

	err := s.repomanager.WithinTx(ctx, func(ctx context.Context, repo accounts.Repository) error {
		var problems []common.Problem

		if email == "" {
			problems = append(problems, common.ProblemMissingEmail)
		}
		if password == "" {
			problems = append(problems, common.ProblemMissingPassword)
		}
		if confirm == "" {
			problems = append(problems, common.ProblemMissingConfirm)
		}
		if email != "" {
			existing, err := repo.FindByEmail(ctx, email)
			if err != nil {
				return err
			}
			if existing != nil {
				problems = append(problems, common.ProblemEmailTaken)
			}
		}
		if password != "" && confirm != "" && password != confirm {
			problems = append(problems, common.ProblemPasswordMismatch)
		}
		if len(problems) > 0 {
			return common.NewValidationError(problems...)
		}

		return repo.Create(ctx, email, hash)
	})

	switch {
	case err == nil:
		metrics.RecordSignup(metrics.OutcomeSuccess)
		s.logger.Info(ctx, "account created", "email", email)
		return nil
	case errors.Is(err, common.ErrDuplicateEmail):
		metrics.RecordSignup(metrics.OutcomeEmailTaken)
		return common.NewValidationError(common.ProblemEmailTaken)
	case errors.Is(err, common.ErrValidation):
		var ve *common.ValidationError
		if errors.As(err, &ve) && ve.Has(common.ProblemEmailTaken) {
			metrics.RecordSignup(metrics.OutcomeEmailTaken)
		} else {
			metrics.RecordSignup(metrics.OutcomeInvalid)
		}
		return err
	default:
		metrics.RecordSignup(metrics.OutcomeError)
		s.logger.Error(ctx, "signup failed", "email", email, "error", err)
		return common.ErrorInternal
	}
}

// Login checks the credentials and issues a session token. An account that
// already holds an unexpired token gets common.ErrAlreadyLoggedIn; a stale
// token is replaced.
func (s *SessionService) Login(ctx context.Context, email, password string) (string, error) {
	email = common.NormalizeEmail(email)
	if email == "" || password == "" {
		metrics.RecordLogin(metrics.OutcomeInvalid)
		return "", common.NewValidationError(common.ProblemMissingCredential)
	}

	repo := s.repomanager.Accounts()

	account, err := repo.FindByEmail(ctx, email)
	if err != nil {
		return "", s.internal(ctx, "login lookup failed", err, "email", email)
	}
	if account == nil {
		s.hasher.Verify(password, s.dummyHash)
		metrics.RecordLogin(metrics.OutcomeBadCredentials)
		return "", common.ErrorUnauthorized
	}
	if !s.hasher.Verify(password, account.PasswordHash) {
		metrics.RecordLogin(metrics.OutcomeBadCredentials)
		return "", common.ErrorUnauthorized
	}

	expected := ""
	if account.ActiveToken != "" {
		check, err := s.tokens.Validate(ctx, account.ActiveToken)
		if err != nil {
			return "", s.internal(ctx, "login token check failed", err, "email", email)
		}
		switch check.Status {
		case auth.TokenValid:
			metrics.RecordLogin(metrics.OutcomeAlreadyActive)
			return "", common.ErrAlreadyLoggedIn
		case auth.TokenExpired:
			metrics.RecordRevocation(metrics.ReasonExpired)
		default:
			// unreadable token, e.g. signed with a rotated secret
			expected = account.ActiveToken
		}
	}

	token, err := s.tokens.Issue(email)
	if err != nil {
		return "", s.internal(ctx, "token issue failed", err, "email", email)
	}

	claimed, err := repo.SwapToken(ctx, email, expected, token)
	if err != nil {
		return "", s.internal(ctx, "token store failed", err, "email", email)
	}
	if !claimed {
		metrics.RecordLogin(metrics.OutcomeAlreadyActive)
		return "", common.ErrAlreadyLoggedIn
	}

	if s.hasher.NeedsUpgrade(account.PasswordHash) {
		s.upgradeHash(ctx, repo, email, password)
	}

	metrics.RecordLogin(metrics.OutcomeSuccess)
	s.logger.Info(ctx, "login", "email", email)
	return token, nil
}

func (s *SessionService) upgradeHash(ctx context.Context, repo accounts.Repository, email, password string) {
	hash, err := s.hasher.Hash(password)
	if err == nil {
		err = repo.UpdatePasswordHash(ctx, email, hash)
	}
	if err != nil {
		s.logger.Warn(ctx, "password hash upgrade failed", "email", email, "error", err)
		return
	}
	s.logger.Info(ctx, "password hash upgraded", "email", email)
}

// ForceLogout clears the session of email without any proof of identity.
// Unknown emails are not an error.
func (s *SessionService) ForceLogout(ctx context.Context, email string) error {
	email = common.NormalizeEmail(email)
	if email == "" {
		return common.NewValidationError(common.ProblemMissingEmail)
	}

	if err := s.tokens.Revoke(ctx, email); err != nil {
		return s.internal(ctx, "force logout failed", err, "email", email)
	}

	metrics.RecordRevocation(metrics.ReasonForced)
	s.logger.Warn(ctx, "forced logout", "email", email)
	return nil
}

// Logout revokes token. common.ErrorNotFound means the token was not active.
func (s *SessionService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return common.ErrorNotFound
	}

	revoked, err := s.tokens.RevokeByToken(ctx, token)
	if err != nil {
		return s.internal(ctx, "logout failed", err)
	}
	if !revoked {
		return common.ErrorNotFound
	}

	metrics.RecordRevocation(metrics.ReasonLogout)
	return nil
}

// Delete removes the account that token belongs to. The token must be the
// account's live session token.
func (s *SessionService) Delete(ctx context.Context, token string) error {
	if token == "" {
		return common.ErrorNotFound
	}

	repo := s.repomanager.Accounts()

	account, err := repo.FindByToken(ctx, token)
	if err != nil {
		return s.internal(ctx, "delete lookup failed", err)
	}
	if account == nil {
		s.logger.Debug(ctx, "delete rejected", "error", common.ErrInvalidToken)
		return common.ErrorNotFound
	}

	check, err := s.tokens.Validate(ctx, token)
	if err != nil {
		return s.internal(ctx, "delete token check failed", err, "email", account.Email)
	}
	if check.Status == auth.TokenExpired {
		metrics.RecordRevocation(metrics.ReasonExpired)
	}
	if err := check.Err(); err != nil {
		s.logger.Debug(ctx, "delete rejected", "email", account.Email, "error", err)
		return common.ErrorNotFound
	}

	deleted, err := repo.DeleteByToken(ctx, token)
	if err != nil {
		return s.internal(ctx, "delete failed", err, "email", account.Email)
	}
	if !deleted {
		return common.ErrorNotFound
	}

	metrics.RecordRevocation(metrics.ReasonDeleted)
	s.logger.Info(ctx, "account deleted", "email", account.Email)
	return nil
}

// ValidateSession reports whether token is a live session. Expired tokens are
// cleared as a side effect.
func (s *SessionService) ValidateSession(ctx context.Context, token string) (SessionState, error) {
	check, err := s.tokens.Validate(ctx, token)
	if err != nil {
		return SessionState{}, s.internal(ctx, "session check failed", err)
	}

	switch check.Status {
	case auth.TokenValid:
		return SessionState{LoggedIn: true, Email: check.Email}, nil
	case auth.TokenExpired:
		metrics.RecordRevocation(metrics.ReasonExpired)
		return SessionState{Email: check.Email, Expired: true}, nil
	default:
		return SessionState{}, nil
	}
}

// Lookup returns whether email exists and whether it holds a live session.
// common.ErrorNotFound is returned for unknown emails.
func (s *SessionService) Lookup(ctx context.Context, email string) (*AccountInfo, error) {
	email = common.NormalizeEmail(email)

	account, err := s.repomanager.Accounts().FindByEmail(ctx, email)
	if err != nil {
		return nil, s.internal(ctx, "lookup failed", err, "email", email)
	}
	if account == nil {
		return nil, common.ErrorNotFound
	}

	info := &AccountInfo{Email: account.Email}
	if account.HasSession() {
		info.SessionActive = s.tokens.Parse(account.ActiveToken).Status == auth.TokenValid
	}
	return info, nil
}

func (s *SessionService) internal(ctx context.Context, msg string, err error, args ...any) error {
	s.logger.Error(ctx, msg, append(args, "error", err)...)
	return common.ErrorInternal
}
