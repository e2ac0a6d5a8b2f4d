// Package service contains the application services: authentication and the
// warranty registration workflow.
package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	pkgcrypto "github.com/and161185/warranty-keeper/internal/crypto"
	"github.com/and161185/warranty-keeper/internal/errs"
	"github.com/and161185/warranty-keeper/internal/limiter"
	"github.com/and161185/warranty-keeper/internal/model"
	"github.com/and161185/warranty-keeper/internal/repository"
)

// TokenIssuer signs access tokens for authenticated accounts.
type TokenIssuer interface {
	Issue(accountID int64, admin bool) (string, time.Time, error)
}

// AuthService defines account registration and login.
type AuthService interface {
	// Register creates a new account with secure password hashing.
	Register(ctx context.Context, email, password string, admin bool) (accountID int64, err error)
	// LoginWithIP applies rate-limiting and authenticates the account.
	LoginWithIP(ctx context.Context, email, password, ip string) (model.Tokens, model.Account, error)
}

type AuthServiceImpl struct {
	accounts repository.AccountRepository
	tokens   TokenIssuer
	lim      limiter.Limiter
	hasher   pkgcrypto.Argon2id
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(accounts repository.AccountRepository, tokens TokenIssuer, lim limiter.Limiter) *AuthServiceImpl {
	return &AuthServiceImpl{accounts: accounts, tokens: tokens, lim: lim, hasher: pkgcrypto.Default}
}

// WithHasher overrides the Argon2id parameters (tests use cheap ones).
func (s *AuthServiceImpl) WithHasher(h pkgcrypto.Argon2id) *AuthServiceImpl {
	s.hasher = h
	return s
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// Register creates a new account record with a per-account salt.
func (s *AuthServiceImpl) Register(ctx context.Context, email, password string, admin bool) (int64, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || password == "" {
		return 0, fmt.Errorf("email/password: %w", errs.ErrInvalidInput)
	}
	salt, err := pkgcrypto.NewSalt()
	if err != nil {
		return 0, err
	}
	a := &model.Account{
		Email:   email,
		PwdHash: s.hasher.Hash(password, salt),
		Salt:    salt,
		Admin:   admin,
	}
	if err := s.accounts.Create(ctx, a); err != nil {
		return 0, err
	}
	return a.ID, nil
}

// LoginWithIP authenticates with rate limiting by (email, ip).
func (s *AuthServiceImpl) LoginWithIP(ctx context.Context, email, password, ip string) (model.Tokens, model.Account, error) {
	email = normalizeEmail(email)
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return model.Tokens{}, model.Account{}, err
	}
	if !allowed {
		return model.Tokens{}, model.Account{}, errs.ErrRateLimited
	}

	a, err := s.accounts.GetByEmail(ctx, email)
	if err != nil || !s.hasher.Verify(password, a.Salt, a.PwdHash) {
		if blocked, _, ferr := s.lim.Failure(ctx, email, ipHash); ferr == nil && blocked {
			return model.Tokens{}, model.Account{}, errs.ErrRateLimited
		}
		// unknown email and wrong password look the same to the caller
		return model.Tokens{}, model.Account{}, errs.ErrUnauthorized
	}

	_ = s.lim.Success(ctx, email, ipHash)

	access, exp, err := s.tokens.Issue(a.ID, a.Admin)
	if err != nil {
		return model.Tokens{}, model.Account{}, err
	}
	return model.Tokens{AccessToken: access, ExpiresAt: exp}, *a, nil
}
