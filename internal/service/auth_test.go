package service

import (
	"context"
	"errors"
	"testing"
	"time"

	pkgcrypto "github.com/and161185/warranty-keeper/internal/crypto"
	"github.com/and161185/warranty-keeper/internal/errs"
	"github.com/and161185/warranty-keeper/internal/limiter"
	"github.com/and161185/warranty-keeper/internal/model"
	"github.com/and161185/warranty-keeper/internal/repository"
	"github.com/and161185/warranty-keeper/internal/token"
)

var cheapHash = pkgcrypto.Argon2id{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32}

type fakeAccounts struct {
	byEmail map[string]*model.Account
	nextID  int64

	createErr error
	getErr    error
}

var _ repository.AccountRepository = (*fakeAccounts)(nil)

func (f *fakeAccounts) Create(_ context.Context, a *model.Account) error {
	if f.createErr != nil {
		return f.createErr
	}
	if f.byEmail == nil {
		f.byEmail = map[string]*model.Account{}
	}
	if _, exists := f.byEmail[a.Email]; exists {
		return errs.ErrAlreadyExists
	}
	f.nextID++
	a.ID = f.nextID
	cpy := *a
	f.byEmail[a.Email] = &cpy
	return nil
}
func (f *fakeAccounts) GetByID(_ context.Context, id int64) (*model.Account, error) {
	for _, a := range f.byEmail {
		if a.ID == id {
			c := *a
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}
func (f *fakeAccounts) GetByEmail(_ context.Context, email string) (*model.Account, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	a, ok := f.byEmail[email]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *a
	return &c, nil
}

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	successErr error

	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	l.allowCalls++
	return l.allowOK, 0, l.allowErr
}
func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return l.successErr
}
func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}

func TestAuth_Register_Basics(t *testing.T) {
	t.Parallel()
	accounts := &fakeAccounts{}
	s := NewAuthService(accounts, token.NewManager([]byte("k"), time.Minute), &fakeLimiter{}).WithHasher(cheapHash)

	if _, err := s.Register(context.Background(), "", "", false); !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput on empty email/password, got %v", err)
	}
	if _, err := s.Register(context.Background(), "not-an-email", "pwd", false); !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput on bad email, got %v", err)
	}

	id, err := s.Register(context.Background(), " Alice@Example.com", "pwd", false)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if id == 0 {
		t.Fatalf("zero account id")
	}
	stored := accounts.byEmail["alice@example.com"]
	if stored == nil || len(stored.Salt) != pkgcrypto.SaltLen || stored.Admin {
		t.Fatalf("unexpected stored account: %+v", stored)
	}

	if _, err := s.Register(context.Background(), "alice@example.com", "pwd2", false); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("want ErrAlreadyExists on duplicate email, got %v", err)
	}

	if _, err := s.Register(context.Background(), "root@example.com", "pwd", true); err != nil {
		t.Fatalf("Register admin: %v", err)
	}
	if admin := accounts.byEmail["root@example.com"]; admin == nil || !admin.Admin {
		t.Fatalf("admin flag not stored: %+v", admin)
	}

	accounts.createErr = errors.New("boom")
	if _, err := s.Register(context.Background(), "bob@example.com", "pwd", false); err == nil {
		t.Fatalf("want propagated repo error")
	}
}

func TestAuth_LoginWithIP_RateLimiterAndCreds(t *testing.T) {
	t.Parallel()

	salt, _ := pkgcrypto.NewSalt()
	a := &model.Account{
		ID:      3,
		Email:   "alice@example.com",
		Salt:    salt,
		PwdHash: cheapHash.Hash("correct", salt),
		Admin:   true,
	}
	accounts := &fakeAccounts{byEmail: map[string]*model.Account{a.Email: a}}
	lim := &fakeLimiter{allowOK: true}
	tm := token.NewManager([]byte("secret"), 2*time.Minute)
	s := NewAuthService(accounts, tm, lim).WithHasher(cheapHash)
	ctx := context.Background()

	lim.allowErr = errors.New("lim-err")
	if _, _, err := s.LoginWithIP(ctx, a.Email, "correct", "1.2.3.4"); err == nil {
		t.Fatalf("want limiter error propagate")
	}
	lim.allowErr = nil

	lim.allowOK = false
	if _, _, err := s.LoginWithIP(ctx, a.Email, "correct", "1.2.3.4"); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited, got %v", err)
	}
	lim.allowOK = true

	if _, _, err := s.LoginWithIP(ctx, "nope@example.com", "x", ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on missing account, got %v", err)
	}

	lim.failBlocked = true
	if _, _, err := s.LoginWithIP(ctx, a.Email, "wrong", ""); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited on blocked after failure, got %v", err)
	}
	lim.failBlocked = false

	if _, _, err := s.LoginWithIP(ctx, a.Email, "wrong", ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on wrong password, got %v", err)
	}

	tok, got, err := s.LoginWithIP(ctx, "ALICE@example.com", "correct", "127.0.0.1:123")
	if err != nil {
		t.Fatalf("LoginWithIP success: %v", err)
	}
	if tok.AccessToken == "" || tok.ExpiresAt.Before(time.Now()) {
		t.Fatalf("bad token: %+v", tok)
	}
	if got.ID != a.ID {
		t.Fatalf("bad account returned: %+v", got)
	}
	if lim.successCalls == 0 {
		t.Fatalf("expected Success() to be called")
	}

	caller, err := tm.Parse(tok.AccessToken)
	if err != nil || caller.AccountID != 3 || !caller.Admin {
		t.Fatalf("token does not carry identity: %+v err=%v", caller, err)
	}
}
