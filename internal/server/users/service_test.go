package users

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/avezhov/passport/internal/common"
	"github.com/avezhov/passport/internal/logging"
	"github.com/avezhov/passport/internal/server/auth"
	"github.com/avezhov/passport/internal/server/config"
	mailmock "github.com/avezhov/passport/internal/server/mail/mock"
	"github.com/avezhov/passport/internal/server/models"
)

// fakeRepo is an in-memory Repository good enough for service tests. It
// mimics the conditional single-statement semantics of the Postgres repo.
type fakeRepo struct {
	mu    sync.Mutex
	users map[string]*models.User // by id

	createErr error
	setErr    error
	clearErr  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: make(map[string]*models.User)}
}

func (f *fakeRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return nil, common.ErrorEmailTaken
		}
	}
	stored := *u
	stored.CreatedAt = time.Now()
	f.users[u.ID] = &stored
	return &stored, nil
}

func (f *fakeRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeRepo) UpdatePassword(ctx context.Context, id string, hash []byte, changedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.PasswordHash = hash
	u.PasswordChangedAt = &changedAt
	u.ResetTokenHash = nil
	u.ResetTokenExpiresAt = nil
	return nil
}

func (f *fakeRepo) SetResetToken(ctx context.Context, id string, tokenHash string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	u, ok := f.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.ResetTokenHash = &tokenHash
	u.ResetTokenExpiresAt = &expiresAt
	return nil
}

func (f *fakeRepo) ClearResetToken(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clearErr != nil {
		return f.clearErr
	}
	u, ok := f.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.ResetTokenHash = nil
	u.ResetTokenExpiresAt = nil
	return nil
}

func (f *fakeRepo) ResetPasswordByToken(ctx context.Context, tokenHash string, hash []byte, changedAt, now time.Time) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ResetTokenHash != nil && *u.ResetTokenHash == tokenHash &&
			u.ResetTokenExpiresAt != nil && u.ResetTokenExpiresAt.After(now) {
			u.PasswordHash = hash
			u.PasswordChangedAt = &changedAt
			u.ResetTokenHash = nil
			u.ResetTokenExpiresAt = nil
			copied := *u
			return &copied, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeRepo) List(ctx context.Context) ([]*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*models.User
	for _, u := range f.users {
		copied := *u
		result = append(result, &copied)
	}
	return result, nil
}

func newTestService(t *testing.T, repo Repository, notifier *mailmock.Notifier) *Service {
	t.Helper()
	cfg := &config.Config{
		SecretKey:             "k",
		TokenValidityDuration: time.Hour,
		PublicBaseURL:         "https://passport.test",
	}
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	return NewService(repo, notifier, logger, cfg)
}

func rawTokenFromURL(t *testing.T, url string) string {
	t.Helper()
	const prefix = "https://passport.test/reset-password/"
	if !strings.HasPrefix(url, prefix) {
		t.Fatalf("unexpected reset URL %q", url)
	}
	return url[len(prefix):]
}

func signUpTestUser(t *testing.T, s *Service) *models.User {
	t.Helper()
	user, _, err := s.SignUp(context.Background(), "Alice", "alice@example.com", "password123", "password123")
	if err != nil {
		t.Fatalf("SignUp error: %v", err)
	}
	return user
}

func TestSignUp_Success(t *testing.T) {
	repo := newFakeRepo()
	notifier := &mailmock.Notifier{}
	s := newTestService(t, repo, notifier)

	user, token, err := s.SignUp(context.Background(), "Alice", "  ALICE@Example.COM ", "password123", "password123")
	if err != nil {
		t.Fatalf("SignUp error: %v", err)
	}
	if token == "" {
		t.Fatalf("expected a session token")
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("email not normalized: %q", user.Email)
	}
	if user.Role != models.RoleUser {
		t.Fatalf("expected role user, got %q", user.Role)
	}
	if user.ID == "" {
		t.Fatalf("expected generated user id")
	}
}

func TestSignUp_TokenPresentEvenIfWelcomeMailFails(t *testing.T) {
	repo := newFakeRepo()
	notifier := &mailmock.Notifier{WelcomeErr: errors.New("smtp down")}
	s := newTestService(t, repo, notifier)

	_, token, err := s.SignUp(context.Background(), "Alice", "alice@example.com", "password123", "password123")
	if err != nil {
		t.Fatalf("SignUp error: %v", err)
	}
	if token == "" {
		t.Fatalf("expected token despite welcome email failure")
	}
}

func TestSignUp_PasswordConfirmMismatch(t *testing.T) {
	repo := newFakeRepo()
	s := newTestService(t, repo, &mailmock.Notifier{})

	_, _, err := s.SignUp(context.Background(), "Alice", "alice@example.com", "password-abc", "password-xyz")
	if !errors.Is(err, common.ErrorValidation) {
		t.Fatalf("want common.ErrorValidation, got %v", err)
	}
	if len(repo.users) != 0 {
		t.Fatalf("no user should be persisted, got %d", len(repo.users))
	}
}

func TestSignUp_DuplicateEmail(t *testing.T) {
	repo := newFakeRepo()
	s := newTestService(t, repo, &mailmock.Notifier{})
	signUpTestUser(t, s)

	_, _, err := s.SignUp(context.Background(), "Mallory", "alice@example.com", "password123", "password123")
	if !errors.Is(err, common.ErrorValidation) {
		t.Fatalf("want common.ErrorValidation, got %v", err)
	}
}

func TestLogin_IdenticalFailureForWrongPasswordAndUnknownEmail(t *testing.T) {
	repo := newFakeRepo()
	s := newTestService(t, repo, &mailmock.Notifier{})
	signUpTestUser(t, s)

	_, _, errWrongPass := s.Login(context.Background(), "alice@example.com", "not-the-password")
	_, _, errUnknown := s.Login(context.Background(), "nobody@example.com", "password123")

	if !errors.Is(errWrongPass, common.ErrorInvalidCredentials) {
		t.Fatalf("wrong password: want common.ErrorInvalidCredentials, got %v", errWrongPass)
	}
	if !errors.Is(errUnknown, common.ErrorInvalidCredentials) {
		t.Fatalf("unknown email: want common.ErrorInvalidCredentials, got %v", errUnknown)
	}
	if errWrongPass.Error() != errUnknown.Error() {
		t.Fatalf("failure messages differ: %q vs %q", errWrongPass, errUnknown)
	}
}

func TestLogin_MissingInput(t *testing.T) {
	s := newTestService(t, newFakeRepo(), &mailmock.Notifier{})

	if _, _, err := s.Login(context.Background(), "", "x"); !errors.Is(err, common.ErrorInvalidCredentials) {
		t.Fatalf("want common.ErrorInvalidCredentials, got %v", err)
	}
	if _, _, err := s.Login(context.Background(), "a@b.co", ""); !errors.Is(err, common.ErrorInvalidCredentials) {
		t.Fatalf("want common.ErrorInvalidCredentials, got %v", err)
	}
}

func TestVerifyAndLoad_Success(t *testing.T) {
	repo := newFakeRepo()
	s := newTestService(t, repo, &mailmock.Notifier{})
	created := signUpTestUser(t, s)

	_, token, err := s.Login(context.Background(), "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	user, issuedAt, err := s.VerifyAndLoad(context.Background(), token)
	if err != nil {
		t.Fatalf("VerifyAndLoad error: %v", err)
	}
	if user.ID != created.ID {
		t.Fatalf("subject mismatch: got %q want %q", user.ID, created.ID)
	}
	if issuedAt.IsZero() {
		t.Fatalf("expected issued-at time")
	}
}

func TestVerifyAndLoad_Failures(t *testing.T) {
	repo := newFakeRepo()
	s := newTestService(t, repo, &mailmock.Notifier{})
	user := signUpTestUser(t, s)

	_, token, err := s.Login(context.Background(), "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	t.Run("no token", func(t *testing.T) {
		_, _, err := s.VerifyAndLoad(context.Background(), "")
		if !errors.Is(err, common.ErrorUnauthenticated) {
			t.Fatalf("want common.ErrorUnauthenticated, got %v", err)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		_, _, err := s.VerifyAndLoad(context.Background(), "not.a.jwt")
		if !errors.Is(err, common.ErrorInvalidToken) {
			t.Fatalf("want common.ErrorInvalidToken, got %v", err)
		}
	})

	t.Run("user gone", func(t *testing.T) {
		delete(repo.users, user.ID)
		defer func() { repo.users[user.ID] = user }()

		_, _, err := s.VerifyAndLoad(context.Background(), token)
		if !errors.Is(err, common.ErrorUserGone) {
			t.Fatalf("want common.ErrorUserGone, got %v", err)
		}
	})
}

func TestVerifyAndLoad_StalePasswordAfterChange(t *testing.T) {
	repo := newFakeRepo()
	s := newTestService(t, repo, &mailmock.Notifier{})
	user := signUpTestUser(t, s)

	// Token issued well before the password change.
	s.now = func() time.Time { return time.Now().Add(-time.Minute) }
	_, oldToken, err := s.Login(context.Background(), "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	s.now = time.Now

	fresh, err := repo.GetByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	newToken, err := s.UpdatePassword(context.Background(), fresh, "password123", "newpassword456", "newpassword456")
	if err != nil {
		t.Fatalf("UpdatePassword error: %v", err)
	}

	// The pre-change token is rejected as stale even though unexpired.
	_, _, err = s.VerifyAndLoad(context.Background(), oldToken)
	if !errors.Is(err, common.ErrorStalePassword) {
		t.Fatalf("want common.ErrorStalePassword, got %v", err)
	}

	// The token issued by the change itself still verifies, thanks to the
	// one-second back-off on the changed-at timestamp.
	if _, _, err := s.VerifyAndLoad(context.Background(), newToken); err != nil {
		t.Fatalf("fresh token rejected: %v", err)
	}
}

func TestUpdatePassword_WrongCurrentPassword(t *testing.T) {
	repo := newFakeRepo()
	s := newTestService(t, repo, &mailmock.Notifier{})
	user := signUpTestUser(t, s)

	_, err := s.UpdatePassword(context.Background(), user, "wrong-password", "newpassword456", "newpassword456")
	if !errors.Is(err, common.ErrorInvalidCredentials) {
		t.Fatalf("want common.ErrorInvalidCredentials, got %v", err)
	}
}

func TestForgotPassword_UnknownEmail(t *testing.T) {
	repo := newFakeRepo()
	s := newTestService(t, repo, &mailmock.Notifier{})

	err := s.ForgotPassword(context.Background(), "ghost@example.com")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
	for _, u := range repo.users {
		if u.ResetTokenHash != nil {
			t.Fatalf("no reset fields should be written")
		}
	}
}

func TestForgotPassword_StoresHashAndEmailsRawToken(t *testing.T) {
	repo := newFakeRepo()
	notifier := &mailmock.Notifier{}
	s := newTestService(t, repo, notifier)
	user := signUpTestUser(t, s)

	if err := s.ForgotPassword(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("ForgotPassword error: %v", err)
	}

	stored, err := repo.GetByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if stored.ResetTokenHash == nil || stored.ResetTokenExpiresAt == nil {
		t.Fatalf("reset fields not persisted")
	}

	msg := notifier.LastOfKind("reset")
	if msg.URL == "" {
		t.Fatalf("expected reset email, got %+v", notifier.Messages)
	}

	// The link carries the raw token; the store carries only its hash.
	raw := rawTokenFromURL(t, msg.URL)
	if auth.HashResetToken(raw) != *stored.ResetTokenHash {
		t.Fatalf("stored hash does not match emailed raw token")
	}
}

func TestForgotPassword_DeliveryFailureClearsResetFields(t *testing.T) {
	repo := newFakeRepo()
	notifier := &mailmock.Notifier{ResetErr: errors.New("smtp down")}
	s := newTestService(t, repo, notifier)
	user := signUpTestUser(t, s)

	err := s.ForgotPassword(context.Background(), "alice@example.com")
	if !errors.Is(err, common.ErrorDelivery) {
		t.Fatalf("want common.ErrorDelivery, got %v", err)
	}

	stored, err := repo.GetByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if stored.ResetTokenHash != nil || stored.ResetTokenExpiresAt != nil {
		t.Fatalf("reset fields must be cleared after failed delivery")
	}
}

func TestForgotPassword_SecondTokenInvalidatesFirst(t *testing.T) {
	repo := newFakeRepo()
	notifier := &mailmock.Notifier{}
	s := newTestService(t, repo, notifier)
	signUpTestUser(t, s)

	if err := s.ForgotPassword(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("ForgotPassword error: %v", err)
	}
	firstRaw := rawTokenFromURL(t, notifier.LastOfKind("reset").URL)

	if err := s.ForgotPassword(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("ForgotPassword error: %v", err)
	}
	secondRaw := rawTokenFromURL(t, notifier.LastOfKind("reset").URL)

	if _, _, err := s.ResetPassword(context.Background(), firstRaw, "newpassword456", "newpassword456"); !errors.Is(err, common.ErrorResetTokenInvalid) {
		t.Fatalf("first token should be invalidated, got %v", err)
	}
	if _, _, err := s.ResetPassword(context.Background(), secondRaw, "newpassword456", "newpassword456"); err != nil {
		t.Fatalf("second token should work: %v", err)
	}
}

func TestResetPassword_SucceedsOnceThenFails(t *testing.T) {
	repo := newFakeRepo()
	notifier := &mailmock.Notifier{}
	s := newTestService(t, repo, notifier)
	user := signUpTestUser(t, s)

	if err := s.ForgotPassword(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("ForgotPassword error: %v", err)
	}
	raw := rawTokenFromURL(t, notifier.LastOfKind("reset").URL)

	got, token, err := s.ResetPassword(context.Background(), raw, "newpassword456", "newpassword456")
	if err != nil {
		t.Fatalf("ResetPassword error: %v", err)
	}
	if got.ID != user.ID || token == "" {
		t.Fatalf("unexpected result: user=%+v token=%q", got, token)
	}

	stored, err := repo.GetByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if stored.ResetTokenHash != nil || stored.ResetTokenExpiresAt != nil {
		t.Fatalf("reset fields must be cleared after use")
	}
	if stored.PasswordChangedAt == nil {
		t.Fatalf("password change must be timestamped")
	}

	// Second redemption of the same raw token fails.
	_, _, err = s.ResetPassword(context.Background(), raw, "anotherpass789", "anotherpass789")
	if !errors.Is(err, common.ErrorResetTokenInvalid) {
		t.Fatalf("want common.ErrorResetTokenInvalid, got %v", err)
	}

	// And the new password logs in.
	if _, _, err := s.Login(context.Background(), "alice@example.com", "newpassword456"); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
}

func TestResetPassword_ExpiredToken(t *testing.T) {
	repo := newFakeRepo()
	notifier := &mailmock.Notifier{}
	s := newTestService(t, repo, notifier)
	signUpTestUser(t, s)

	// Issue the reset token in the past so it is already expired.
	s.now = func() time.Time { return time.Now().Add(-(auth.ResetTokenValidity + time.Minute)) }
	if err := s.ForgotPassword(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("ForgotPassword error: %v", err)
	}
	s.now = time.Now

	raw := rawTokenFromURL(t, notifier.LastOfKind("reset").URL)
	_, _, err := s.ResetPassword(context.Background(), raw, "newpassword456", "newpassword456")
	if !errors.Is(err, common.ErrorResetTokenInvalid) {
		t.Fatalf("want common.ErrorResetTokenInvalid, got %v", err)
	}
}

func TestResetPassword_ValidatesNewPasswordFirst(t *testing.T) {
	s := newTestService(t, newFakeRepo(), &mailmock.Notifier{})

	_, _, err := s.ResetPassword(context.Background(), "whatever", "short", "short")
	if !errors.Is(err, common.ErrorValidation) {
		t.Fatalf("want common.ErrorValidation, got %v", err)
	}
}
