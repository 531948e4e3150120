package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/keystone-pm/keystone/internal/auth"
	"github.com/keystone-pm/keystone/internal/authz"
	"github.com/keystone-pm/keystone/internal/lockout"
	"github.com/keystone-pm/keystone/internal/shared"
	"github.com/keystone-pm/keystone/internal/users"
	_ "github.com/keystone-pm/keystone/testing"
)

type stubDirectory struct {
	user *users.User
}

func (s *stubDirectory) FindByEmail(ctx context.Context, email string) (*users.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

type memLockStore struct {
	mu       sync.Mutex
	attempts map[string]int
	locked   map[string]time.Time
}

func newMemLockStore() *memLockStore {
	return &memLockStore{attempts: make(map[string]int), locked: make(map[string]time.Time)}
}

func (m *memLockStore) IncrementFailedAttempts(ctx context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[id]++
	return m.attempts[id], nil
}

func (m *memLockStore) Lock(ctx context.Context, id string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locked[id] = until
	return nil
}

func (m *memLockStore) ResetLock(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attempts, id)
	delete(m.locked, id)
	return nil
}

type stubSessionRepo struct{}

func (stubSessionRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return nil
}

func (stubSessionRepo) DeleteSession(ctx context.Context, id string) error { return nil }

func newAuthHandler(t *testing.T, directory *stubDirectory) (*auth.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	tracker := lockout.NewTracker(lockout.Config{Store: newMemLockStore(), Threshold: 3})
	service := auth.NewService(directory, tracker, stubSessionRepo{}, nil)
	handler := auth.NewHandler(nil, service, sessionManager, csrfManager)
	return handler, sessionManager
}

func withSession(t *testing.T, sm *shared.SessionManager, req *http.Request) (*http.Request, *shared.Session) {
	t.Helper()
	sess, err := sm.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	ctx := shared.ContextWithSession(req.Context(), sess)
	return req.WithContext(ctx), sess
}

func TestShowSessionIssuesCSRFToken(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass123"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	handler, sessionManager := newAuthHandler(t, &stubDirectory{user: &users.User{
		ID: 1, Email: "user@test.local", PasswordHash: string(hashed), Role: authz.RoleTeam, IsActive: true,
	}})

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req, sess := withSession(t, sessionManager, req)

	res := httptest.NewRecorder()
	handler.ShowSessionForTest(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	var view struct {
		Authenticated bool   `json:"authenticated"`
		CSRFToken     string `json:"csrf_token"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.Authenticated {
		t.Fatal("expected unauthenticated session")
	}
	if view.CSRFToken == "" {
		t.Fatal("expected csrf token in response")
	}
	if sess.Get(shared.CSRFSessionKey) != view.CSRFToken {
		t.Fatal("expected token persisted in session")
	}
}

func TestLoginSuccess(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass123"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	handler, sessionManager := newAuthHandler(t, &stubDirectory{user: &users.User{
		ID: 7, Email: "user@test.local", PasswordHash: string(hashed), Role: authz.RoleDirector, IsActive: true,
	}})

	body := `{"email":"user@test.local","password":"correctpass123"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login?next=/projects", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req, sess := withSession(t, sessionManager, req)

	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if sess.User() != "7" {
		t.Fatalf("expected session bound to user 7, got %q", sess.User())
	}
	var payload struct {
		Next string `json:"next"`
		User struct {
			Role string `json:"role"`
		} `json:"user"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Next != "/projects" {
		t.Fatalf("expected next=/projects, got %q", payload.Next)
	}
	if payload.User.Role != "director" {
		t.Fatalf("expected director role, got %q", payload.User.Role)
	}
}

func TestLoginRejectsExternalRedirect(t *testing.T) {
	hashed, _ := bcrypt.GenerateFromPassword([]byte("correctpass123"), bcrypt.DefaultCost)
	handler, sessionManager := newAuthHandler(t, &stubDirectory{user: &users.User{
		ID: 7, Email: "user@test.local", PasswordHash: string(hashed), Role: authz.RoleTeam, IsActive: true,
	}})

	body := `{"email":"user@test.local","password":"correctpass123"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login?next=//evil.example", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req, _ = withSession(t, sessionManager, req)

	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var payload struct {
		Next string `json:"next"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Next != "/" {
		t.Fatalf("expected sanitized redirect, got %q", payload.Next)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass123"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	handler, sessionManager := newAuthHandler(t, &stubDirectory{user: &users.User{
		ID: 1, Email: "user@test.local", PasswordHash: string(hashed), Role: authz.RoleTeam, IsActive: true,
	}})

	body := `{"email":"user@test.local","password":"wrongpass123"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req, sess := withSession(t, sessionManager, req)

	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
	if sess.User() != "" {
		t.Fatal("expected session to stay anonymous")
	}
}

func TestLoginLockedAfterRepeatedFailures(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass123"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	handler, sessionManager := newAuthHandler(t, &stubDirectory{user: &users.User{
		ID: 1, Email: "user@test.local", PasswordHash: string(hashed), Role: authz.RoleTeam, IsActive: true,
	}})

	attempt := func() int {
		body := `{"email":"user@test.local","password":"wrongpass123"}`
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req, _ = withSession(t, sessionManager, req)
		res := httptest.NewRecorder()
		handler.HandleLoginForTest(res, req)
		return res.Code
	}

	if code := attempt(); code != http.StatusUnauthorized {
		t.Fatalf("attempt 1: expected 401, got %d", code)
	}
	if code := attempt(); code != http.StatusUnauthorized {
		t.Fatalf("attempt 2: expected 401, got %d", code)
	}
	// Threshold is 3, so the third failure reports the lock.
	if code := attempt(); code != http.StatusLocked {
		t.Fatalf("attempt 3: expected 423, got %d", code)
	}
}

func TestLoginValidation(t *testing.T) {
	handler, sessionManager := newAuthHandler(t, &stubDirectory{})

	body := `{"email":"not-an-email","password":"short"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req, _ = withSession(t, sessionManager, req)

	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}
