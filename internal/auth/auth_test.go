package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-dms/meridian-dms/internal/auth"
	"github.com/meridian-dms/meridian-dms/internal/shared"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAuthRouter(t *testing.T, sm *auth.SessionManager, repo auth.Repository) chi.Router {
	t.Helper()
	mw := auth.Middleware{Sessions: sm, Logger: discardLogger()}
	handler := auth.NewHandler(discardLogger(), auth.NewService(repo), sm)
	r := chi.NewRouter()
	r.Use(mw.LoadSession)
	handler.MountRoutes(r)
	return r
}

type stubRepo struct {
	user *auth.User
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	return nil
}

func testUser(t *testing.T) *auth.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &auth.User{
		ID:           7,
		Email:        "clerk@meridian.test",
		Name:         "Clerk",
		Role:         auth.RoleClerk,
		BranchID:     1,
		PasswordHash: string(hash),
		IsActive:     true,
	}
}

func newSessionManager(t *testing.T) *auth.SessionManager {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return auth.NewSessionManager(client, "meridian_session", time.Hour, false)
}

func TestAuthenticate(t *testing.T) {
	svc := auth.NewService(&stubRepo{user: testUser(t)})
	ctx := context.Background()

	user, err := svc.Authenticate(ctx, "clerk@meridian.test", "correct-horse")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user.ID != 7 {
		t.Fatalf("expected user 7, got %d", user.ID)
	}

	if _, err := svc.Authenticate(ctx, "clerk@meridian.test", "wrong"); err != shared.ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "ghost@meridian.test", "correct-horse"); err != shared.ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestAuthenticateInactiveUser(t *testing.T) {
	user := testUser(t)
	user.IsActive = false
	svc := auth.NewService(&stubRepo{user: user})

	if _, err := svc.Authenticate(context.Background(), user.Email, "correct-horse"); err != shared.ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	sm := newSessionManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sess.SetUser(7, auth.RoleManager)

	rec := httptest.NewRecorder()
	if err := sm.Commit(ctx, rec, sess); err != nil {
		t.Fatalf("commit: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}

	again := httptest.NewRequest(http.MethodGet, "/", nil)
	again.AddCookie(cookies[0])
	loaded, err := sm.Load(ctx, again)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.UserID() != 7 || loaded.Role() != auth.RoleManager {
		t.Fatalf("session lost user binding: id=%d role=%s", loaded.UserID(), loaded.Role())
	}
}

func TestSessionAnonymousNotPersisted(t *testing.T) {
	sm := newSessionManager(t)
	ctx := context.Background()

	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	rec := httptest.NewRecorder()
	if err := sm.Commit(ctx, rec, sess); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatal("anonymous session should not set a cookie")
	}
}

func TestSessionDestroy(t *testing.T) {
	sm := newSessionManager(t)
	ctx := context.Background()

	sess, _ := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	sess.SetUser(7, auth.RoleClerk)
	rec := httptest.NewRecorder()
	if err := sm.Commit(ctx, rec, sess); err != nil {
		t.Fatalf("commit: %v", err)
	}
	cookie := rec.Result().Cookies()[0]

	sm.Destroy(sess)
	rec = httptest.NewRecorder()
	if err := sm.Commit(ctx, rec, sess); err != nil {
		t.Fatalf("destroy commit: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	loaded, err := sm.Load(ctx, req)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.UserID() != 0 {
		t.Fatal("destroyed session still resolves a user")
	}
}

func TestLoginHandler(t *testing.T) {
	sm := newSessionManager(t)
	router := newAuthRouter(t, sm, &stubRepo{user: testUser(t)})

	body, _ := json.Marshal(map[string]string{"email": "clerk@meridian.test", "password": "correct-horse"})
	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(rec.Result().Cookies()) == 0 {
		t.Fatal("login should set a session cookie")
	}
	var resp struct {
		Role        string   `json:"role"`
		Permissions []string `json:"permissions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Role != "clerk" || len(resp.Permissions) == 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestLoginHandlerBadPassword(t *testing.T) {
	sm := newSessionManager(t)
	router := newAuthRouter(t, sm, &stubRepo{user: testUser(t)})

	body, _ := json.Marshal(map[string]string{"email": "clerk@meridian.test", "password": "wrong-password"})
	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestPermissionMiddleware(t *testing.T) {
	sm := newSessionManager(t)
	mw := auth.Middleware{Sessions: sm, Logger: discardLogger()}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// Anonymous request is rejected before the permission check.
	rec := httptest.NewRecorder()
	mw.LoadSession(mw.RequireAny("inventory.view")(ok)).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	// Log a clerk in and reuse the cookie.
	sess, _ := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	sess.SetUser(7, auth.RoleClerk)
	loginRec := httptest.NewRecorder()
	if err := sm.Commit(context.Background(), loginRec, sess); err != nil {
		t.Fatalf("commit: %v", err)
	}
	cookie := loginRec.Result().Cookies()[0]

	allowed := httptest.NewRequest(http.MethodGet, "/", nil)
	allowed.AddCookie(cookie)
	rec = httptest.NewRecorder()
	mw.LoadSession(mw.RequireAny("inventory.view")(ok)).ServeHTTP(rec, allowed)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	denied := httptest.NewRequest(http.MethodGet, "/", nil)
	denied.AddCookie(cookie)
	rec = httptest.NewRecorder()
	mw.LoadSession(mw.RequireAll("inventory.transfer")(ok)).ServeHTTP(rec, denied)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}
