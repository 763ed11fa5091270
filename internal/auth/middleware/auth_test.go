package auth_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	auth "github.com/mind-engage/ieltsprep/internal/auth/middleware"
	"github.com/mind-engage/ieltsprep/internal/db"
	"github.com/mind-engage/ieltsprep/internal/rbac"
)

func newUsers(t *testing.T) *auth.SQLUserStore {
	t.Helper()
	h, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	h.SetMaxOpenConns(1)
	t.Cleanup(func() { h.Close() })
	require.NoError(t, db.EnsureSchema(context.Background(), h, db.DriverSQLite))
	return auth.NewSQLUserStore(h)
}

func router(a *auth.AuthService, users auth.UserStore) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/auth/login", auth.LoginHandler(a, users))
	r.Post("/api/auth/register", auth.RegisterHandler(users))
	r.Post("/api/auth/logout", auth.LogoutHandler(a))
	r.Get("/api/checkLogin", auth.CheckLoginHandler(a))
	r.Group(func(r chi.Router) {
		r.Use(auth.Authenticate(a))
		r.Post("/api/auth/refresh", auth.RefreshHandler(a, users))
		r.Post("/api/auth/password", auth.ChangePasswordHandler(users))
		r.With(auth.RequireApproved).Get("/api/private", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(auth.SubjectFromContext(r.Context()) + ":" + rbac.RoleFromContext(r.Context())))
		})
	})
	return r
}

func do(h http.Handler, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func tokenCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	t.Fatal("no auth cookie set")
	return nil
}

func TestIssueAndParse(t *testing.T) {
	a := auth.NewAuthService("secret", time.Hour, false)
	tok, err := a.IssueJWT(auth.User{ID: "u1", Role: rbac.RoleStudent, Email: "ana@example.com", Name: "Ana", Approved: true})
	require.NoError(t, err)

	c, err := a.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", c.Sub)
	assert.Equal(t, "ana@example.com", c.Email)
	assert.True(t, c.Approved)

	_, err = auth.NewAuthService("other", time.Hour, false).Parse(tok)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
	_, err = a.Parse("garbage")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestLoginFlow(t *testing.T) {
	ctx := context.Background()
	users := newUsers(t)
	a := auth.NewAuthService("secret", time.Hour, true)
	h := router(a, users)

	_, err := users.Create(ctx, auth.User{Email: "Ana@Example.com", Name: "Ana", Approved: true}, "correct horse")
	require.NoError(t, err)

	rec := do(h, http.MethodPost, "/api/auth/login", `{"email":"ana@example.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = do(h, http.MethodPost, "/api/auth/login", `{"email":"nobody@example.com","password":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(h, http.MethodPost, "/api/auth/login", `{"email":"ana@example.com","password":"correct horse"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := tokenCookie(t, rec)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)

	rec = do(h, http.MethodGet, "/api/checkLogin", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var check struct {
		LoggedIn bool `json:"loggedIn"`
		User     struct {
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &check))
	assert.True(t, check.LoggedIn)
	assert.Equal(t, "ana@example.com", check.User.Email)
	assert.Equal(t, rbac.RoleStudent, check.User.Role)

	rec = do(h, http.MethodGet, "/api/private", "", cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasSuffix(rec.Body.String(), ":student"))

	rec = do(h, http.MethodPost, "/api/auth/password", `{"old_password":"nope","new_password":"battery staple"}`, cookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(h, http.MethodPost, "/api/auth/password", `{"old_password":"correct horse","new_password":"battery staple"}`, cookie)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(h, http.MethodPost, "/api/auth/login", `{"email":"ana@example.com","password":"battery staple"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, http.MethodPost, "/api/auth/logout", "", cookie)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, -1, tokenCookie(t, rec).MaxAge)
}

func TestCheckLoginLoggedOut(t *testing.T) {
	h := router(auth.NewAuthService("secret", time.Hour, false), newUsers(t))

	rec := do(h, http.MethodGet, "/api/checkLogin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"loggedIn":false}`, rec.Body.String())

	rec = do(h, http.MethodGet, "/api/checkLogin", "", &http.Cookie{Name: auth.CookieName, Value: "expired"})
	assert.JSONEq(t, `{"loggedIn":false}`, rec.Body.String())
}

func TestUnapprovedAccountIsGatedUntilRefresh(t *testing.T) {
	ctx := context.Background()
	users := newUsers(t)
	a := auth.NewAuthService("secret", time.Hour, false)
	h := router(a, users)

	rec := do(h, http.MethodPost, "/api/auth/register", `{"email":"ben@example.com","name":"Ben","password":"longenough"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(h, http.MethodPost, "/api/auth/register", `{"email":"ben@example.com","name":"Ben","password":"longenough"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(h, http.MethodPost, "/api/auth/login", `{"email":"ben@example.com","password":"longenough"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := tokenCookie(t, rec)

	assert.Equal(t, http.StatusForbidden, do(h, http.MethodGet, "/api/private", "", cookie).Code)
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/api/private", "").Code)

	u, _, err := users.FindByEmail(ctx, "ben@example.com")
	require.NoError(t, err)
	require.NoError(t, users.SetApproved(ctx, u.ID, true))

	rec = do(h, http.MethodPost, "/api/auth/refresh", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/private", "", tokenCookie(t, rec)).Code)
}

func TestEnsureUser(t *testing.T) {
	ctx := context.Background()
	users := newUsers(t)

	first, err := auth.EnsureUser(ctx, users, auth.User{Email: "admin@example.com", Name: "Admin", Role: rbac.RoleAdmin, Approved: true}, "pw")
	require.NoError(t, err)
	again, err := auth.EnsureUser(ctx, users, auth.User{Email: "admin@example.com", Name: "Other"}, "pw2")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "Admin", again.Name)

	assert.ErrorIs(t, users.SetApproved(ctx, "missing", true), auth.ErrUserNotFound)
}
