package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
)

type publicUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	User        User   `json:"user"`
}

// POST /api/auth/login  { "email": "...", "password": "..." }
func LoginHandler(a *AuthService, users UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		u, hash, err := users.FindByEmail(r.Context(), req.Email)
		if err != nil && !errors.Is(err, ErrUserNotFound) {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if err != nil || bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		tok, err := a.SetCookie(w, u)
		if err != nil {
			http.Error(w, "issue token", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, loginResponse{AccessToken: tok, User: u})
	}
}

// POST /api/auth/register creates an unapproved student account.
func RegisterHandler(users UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Name     string `json:"name"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Name) == "" || len(req.Password) < 8 {
			http.Error(w, "email, name and a password of at least 8 characters are required", http.StatusBadRequest)
			return
		}
		u, err := users.Create(r.Context(), User{Email: req.Email, Name: strings.TrimSpace(req.Name), Role: "student"}, req.Password)
		if errors.Is(err, ErrUserExists) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, u)
	}
}

// POST /api/auth/refresh re-issues the cookie from the stored user, so role
// and approval changes take effect without a new login.
func RefreshHandler(a *AuthService, users UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := SubjectFromContext(r.Context())
		if sub == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		u, err := users.FindByID(r.Context(), sub)
		if errors.Is(err, ErrUserNotFound) {
			a.ClearCookie(w)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		tok, err := a.SetCookie(w, u)
		if err != nil {
			http.Error(w, "issue token", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, loginResponse{AccessToken: tok, User: u})
	}
}

// POST /api/auth/password { "old_password": "...", "new_password": "..." }
func ChangePasswordHandler(users UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := SubjectFromContext(r.Context())
		if userID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req struct {
			OldPassword string `json:"old_password"`
			NewPassword string `json:"new_password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if len(req.NewPassword) < 8 {
			http.Error(w, "new password must be at least 8 characters", http.StatusBadRequest)
			return
		}
		err := users.SetPassword(r.Context(), userID, req.OldPassword, req.NewPassword)
		switch {
		case errors.Is(err, ErrUserNotFound):
			http.Error(w, "user not found", http.StatusNotFound)
		case errors.Is(err, ErrWrongPassword):
			http.Error(w, err.Error(), http.StatusForbidden)
		case err != nil:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}
}

func LogoutHandler(a *AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.ClearCookie(w)
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /api/checkLogin answers {loggedIn, user} and never fails with 401, so
// callers can tell "logged out" from "identity service down".
func CheckLoginHandler(a *AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := struct {
			LoggedIn bool        `json:"loggedIn"`
			User     *publicUser `json:"user,omitempty"`
		}{}
		if tok := TokenFromRequest(r); tok != "" {
			if c, err := a.Parse(tok); err == nil {
				resp.LoggedIn = true
				resp.User = &publicUser{ID: c.Sub, Name: c.Name, Email: c.Email, Role: c.Role}
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// POST /api/users/{id}/approve (admin)
func ApproveHandler(users UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Approved *bool `json:"approved"`
		}
		approved := true
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "bad json", http.StatusBadRequest)
				return
			}
			if req.Approved != nil {
				approved = *req.Approved
			}
		}
		err := users.SetApproved(r.Context(), chi.URLParam(r, "id"), approved)
		if errors.Is(err, ErrUserNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
