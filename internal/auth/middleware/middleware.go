package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mind-engage/ieltsprep/internal/rbac"
)

// CookieName is the auth cookie shared with the score-save and identity APIs.
const CookieName = "token"

var ErrInvalidToken = errors.New("invalid token")

type AuthService struct {
	hmac   []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

func NewAuthService(secret string, ttl time.Duration, secureCookie bool) *AuthService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthService{hmac: []byte(secret), ttl: ttl, secure: secureCookie, now: time.Now}
}

type Claims struct {
	Sub      string `json:"sub"`
	Role     string `json:"role"` // "student" or "admin"
	Email    string `json:"email"`
	Name     string `json:"name"`
	Approved bool   `json:"approved"`
	jwt.RegisteredClaims
}

func (a *AuthService) IssueJWT(u User) (string, error) {
	now := a.now()
	claims := &Claims{
		Sub:      u.ID,
		Role:     u.Role,
		Email:    u.Email,
		Name:     u.Name,
		Approved: u.Approved,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "ieltsprep",
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(a.hmac)
}

func (a *AuthService) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.hmac, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || c.Sub == "" {
		return nil, ErrInvalidToken
	}
	return c, nil
}

// SetCookie issues a token for u and writes it as the auth cookie.
func (a *AuthService) SetCookie(w http.ResponseWriter, u User) (string, error) {
	tok, err := a.IssueJWT(u)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    tok,
		Path:     "/",
		MaxAge:   int(a.ttl.Seconds()),
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return tok, nil
}

func (a *AuthService) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// TokenFromRequest returns the auth cookie, falling back to a bearer header.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// Authenticate rejects requests without a valid token and puts the caller's
// subject, role and claims into the request context.
func Authenticate(a *AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := TokenFromRequest(r)
			if tok == "" {
				http.Error(w, "missing token", http.StatusUnauthorized)
				return
			}
			c, err := a.Parse(tok)
			if err != nil {
				http.Error(w, "bad token", http.StatusUnauthorized)
				return
			}
			ctx := WithSubject(r.Context(), c.Sub)
			ctx = rbac.WithRole(ctx, c.Role)
			ctx = WithClaims(ctx, c)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireApproved must run after Authenticate.
func RequireApproved(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := ClaimsFromContext(r.Context())
		if c == nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !c.Approved && c.Role != rbac.RoleAdmin {
			http.Error(w, "account pending approval", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
