package rbac_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mind-engage/ieltsprep/internal/rbac"
)

func TestCheckerHas(t *testing.T) {
	c := rbac.NewChecker(nil)

	assert.True(t, c.Has(rbac.RoleStudent, rbac.PermSessionTake))
	assert.True(t, c.Has(rbac.RoleStudent, rbac.PermScoreSave))
	assert.False(t, c.Has(rbac.RoleStudent, rbac.PermScoreExport))
	assert.True(t, c.Has(rbac.RoleAdmin, rbac.PermScoreExport))
	assert.False(t, c.Has("guest", rbac.PermTestView))

	custom := rbac.NewChecker(map[string][]string{"proctor": {"session:*"}})
	assert.True(t, custom.Has("proctor", "session:take"))
	assert.False(t, custom.Has("proctor", "score:save"))
	assert.True(t, c.Has(rbac.RoleService, rbac.PermTestKey))
	assert.False(t, c.Has(rbac.RoleStudent, rbac.PermTestKey))
	assert.False(t, c.Has(rbac.RoleService, rbac.PermSessionTake))
}

func TestRequire(t *testing.T) {
	h := rbac.Require(rbac.PermScoreExport)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		role string
		want int
	}{
		{"", http.StatusUnauthorized},
		{rbac.RoleStudent, http.StatusForbidden},
		{rbac.RoleAdmin, http.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.role != "" {
			req = req.WithContext(rbac.WithRole(req.Context(), tc.role))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, tc.want, rec.Code, tc.role)
	}
}

func TestCheckerRequireWritesJSON(t *testing.T) {
	c := rbac.NewChecker(map[string][]string{"proctor": {"session:*"}})
	h := c.Require("score:save")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(rbac.WithRole(req.Context(), "proctor"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"forbidden","permission":"score:save"}`, rec.Body.String())
}
