package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/posadmin/posadmin/internal/shared"
)

type stubSource struct {
	perms map[int64][]string
	err   error
}

func (s stubSource) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.perms[userID], nil
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func requestAs(userID int64) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/suppliers", nil)
	sess := &shared.Session{ID: "s"}
	if userID > 0 {
		sess.SetUser(userID)
	}
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func TestRequireAny(t *testing.T) {
	m := Middleware{Service: stubSource{perms: map[int64][]string{1: {"Suppliers.View"}, 2: {"users.view"}}}}
	h := m.RequireAny("suppliers.view", "suppliers.edit")(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, requestAs(1))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, requestAs(2))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, requestAs(0))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAll(t *testing.T) {
	m := Middleware{Service: stubSource{perms: map[int64][]string{1: {"suppliers.view"}, 2: {"suppliers.view", "suppliers.delete"}}}}
	h := m.RequireAll("suppliers.view", "suppliers.delete")(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, requestAs(1))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, requestAs(2))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAPIRequireAnyUsesEnvelope(t *testing.T) {
	m := Middleware{Service: stubSource{perms: map[int64][]string{2: {"suppliers.view"}}}}
	h := m.APIRequireAny(shared.PermUsersEdit)(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, requestAs(0))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, requestAs(2))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLookupFailureIs500(t *testing.T) {
	m := Middleware{Service: stubSource{err: errors.New("db down")}}
	rec := httptest.NewRecorder()
	m.APIRequireAny("users.edit")(okHandler).ServeHTTP(rec, requestAs(1))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCanUsesLoadedPermissions(t *testing.T) {
	m := Middleware{Service: stubSource{perms: map[int64][]string{1: {"suppliers.view", "suppliers.delete"}}}}
	var canDelete, canImport bool
	h := m.RequireAny("suppliers.view")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		canDelete = m.Can(r, "suppliers.delete")
		canImport = m.Can(r, "suppliers.import")
		assert.Len(t, PermissionsFromContext(r.Context()), 2)
	}))
	h.ServeHTTP(httptest.NewRecorder(), requestAs(1))
	assert.True(t, canDelete)
	assert.False(t, canImport)
}
