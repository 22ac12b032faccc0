package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSRFEnsureAndVerify(t *testing.T) {
	m := NewCSRFManager("csrfsecret")
	sess := &Session{ID: "abc"}
	token, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	again, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, token, again)

	assert.NoError(t, m.VerifyToken(context.Background(), sess, token))
	assert.ErrorIs(t, m.VerifyToken(context.Background(), sess, "nope"), ErrCSRFTokenMismatch)
	assert.ErrorIs(t, m.VerifyToken(context.Background(), sess, ""), ErrCSRFTokenMissing)
	assert.ErrorIs(t, m.VerifyToken(context.Background(), nil, token), ErrCSRFTokenMissing)
}

func TestTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/users/send-otp", strings.NewReader(`{}`))
	req.Header.Set(CSRFHeader, "header-token")
	assert.Equal(t, "header-token", TokenFromRequest(req))

	form := url.Values{CSRFFormField: {"form-token"}}
	req = httptest.NewRequest(http.MethodPost, "/suppliers", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	assert.Equal(t, "form-token", TokenFromRequest(req))
}

func TestPagination(t *testing.T) {
	p := NewPagination(3, 10, 45)
	assert.Equal(t, 5, p.TotalPages)
	assert.Equal(t, 20, p.Offset())
	assert.True(t, p.HasPrev())
	assert.True(t, p.HasNext())

	p = NewPagination(0, 0, 0)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 20, p.PerPage)
	assert.False(t, p.HasNext())

	page, per := PageFromQuery(url.Values{"page": {"2"}, "per_page": {"500"}}, 25, 100)
	assert.Equal(t, 2, page)
	assert.Equal(t, 100, per)
}

func TestActivityLogValidation(t *testing.T) {
	assert.Error(t, ActivityLog{Action: "supplier.create"}.validate())
	assert.NoError(t, ActivityLog{Action: "supplier.create", EntityType: "supplier", EntityID: "1"}.validate())

	var logger *ActivityLogger
	assert.Error(t, logger.Record(context.Background(), ActivityLog{}))
}
