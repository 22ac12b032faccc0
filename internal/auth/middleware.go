package auth

import (
	"net/http"
	"net/url"

	"github.com/posadmin/posadmin/internal/platform/httpx"
	"github.com/posadmin/posadmin/internal/shared"
)

// RequireLogin rejects anonymous requests: JSON callers get a 401 envelope,
// browsers are redirected to the login page.
func RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := shared.CurrentUserID(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}
		if httpx.WantsJSON(r) {
			httpx.Fail(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		target := "/auth/login"
		if r.Method == http.MethodGet && r.URL.Path != "/" {
			target += "?next=" + url.QueryEscape(r.URL.RequestURI())
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
	})
}
