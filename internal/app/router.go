package app

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/posadmin/posadmin/internal/audit"
	"github.com/posadmin/posadmin/internal/auth"
	"github.com/posadmin/posadmin/internal/observability"
	"github.com/posadmin/posadmin/internal/platform/httpx"
	"github.com/posadmin/posadmin/internal/rbac"
	"github.com/posadmin/posadmin/internal/shared"
	"github.com/posadmin/posadmin/internal/suppliers"
	"github.com/posadmin/posadmin/internal/users"
	"github.com/posadmin/posadmin/internal/view"
	"github.com/posadmin/posadmin/jobs"
	"github.com/posadmin/posadmin/web"
)

// Pinger is a dependency checked by /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Templates        *view.Engine
	SessionManager   *shared.SessionManager
	CSRFManager      *shared.CSRFManager
	RBACMiddleware   rbac.Middleware
	AuthHandler      *auth.Handler
	UsersHandler     *users.Handler
	SuppliersHandler *suppliers.Handler
	ActivityHandler  *audit.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
	// Health maps a dependency name to its check. Failing checks turn
	// /healthz into a 503.
	Health map[string]Pinger
}

// NewRouter constructs the chi.Router with the application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}
	r.Get("/healthz", healthHandler(params.Health))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		for _, mw := range MiddlewareStack(MiddlewareConfig{
			Logger:         params.Logger,
			Config:         params.Config,
			SessionManager: params.SessionManager,
			Metrics:        params.Metrics,
		}) {
			r.Use(mw)
		}

		csrf := CSRFMiddleware(params.CSRFManager, params.Logger)

		r.Group(func(r chi.Router) {
			r.Use(csrf)
			r.Route("/auth", params.AuthHandler.MountRoutes)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireLogin)
			r.Use(csrf)
			r.Get("/", homeHandler(params))
			if params.UsersHandler != nil {
				r.Route("/users", params.UsersHandler.MountRoutes)
				r.Route("/api/users", params.UsersHandler.MountAPI)
			}
			if params.SuppliersHandler != nil {
				r.Route("/suppliers", params.SuppliersHandler.MountRoutes)
			}
			if params.ActivityHandler != nil {
				r.Route("/activity", params.ActivityHandler.MountRoutes)
			}
			if params.JobHandler != nil {
				r.Route("/jobs", func(r chi.Router) {
					r.Use(params.RBACMiddleware.APIRequireAny(shared.PermUsersEdit))
					params.JobHandler.MountRoutes(r)
				})
			}
		})
	})
	return r
}

func homeHandler(params RouterParams) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		csrfToken, _ := params.CSRFManager.EnsureToken(r.Context(), sess)
		var flash *shared.FlashMessage
		if sess != nil {
			flash = sess.PopFlash()
		}
		var perms []string
		if userID, ok := shared.CurrentUserID(r.Context()); ok && params.RBACMiddleware.Service != nil {
			var err error
			perms, err = params.RBACMiddleware.Service.EffectivePermissions(r.Context(), userID)
			if err != nil {
				params.Logger.Warn("load permissions for home", slog.Any("error", err))
			}
		}
		data := view.TemplateData{
			Title:       params.Config.AppName,
			CSRFToken:   csrfToken,
			Flash:       flash,
			CurrentPath: r.URL.Path,
			Permissions: perms,
			Data: map[string]any{
				"AppEnv": params.Config.AppEnv,
			},
		}
		if err := params.Templates.Render(w, "pages/home.html", data); err != nil {
			params.Logger.Error("render home", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}
}

// healthHandler reports each dependency; any failure answers 503.
func healthHandler(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check.Ping(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		httpx.JSON(w, status, map[string]any{
			"status": http.StatusText(status),
			"checks": results,
		})
	}
}

func notFound(w http.ResponseWriter, r *http.Request) {
	if httpx.WantsJSON(r) {
		httpx.NotFound(w, r)
		return
	}
	http.NotFound(w, r)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	if httpx.WantsJSON(r) {
		httpx.MethodNotAllowed(w, r)
		return
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}

// staticCacheHandler caches embedded assets in the browser for an hour.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
