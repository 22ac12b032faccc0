package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/posadmin/posadmin/internal/platform/httpx"
	"github.com/posadmin/posadmin/internal/rbac"
	"github.com/posadmin/posadmin/internal/shared"
	"github.com/posadmin/posadmin/internal/view"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
	validate  *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, rbac: rbac, validate: validator.New()}
}

// MountRoutes registers the HTML user pages.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUsersView, shared.PermUsersEdit))
		r.Get("/", h.listUsers)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUsersEdit))
		r.Get("/new", h.showCreateUserForm)
		r.Post("/", h.createUser)
	})
}

type formErrors map[string]string

type formPage struct {
	Form   CreateInput
	Roles  []rbac.Role
	Errors formErrors
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		h.render(w, r, "pages/users/user_list.html", "Users", map[string]any{"Errors": formErrors{"general": httpx.Message(err)}}, http.StatusInternalServerError)
		return
	}
	currentID, _ := shared.CurrentUserID(r.Context())
	h.render(w, r, "pages/users/user_list.html", "Users", map[string]any{"Users": users, "CurrentUserID": currentID}, http.StatusOK)
}

func (h *Handler) showCreateUserForm(w http.ResponseWriter, r *http.Request) {
	code, err := h.service.GenerateCode(r.Context())
	if err != nil {
		h.logger.Warn("pre-generate user id", slog.Any("error", err))
	}
	h.renderForm(w, r, CreateInput{UserCode: code}, formErrors{}, http.StatusOK)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	roleID, _ := strconv.ParseInt(r.PostFormValue("role_id"), 10, 64)
	in := CreateInput{
		UserCode: strings.TrimSpace(r.PostFormValue("user_code")),
		Name:     strings.TrimSpace(r.PostFormValue("name")),
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
		RoleID:   roleID,
	}
	errs := formErrors{}
	if err := h.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs[fe.Field()] = fieldMessage(fe)
			}
		}
	}
	if len(errs) == 0 {
		actorID, _ := shared.CurrentUserID(r.Context())
		if _, err := h.service.CreateUser(r.Context(), actorID, in); err != nil {
			if httpx.StatusFor(err) == http.StatusInternalServerError {
				h.logger.Error("create user", slog.Any("error", err))
			}
			errs["general"] = httpx.Message(err)
		}
	}
	if len(errs) > 0 {
		in.Password = ""
		h.renderForm(w, r, in, errs, http.StatusBadRequest)
		return
	}
	h.redirectWithFlash(w, r, "/users", shared.FlashSuccess, "User created")
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, in CreateInput, errs formErrors, status int) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
	}
	h.render(w, r, "pages/users/user_form.html", "New user", formPage{Form: in, Roles: roles, Errors: errs}, status)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Permissions: rbac.PermissionsFromContext(r.Context()),
		Data:        data,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.RenderTo(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "gt":
		return fe.Field() + " is required"
	case "email":
		return "Enter a valid email address"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	default:
		return fe.Field() + " is invalid"
	}
}
