package users

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/posadmin/posadmin/internal/platform/httpx"
	"github.com/posadmin/posadmin/internal/shared"
)

// MountAPI registers the JSON endpoints under /api/users.
func (h *Handler) MountAPI(r chi.Router) {
	r.NotFound(httpx.NotFound)
	r.MethodNotAllowed(httpx.MethodNotAllowed)
	r.Use(h.rbac.APIRequireAny(shared.PermUsersEdit))
	r.Post("/toggle-status", h.apiToggleStatus)
	r.Get("/generate-id", h.apiGenerateID)
	r.Post("/send-otp", h.apiSendOTP)
	r.Post("/verify-otp", h.apiVerifyOTP)
}

func (h *Handler) apiToggleStatus(w http.ResponseWriter, r *http.Request) {
	in, err := readInput(r)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "Malformed request body")
		return
	}
	targetID, err := strconv.ParseInt(in["user_id"], 10, 64)
	if err != nil || targetID <= 0 {
		httpx.RespondError(w, ErrInvalidUserID)
		return
	}
	actorID, _ := shared.CurrentUserID(r.Context())
	status, err := h.service.ToggleStatus(r.Context(), actorID, targetID, clientIP(r))
	if err != nil {
		h.apiError(w, "toggle user status", err)
		return
	}
	httpx.Success(w, fmt.Sprintf("User status changed to %s", status), map[string]any{
		"user_id": targetID,
		"status":  status,
	})
}

func (h *Handler) apiGenerateID(w http.ResponseWriter, r *http.Request) {
	code, err := h.service.GenerateCode(r.Context())
	if err != nil {
		h.apiError(w, "generate user id", err)
		return
	}
	httpx.Success(w, "User ID generated", map[string]any{"user_id": code})
}

func (h *Handler) apiSendOTP(w http.ResponseWriter, r *http.Request) {
	in, err := readInput(r)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "Malformed request body")
		return
	}
	actorID, _ := shared.CurrentUserID(r.Context())
	ttl, err := h.service.SendOTP(r.Context(), actorID, in["email"])
	if err != nil {
		h.apiError(w, "send otp", err)
		return
	}
	httpx.Success(w, "Verification code sent", map[string]any{"expires_in": int(ttl.Seconds())})
}

func (h *Handler) apiVerifyOTP(w http.ResponseWriter, r *http.Request) {
	in, err := readInput(r)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "Malformed request body")
		return
	}
	actorID, _ := shared.CurrentUserID(r.Context())
	if err := h.service.VerifyOTP(r.Context(), actorID, in["email"], in["otp"]); err != nil {
		h.apiError(w, "verify otp", err)
		return
	}
	httpx.Success(w, "Email verified", map[string]any{"verified": true})
}

func (h *Handler) apiError(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

// readInput flattens a JSON object or form body into string values.
func readInput(r *http.Request) (map[string]string, error) {
	out := make(map[string]string)
	if httpx.IsJSON(r) {
		var raw map[string]any
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		for k, v := range raw {
			switch val := v.(type) {
			case nil:
			case string:
				out[k] = strings.TrimSpace(val)
			case json.Number:
				out[k] = val.String()
			case bool:
				out[k] = strconv.FormatBool(val)
			default:
				return nil, errors.New("unsupported value for " + k)
			}
		}
		return out, nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	for k, v := range r.PostForm {
		if len(v) > 0 {
			out[k] = strings.TrimSpace(v[0])
		}
	}
	return out, nil
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
