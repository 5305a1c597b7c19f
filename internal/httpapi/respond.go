package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"grantflow.org/internal/audit"
	"grantflow.org/internal/auth"
	"grantflow.org/internal/grants"
	"grantflow.org/internal/lifecycle"
	"grantflow.org/internal/obs"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeErrorPayload(w, r, code, map[string]any{"error": msg})
}

func writeErrorPayload(w http.ResponseWriter, r *http.Request, code int, payload map[string]any) {
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// decodeOptionalJSON accepts an empty body.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.ContentLength == 0 {
		return nil
	}
	return decodeJSON(w, r, dst)
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("limit must be between " + strconv.Itoa(min) + " and " + strconv.Itoa(max))
	}
	return val, nil
}

// handleServiceError maps control plane errors onto HTTP responses.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		denied  *auth.PermissionDeniedError
		illegal *lifecycle.IllegalTransitionError
	)
	switch {
	case errors.As(err, &denied):
		writeErrorPayload(w, r, http.StatusForbidden, map[string]any{
			"error":  "permission denied",
			"reason": denied.Reason,
		})
	case errors.As(err, &illegal):
		writeErrorPayload(w, r, http.StatusBadRequest, map[string]any{
			"error": illegal.Error(),
			"from":  illegal.From,
			"to":    illegal.To,
		})
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, lifecycle.ErrMissingActor):
		writeError(w, r, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, grants.ErrNotFound), errors.Is(err, lifecycle.ErrUnknownKind):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, lifecycle.ErrConflict):
		writeError(w, r, http.StatusConflict, "concurrent modification, retry")
	case errors.Is(err, grants.ErrAlreadyExists),
		errors.Is(err, grants.ErrActiveDependents),
		errors.Is(err, grants.ErrChecklistFrozen):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, grants.ErrInvalidInput), errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		obs.FromContext(r.Context()).Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// auditEvent logs an event that is not persisted in the trail.
func auditEvent(r *http.Request, event string, fields map[string]any) {
	if err := audit.LogEvent(r.Context(), event, fields); err != nil {
		obs.FromContext(r.Context()).Warn("audit event dropped", zap.String("event", event), zap.Error(err))
	}
}
