package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/abuiliazeed/financial-projections/internal/auth"
	"github.com/abuiliazeed/financial-projections/internal/lib/jwt"
	"github.com/abuiliazeed/financial-projections/internal/storage"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// badRequest is a request that fails validation before reaching a
// collaborator. Its message is returned to the client as is.
type badRequest string

func (e badRequest) Error() string { return string(e) }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to exactly one status. Anything unrecognised is logged
// and reported as an internal error without detail.
func (s *APIServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		bad        badRequest
		validation *auth.ValidationError
	)

	switch {
	case errors.As(err, &bad):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: bad.Error()})
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: validation.Msg})
	case errors.Is(err, storage.ErrInvalidType):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid type"})
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Invalid username or password"})
	case errors.Is(err, jwt.ErrInvalidToken), errors.Is(err, jwt.ErrExpiredToken):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Unauthorized"})
	case errors.Is(err, auth.ErrUsernameTaken):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "Username is already taken"})
	case errors.Is(err, storage.ErrTypeInUse):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "Type is still used by entries"})
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Not found"})
	default:
		s.logger.Error("Request failed",
			slog.String("request_id", RequestIDFromContext(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return badRequest("Invalid request body")
	}
	return nil
}

// queryInt reads an optional integer query parameter. It returns 0 when the
// parameter is absent.
func queryInt(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, badRequest("Invalid " + name)
	}
	return v, nil
}

func (s *APIServer) notFound(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Not found"})
		return
	}
	http.NotFound(w, r)
}

func (s *APIServer) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
		return
	}
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}
