package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/abuiliazeed/financial-projections/internal/lib/jwt"
	"github.com/abuiliazeed/financial-projections/internal/storage"
)

type AuthRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type SignupResponse struct {
	Message string `json:"message"`
	UserID  int64  `json:"userId"`
}

type UserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type LoginResponse struct {
	Message string       `json:"message"`
	User    UserResponse `json:"user"`
}

func (s *APIServer) signupHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AuthRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		id, err := s.auth.Register(r.Context(), req.Username, req.Password)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, SignupResponse{Message: "User registered successfully", UserID: id})
	}
}

func (s *APIServer) loginHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AuthRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		user, err := s.auth.Login(r.Context(), req.Username, req.Password)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		token, err := s.tokens.Issue(user.ID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.setSessionCookie(w, token)
		s.logger.Info("User logged in", slog.Int64("user_id", user.ID))

		writeJSON(w, http.StatusOK, LoginResponse{
			Message: "Login successful",
			User:    UserResponse{ID: user.ID, Username: user.Username},
		})
	}
}

func (s *APIServer) logoutHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		s.clearSessionCookie(w)
		writeJSON(w, http.StatusOK, messageResponse{Message: "Logout successful"})
	}
}

func (s *APIServer) meHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserIDFromContext(r.Context())

		user, err := s.storage.UserByID(r.Context(), userID)
		if errors.Is(err, storage.ErrNotFound) {
			// Valid signature for a user that no longer exists.
			s.clearSessionCookie(w)
			s.writeError(w, r, jwt.ErrInvalidToken)
			return
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, UserResponse{ID: user.ID, Username: user.Username})
	}
}
