// Package server exposes the HTTP account endpoints consumed by the web
// client: registration, login, logout, and the current-user lookup.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/mbeckers/relaychat/internal/apperror"
	"github.com/mbeckers/relaychat/internal/auth"
	"github.com/mbeckers/relaychat/internal/store"
)

type contextKey string

// userIDKey carries the authenticated user id through the request context.
const userIDKey contextKey = "userID"

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=30,alphanum"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// LoginRequest is the body of POST /api/auth/login. Login accepts a username
// or an email address.
type LoginRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is the body returned by a successful login.
type LoginResponse struct {
	Token string      `json:"token"`
	User  *store.User `json:"user"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Error writing JSON response: %v", err)
	}
}

func (s *Server) decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.BadRequest("Invalid request body", err)
	}
	if err := s.validate.Struct(dst); err != nil {
		return apperror.BadRequest("Validation failed: "+err.Error(), err)
	}
	return nil
}

// HandleRegister creates a new account. Duplicate usernames and emails are
// reported as conflicts.
func (s *Server) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		apperror.Write(w, err)
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		apperror.Write(w, apperror.Internal("Failed to create user", err))
		return
	}

	user := &store.User{
		Username: req.Username,
		Email:    strings.ToLower(req.Email),
		Password: hashed,
	}

	created, err := s.users.Create(r.Context(), user)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			apperror.Write(w, apperror.Conflict("Username or email already exists", err))
			return
		}
		log.Printf("User creation failed: %v", err)
		apperror.Write(w, apperror.Internal("Failed to create user", err))
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// HandleLogin verifies credentials and issues a bearer token for the realtime
// handshake and the authenticated API endpoints.
func (s *Server) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		apperror.Write(w, err)
		return
	}

	user, err := s.users.FindByLogin(r.Context(), req.Login)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Do not reveal whether the login or the password was wrong.
			apperror.Write(w, apperror.Unauthorized("Invalid credentials", err))
			return
		}
		log.Printf("User lookup failed during login: %v", err)
		apperror.Write(w, apperror.Internal("Failed to log in", err))
		return
	}

	if !auth.CheckPassword(user.Password, req.Password) {
		apperror.Write(w, apperror.Unauthorized("Invalid credentials", nil))
		return
	}

	token, err := s.tokens.Issue(user.ID.Hex())
	if err != nil {
		log.Printf("Token issue failed for user %s: %v", user.Username, err)
		apperror.Write(w, apperror.Internal("Failed to log in", err))
		return
	}

	user.Password = ""
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, User: user})
}

// HandleLogout marks the authenticated user offline and records last-seen.
func (s *Server) HandleLogout(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		apperror.Write(w, apperror.Unauthorized(reasonAuthFailed, nil))
		return
	}

	now := time.Now().UTC()
	if err := s.users.UpdateStatus(r.Context(), userID, store.StatusOffline, &now); err != nil {
		log.Printf("Logout status update failed for user %s: %v", userID, err)
		apperror.Write(w, apperror.Internal("Failed to log out", err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleMe returns the authenticated user's record.
func (s *Server) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		apperror.Write(w, apperror.Unauthorized(reasonAuthFailed, nil))
		return
	}

	user, err := s.users.FindByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			apperror.Write(w, apperror.NotFound(reasonUserNotFound, err))
			return
		}
		log.Printf("User lookup failed: %v", err)
		apperror.Write(w, apperror.Internal("Failed to load user", err))
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// requireAuth verifies the bearer token on API requests and stores the subject
// in the request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			apperror.Write(w, apperror.Unauthorized(reasonTokenRequired, nil))
			return
		}

		subject, err := s.tokens.Verify(token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrTokenExpired):
				apperror.Write(w, apperror.Unauthorized(reasonTokenExpired, err))
			default:
				apperror.Write(w, apperror.Unauthorized(reasonTokenInvalid, err))
			}
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok
}
