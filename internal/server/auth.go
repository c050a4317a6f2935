// Package server implements the connection-scoped authentication handshake:
// every realtime connection must present a bearer token before a session is
// created.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/mbeckers/relaychat/internal/apperror"
	"github.com/mbeckers/relaychat/internal/auth"
	"github.com/mbeckers/relaychat/internal/store"
)

// Rejection reasons surfaced to a connecting client, verbatim.
const (
	reasonTokenRequired = "Authentication token is required"
	reasonTokenInvalid  = "Invalid token"
	reasonTokenExpired  = "Token expired"
	reasonAuthFailed    = "Authentication failed"
	reasonUserNotFound  = "User not found"
)

// bearerToken extracts the credential from the handshake: the token query
// parameter, or an Authorization: Bearer header as a fallback.
func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// authenticateConnection validates the handshake credential and resolves it to
// a user. It runs before any session-scoped state is created: on any rejection
// the caller refuses the connection and presence is left untouched.
func (s *Server) authenticateConnection(ctx context.Context, r *http.Request) (*store.User, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, apperror.Unauthorized(reasonTokenRequired, nil)
	}

	subject, err := s.tokens.Verify(token)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrTokenExpired):
			return nil, apperror.Unauthorized(reasonTokenExpired, err)
		case errors.Is(err, auth.ErrTokenInvalid), errors.Is(err, auth.ErrTokenMalformed):
			return nil, apperror.Unauthorized(reasonTokenInvalid, err)
		default:
			return nil, apperror.Unauthorized(reasonAuthFailed, err)
		}
	}

	user, err := s.users.FindByID(ctx, subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperror.Unauthorized(reasonUserNotFound, err)
		}
		log.Printf("User lookup failed during handshake: %v", err)
		return nil, apperror.Unauthorized(reasonAuthFailed, err)
	}

	return user, nil
}
