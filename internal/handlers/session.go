// internal/handlers/session.go
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/unoroom/unoroom/internal/auth"
)

const sessionCookieName = "session_token"

// maxNameLen keeps display names short enough for room listings.
const maxNameLen = 24

// sanitizeName trims and bounds a requested display name, falling back to a
// generated guest name.
func sanitizeName(requested string, playerID uuid.UUID) string {
	name := strings.TrimSpace(requested)
	if name == "" {
		return fmt.Sprintf("Guest_%s", playerID.String()[:4])
	}
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	return name
}

// mintGuestSession creates a fresh guest identity and sets its cookie.
func mintGuestSession(w http.ResponseWriter, requestedName string) (uuid.UUID, string, error) {
	playerID := uuid.New()
	name := sanitizeName(requestedName, playerID)

	token, err := auth.CreateGuestJWT(playerID.String(), name)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("failed to create guest JWT: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		HttpOnly: true,
		Path:     "/",
		MaxAge:   auth.TOKEN_EXPIRE_TIME_SEC,
	})
	return playerID, name, nil
}

// EnsureGuestSession returns the caller's guest identity, minting one (and
// setting the session cookie) if the request carries no valid token. The
// optional "name" query parameter seeds the display name of a new session.
func EnsureGuestSession(w http.ResponseWriter, r *http.Request) (uuid.UUID, string, error) {
	cookieHeader := r.Header.Get("Cookie")
	if !strings.Contains(cookieHeader, sessionCookieName+"=") {
		return mintGuestSession(w, r.URL.Query().Get("name"))
	}

	token := extractCookieToken(cookieHeader, sessionCookieName)
	sess, err := auth.AuthenticateJWT(token)
	if err != nil {
		// Expired or tampered token: hand out a fresh identity.
		return mintGuestSession(w, r.URL.Query().Get("name"))
	}

	playerID, err := uuid.Parse(sess.PlayerID)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("invalid player ID in token: %w", err)
	}
	return playerID, sess.Name, nil
}

// SessionHandler mints or refreshes a guest session and echoes the identity
// back. Clients call this before opening any WebSocket.
func SessionHandler(w http.ResponseWriter, r *http.Request) {
	playerID, name, err := EnsureGuestSession(w, r)
	if err != nil {
		http.Error(w, "failed to establish session", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"player_id": playerID.String(),
		"name":      name,
	})
}
