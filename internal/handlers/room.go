// internal/handlers/room.go
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/unoroom/unoroom/internal/room"
)

type createRoomRequest struct {
	Name string `json:"name"`
}

// CreateRoomHandler creates an ephemeral in-memory room. The caller becomes
// the host; the OnEmpty callback wires automatic removal.
func CreateRoomHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID, _, err := EnsureGuestSession(w, r)
		if err != nil {
			http.Error(w, "failed to establish session", http.StatusInternalServerError)
			return
		}

		var req createRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != "EOF" {
			http.Error(w, "bad room request payload", http.StatusBadRequest)
			return
		}

		name := strings.TrimSpace(req.Name)
		if name != "" && gs.RoomStore.NameInUse(name) {
			http.Error(w, "room name already in use", http.StatusConflict)
			return
		}

		rm := room.NewRoom(name, playerID)
		rm.OnEmpty = func(roomID uuid.UUID) {
			gs.RoomStore.DeleteRoom(roomID)
		}
		gs.RoomStore.AddRoom(rm)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rm.Summarize())
	}
}

// ListRoomsHandler returns the public room directory.
func ListRoomsHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms := gs.RoomStore.ListRooms()
		summaries := make([]room.Summary, 0, len(rooms))
		for _, rm := range rooms {
			summaries = append(summaries, rm.Summarize())
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(summaries)
	}
}

// ResolveRoomCodeHandler maps a join code onto the room's directory entry.
// Expects ?code=ABCDEF.
func ResolveRoomCodeHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("code")))
		if code == "" {
			http.Error(w, "missing code parameter", http.StatusBadRequest)
			return
		}
		rm, ok := gs.RoomStore.GetRoomByCode(code)
		if !ok {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rm.Summarize())
	}
}

// RoomQRHandler renders a PNG QR code that encodes the join URL for a room's
// code, for sharing a room across the table. Expects ?code=ABCDEF.
func RoomQRHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("code")))
		if code == "" {
			http.Error(w, "missing code parameter", http.StatusBadRequest)
			return
		}
		if _, ok := gs.RoomStore.GetRoomByCode(code); !ok {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		base := os.Getenv("PUBLIC_BASE_URL")
		if base == "" {
			base = "http://localhost:8080"
		}
		joinURL := fmt.Sprintf("%s/join?code=%s", strings.TrimRight(base, "/"), code)

		png, err := qrcode.Encode(joinURL, qrcode.Medium, 256)
		if err != nil {
			http.Error(w, "failed to render QR code", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	}
}
