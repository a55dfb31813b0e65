// internal/handlers/room_test.go
package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unoroom/unoroom/internal/auth"
	"github.com/unoroom/unoroom/internal/room"
)

// TestRoomCreate checks that /room/create builds an ephemeral room in memory.
func TestRoomCreate(t *testing.T) {
	auth.Init() // ephemeral keys, no external deps needed
	gs := NewGameServer()

	host := uuid.New()
	token, err := auth.CreateGuestJWT(host.String(), "host")
	require.NoError(t, err)

	body := `{"name":"friday night"}`
	req := httptest.NewRequest("POST", "/room/create", bytes.NewBufferString(body))
	req.Header.Set("Cookie", "session_token="+token)
	w := httptest.NewRecorder()

	CreateRoomHandler(gs)(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var summary room.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.NotEqual(t, uuid.Nil, summary.ID)
	assert.Equal(t, "friday night", summary.Name)
	assert.Len(t, summary.Code, 6)

	stored, ok := gs.RoomStore.GetRoom(summary.ID)
	require.True(t, ok)
	assert.Equal(t, host, stored.HostPlayerID)
}

// TestRoomCreateDuplicateName rejects a second room claiming an active name.
func TestRoomCreateDuplicateName(t *testing.T) {
	auth.Init()
	gs := NewGameServer()

	host := uuid.New()
	token, err := auth.CreateGuestJWT(host.String(), "host")
	require.NoError(t, err)

	create := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/room/create", bytes.NewBufferString(`{"name":"Friday Night"}`))
		req.Header.Set("Cookie", "session_token="+token)
		w := httptest.NewRecorder()
		CreateRoomHandler(gs)(w, req)
		return w
	}

	require.Equal(t, http.StatusOK, create().Code)
	assert.Equal(t, http.StatusConflict, create().Code)
}

// TestRoomCreateWithoutToken mints a fresh guest session.
func TestRoomCreateWithoutToken(t *testing.T) {
	auth.Init()
	gs := NewGameServer()

	req := httptest.NewRequest("POST", "/room/create?name=casey", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()

	CreateRoomHandler(gs)(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	cookies := w.Result().Cookies()
	found := false
	for _, ck := range cookies {
		if ck.Name == sessionCookieName && ck.Value != "" {
			found = true
		}
	}
	assert.True(t, found, "a session cookie should be set for a fresh guest")
}

func TestRoomListAndResolve(t *testing.T) {
	auth.Init()
	gs := NewGameServer()

	rm := room.NewRoom("directory entry", uuid.New())
	gs.RoomStore.AddRoom(rm)

	req := httptest.NewRequest("GET", "/room/list", nil)
	w := httptest.NewRecorder()
	ListRoomsHandler(gs)(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var listing []room.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	require.Len(t, listing, 1)
	assert.Equal(t, rm.ID, listing[0].ID)

	req = httptest.NewRequest("GET", "/room/resolve?code="+rm.Code, nil)
	w = httptest.NewRecorder()
	ResolveRoomCodeHandler(gs)(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resolved room.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resolved))
	assert.Equal(t, rm.ID, resolved.ID)

	req = httptest.NewRequest("GET", "/room/resolve?code=ZZZZZZ", nil)
	w = httptest.NewRecorder()
	ResolveRoomCodeHandler(gs)(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoomQR(t *testing.T) {
	auth.Init()
	gs := NewGameServer()

	rm := room.NewRoom("qr room", uuid.New())
	gs.RoomStore.AddRoom(rm)

	req := httptest.NewRequest("GET", "/room/qr?code="+rm.Code, nil)
	w := httptest.NewRecorder()
	RoomQRHandler(gs)(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Body.Bytes())

	req = httptest.NewRequest("GET", "/room/qr", nil)
	w = httptest.NewRecorder()
	RoomQRHandler(gs)(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionHandlerReusesIdentity(t *testing.T) {
	auth.Init()

	req := httptest.NewRequest("GET", "/session?name=casey", nil)
	w := httptest.NewRecorder()
	SessionHandler(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var first map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.Equal(t, "casey", first["name"])

	var token string
	for _, ck := range w.Result().Cookies() {
		if ck.Name == sessionCookieName {
			token = ck.Value
		}
	}
	require.NotEmpty(t, token)

	req = httptest.NewRequest("GET", "/session", nil)
	req.Header.Set("Cookie", sessionCookieName+"="+token)
	w = httptest.NewRecorder()
	SessionHandler(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var second map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.Equal(t, first["player_id"], second["player_id"], "an existing token keeps its identity")
	assert.Equal(t, "casey", second["name"])
}

func TestCreateGameInstanceStartsGame(t *testing.T) {
	auth.Init()
	gs := NewGameServer()

	rm := room.NewRoom("table", uuid.New())
	gs.RoomStore.AddRoom(rm)

	seats := []*room.RoomConnection{
		{PlayerID: uuid.New(), Name: "a", OutChan: make(chan map[string]interface{}, 8)},
		{PlayerID: uuid.New(), Name: "b", OutChan: make(chan map[string]interface{}, 8)},
	}
	g := gs.CreateGameInstance(rm.ID, seats)
	require.NotNil(t, g)
	assert.True(t, g.Started)
	assert.Equal(t, rm.ID, g.RoomID)

	stored, ok := gs.GameStore.GetGame(g.ID)
	require.True(t, ok)
	assert.Same(t, g, stored)

	byRoom := gs.GameStore.GetGameByRoomID(rm.ID)
	assert.Same(t, g, byRoom)
}

func TestCreateGameInstanceRejectsSinglePlayer(t *testing.T) {
	gs := NewGameServer()
	rm := room.NewRoom("lonely", uuid.New())
	gs.RoomStore.AddRoom(rm)

	seats := []*room.RoomConnection{
		{PlayerID: uuid.New(), Name: "solo", OutChan: make(chan map[string]interface{}, 8)},
	}
	assert.Nil(t, gs.CreateGameInstance(rm.ID, seats))
}
