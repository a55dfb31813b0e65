// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used within the room and game handlers.
// These provide more specific reasons for closure than standard codes.
const (
	BadSubprotocolError   = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError = 3001 // Provided session token was invalid or expired.
	InvalidPlayerIDError  = 3002 // Player ID derived from token was malformed or invalid.
	InvalidRoomIDError    = 3003 // Target room ID specified in the WS URL does not exist or is invalid.
)
