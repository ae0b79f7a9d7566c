// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Custom WebSocket close codes. They give clients a more specific reason for
// closure than the standard codes.
const (
	BadSubprotocolError   websocket.StatusCode = 3000 // Client did not offer the trivia subprotocol.
	InvalidAuthTokenError websocket.StatusCode = 3001 // Token missing, expired or forged.
	ReplacedSessionError  websocket.StatusCode = 3002 // Same identity connected from elsewhere.
	SlowConsumerError     websocket.StatusCode = 3003 // Outbound buffer overflowed.
)
