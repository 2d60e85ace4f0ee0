package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// IdleTimeout closes a connection that sends nothing, not even a ping.
const IdleTimeout = 5 * time.Minute

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func WriteError(conn *websocket.Conn, errMsg string) error {
	return WriteTyped(conn, ErrorResponse{
		Event: EventError,
		Error: errMsg,
	})
}

// WriteSignal sends an event without a body.
func WriteSignal(conn *websocket.Conn, e Event) error {
	return WriteTyped(conn, SignalResponse{Event: e})
}

// ReadJSON reads and decodes a message into the provided structure.
// It sets a read deadline.
func ReadJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetReadDeadline(time.Now().Add(IdleTimeout))
	return conn.ReadJSON(v)
}

// Seconds rounds a remaining duration up to whole seconds; negative means
// the exam has no time limit.
func Seconds(d time.Duration) int {
	if d < 0 {
		return -1
	}
	return int((d + time.Second - 1) / time.Second)
}
