package cdp

import "errors"

var (
	// ErrCallTimeout means a method call's deadline expired before the
	// matching response arrived. The waiter is deregistered; a late response
	// is discarded as protocol noise.
	ErrCallTimeout = errors.New("devtools call timed out")

	// ErrConnectionClosed means the websocket connection dropped. All calls
	// pending at that moment fail with this error.
	ErrConnectionClosed = errors.New("devtools connection closed")
)

// ProtocolError is a non-success result reported by the browser for a
// specific method call.
type ProtocolError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *ProtocolError) Error() string {
	if e.Data != "" {
		return "devtools: " + e.Message + ": " + e.Data
	}
	return "devtools: " + e.Message
}
