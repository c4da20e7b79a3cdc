package relay

import "errors"

// Relay-specific errors
var (
	ErrServerClosed         = errors.New("server is closed")
	ErrServerNotRunning     = errors.New("server is not running")
	ErrServerAlreadyRunning = errors.New("server is already running")
	ErrMaxClientsReached    = errors.New("maximum clients reached")
	ErrRoomClosed           = errors.New("room is closed")
	ErrPeerClosed           = errors.New("peer is closed")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInvalidDocumentID    = errors.New("invalid document id")
	ErrExportQueueFull      = errors.New("export queue is full")
)
