package protocol

import "errors"

var (
	ErrInvalidMessage       = errors.New("invalid message")
	ErrUnknownMessageType   = errors.New("unknown message type")
	ErrUnexpectedRevisionID = errors.New("unexpected revision id")
	ErrMessageTooLarge      = errors.New("message too large")
	ErrTransportClosed      = errors.New("transport is closed")
)
