package protocol

// Transport broadcasts messages to every listener, the sender included.
// Nothing is assumed about ordering beyond the revision ids assigned at the
// serialization point.
type Transport interface {
	SendMessage(msg Message) error
	OnNewMessage(clientID string, handler func(Message))
	Leave(clientID string)
}
