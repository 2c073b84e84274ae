package broker

// Event names emitted on a Sink.
const (
	EventReady   = "ready"
	EventMessage = "message"
	EventError   = "error"
)

// Sink receives lifecycle and message events from a provider.
// MarkReady is called exactly once, immediately before the ready event is emitted.
type Sink interface {
	Emit(event string, payload any)
	MarkReady()
}
