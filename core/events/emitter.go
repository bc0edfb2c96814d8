package events

// Event is a structured state change emitted by the reward service.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (RPC, metrics).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies Emitter while discarding everything. Engines default
// to it so event wiring stays optional.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}
