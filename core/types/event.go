package types

// Event is a typed record emitted during a reward-service state transition.
// Attributes are flat string pairs so downstream sinks (RPC subscribers,
// metrics, logs) need no per-event schema.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
