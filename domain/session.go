// Package domain contains core concepts of the relay.
// No runtime, network, or UI logic should be added here.
package domain

// ConnectionID identifies one transport session for its whole lifetime.
// It is opaque to the engine.
type ConnectionID string
