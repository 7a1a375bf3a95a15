// Package domain defines the core domain types and interfaces.
//
// This package contains concept-oriented files (event.go, envelope.go, feed.go, errors.go)
// with shared types and cross-cutting interfaces. Behavior is limited to defaults and wire encoding.
// Prevents circular imports by keeping interfaces on the consumer side.
package domain
