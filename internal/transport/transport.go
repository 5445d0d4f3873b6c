// Package transport defines the outward channel abstraction shared by direct
// client connections and the relay tunnel's virtual endpoint.
package transport

// Transport is a one-way outward channel to a client. Implementations must be
// safe for silent replacement: the engine may swap one transport for another
// at any time without closing the old instance.
type Transport interface {
	// Send delivers one outward event. The value is marshaled to JSON by the
	// concrete transport.
	Send(v any) error

	// Open reports whether the channel currently has an observer.
	Open() bool
}

// Discard is a no-op sink used while an engine runs with no observer.
var Discard Transport = discard{}

type discard struct{}

func (discard) Send(any) error { return nil }
func (discard) Open() bool     { return false }
