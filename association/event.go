package association

import "github.com/caio-sobreiro/dicomnet/acse"

// Event is something that happened to an Association that its owner might
// want to react to: association established, released, aborted, or an
// unsolicited DIMSE request arrived. Using a closed set of concrete types
// instead of a single struct with optional fields means a type switch at
// the call site can never forget to check which fields are meaningful for
// which event, unlike a loosely-typed "kind string + interface{} payload"
// event.
type Event interface {
	isAssociationEvent()
}

// Established fires once negotiation completes and the association enters
// Sta6. Contexts is the final negotiated outcome for every proposed
// presentation context, accepted or not.
type Established struct {
	Contexts []acse.NegotiatedContext
}

func (Established) isAssociationEvent() {}

// Released fires when the association ends cleanly via A-RELEASE.
type Released struct{}

func (Released) isAssociationEvent() {}

// Aborted fires when the association ends via A-ABORT or A-P-ABORT (the
// latter reported with Source == AbortSourceServiceProvider and a non-zero
// Err describing the transport or protocol failure that caused it).
type Aborted struct {
	Source AbortSource
	Reason string
	Err    error
}

func (Aborted) isAssociationEvent() {}

// AbortSource distinguishes a locally-initiated abort from one reported by
// the peer or raised internally in response to a protocol violation.
type AbortSource int

const (
	AbortSourceLocal AbortSource = iota
	AbortSourcePeer
	AbortSourceServiceProvider
)
