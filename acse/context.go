// Package acse implements Association Control Service Element negotiation,
// Part 7 Annex D: presentation context proposal/negotiation, SCU/SCP role
// selection, and extended/user-identity negotiation. It operates on the
// typed pdu structs; it knows nothing about sockets or the Upper Layer
// state machine.
package acse

import "github.com/caio-sobreiro/dicomnet/pdu"

// Role indicates which of SCU and SCP a local AE plays for a given
// abstract syntax within one association. Part 7 defaults to SCU=true,
// SCP=false unless a Role Selection item says otherwise.
type Role struct {
	SCU bool
	SCP bool
}

// DefaultRole is the Part 7 default: this AE is the SCU, not the SCP, for
// an abstract syntax absent any Role Selection negotiation.
var DefaultRole = Role{SCU: true, SCP: false}

// ProposedContext is the mutable builder an SCU fills in before an
// association request: an abstract syntax candidate with one or more
// transfer syntaxes to offer, Part 7 Annex D.3.3.2.
//
// This is deliberately a distinct, mutable type from NegotiatedContext:
// once the peer answers, the outcome is fixed and should not be
// re-mutated by calling code, so it is represented by a separate,
// immutable type built through Negotiate.
type ProposedContext struct {
	ID               byte
	AbstractSyntax   string
	TransferSyntaxes []string
	Role             Role
}

// NewProposedContext returns a ProposedContext with the default role
// (SCU=true, SCP=false).
func NewProposedContext(id byte, abstractSyntax string, transferSyntaxes ...string) ProposedContext {
	return ProposedContext{
		ID:               id,
		AbstractSyntax:   abstractSyntax,
		TransferSyntaxes: transferSyntaxes,
		Role:             DefaultRole,
	}
}

// WithRole returns a copy of p proposing role as well.
func (p ProposedContext) WithRole(role Role) ProposedContext {
	p.Role = role
	return p
}

func (p ProposedContext) toPDU() pdu.PresentationContextRQItem {
	return pdu.PresentationContextRQItem{
		ID:               p.ID,
		AbstractSyntax:   p.AbstractSyntax,
		TransferSyntaxes: p.TransferSyntaxes,
	}
}

// NegotiatedContext is the immutable outcome of presentation context
// negotiation for one context ID: the single accepted transfer syntax (or
// none, if rejected) and the negotiated role. Once built by
// Negotiate or ParseAcceptedContexts, it never changes — callers
// needing a different outcome build a new association.
type NegotiatedContext struct {
	id              byte
	abstractSyntax  string
	accepted        bool
	result          pdu.PresentationContextResult
	transferSyntax  string
	role            Role
}

// ID is the presentation context ID this outcome applies to.
func (n NegotiatedContext) ID() byte { return n.id }

// AbstractSyntax is the abstract syntax this context was proposed for.
func (n NegotiatedContext) AbstractSyntax() string { return n.abstractSyntax }

// Accepted reports whether the peer accepted this context.
func (n NegotiatedContext) Accepted() bool { return n.accepted }

// Result is the raw Presentation Context AC result/reason code.
func (n NegotiatedContext) Result() pdu.PresentationContextResult { return n.result }

// TransferSyntax is the single negotiated transfer syntax. Empty if the
// context was rejected.
func (n NegotiatedContext) TransferSyntax() string { return n.transferSyntax }

// Role is the negotiated SCU/SCP role for this context's abstract syntax.
func (n NegotiatedContext) Role() Role { return n.role }
