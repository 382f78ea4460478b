// Package association ties transport, ulsm, acse, and dimse together into a
// single per-connection object: one Association is one DICOM Upper Layer
// association, from A-ASSOCIATE through A-RELEASE or A-ABORT. It is the
// layer a caller actually holds onto; the packages underneath it are not
// meant to be driven directly by application code.
package association

import (
	"context"
	goerrors "errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/caio-sobreiro/dicomnet/acse"
	"github.com/caio-sobreiro/dicomnet/dimse"
	dicomerrors "github.com/caio-sobreiro/dicomnet/errors"
	"github.com/caio-sobreiro/dicomnet/internal/dlog"
	"github.com/caio-sobreiro/dicomnet/pdu"
	"github.com/caio-sobreiro/dicomnet/transport"
	"github.com/caio-sobreiro/dicomnet/ulsm"
)

// Role is which side of the association a local AE is playing.
type Role int

const (
	RoleRequestor Role = iota
	RoleAcceptor
)

func (r Role) String() string {
	if r == RoleAcceptor {
		return "acceptor"
	}
	return "requestor"
}

const (
	// DefaultMaxPDULength is proposed/offered when a caller leaves
	// MaxPDULength unset.
	DefaultMaxPDULength uint32 = 16384
	// DefaultARTIMTimeout is how long Connect/Accept wait for the peer's
	// half of the handshake before timing out. Part 8 leaves the exact
	// value to the implementation.
	DefaultARTIMTimeout = 30 * time.Second
	// DefaultImplementationClassUID identifies this stack on the wire,
	// Part 7 Annex D.3.3.2.1. Root arbitrarily assigned for this project.
	DefaultImplementationClassUID = "1.2.826.0.1.3680043.9.7433.1.1"
	// DefaultImplementationVersion is the Implementation Version Name
	// sub-item value, capped at 16 characters per Part 7 Annex D.3.3.2.2.
	DefaultImplementationVersion = "DICOMNET-1"
)

// Association is one established (or being-established) Upper Layer
// connection. Its zero value is not usable; build one through Connect or
// Accept.
type Association struct {
	id   string
	role Role

	channel  *transport.Channel
	machine  *ulsm.Machine
	provider *dimse.Provider
	timer    *transport.ARTIMTimer
	logger   dlog.Logger

	callingAETitle string
	calledAETitle  string

	contexts   []acse.NegotiatedContext
	byAbstract map[string]acse.NegotiatedContext
	byID       map[byte]acse.NegotiatedContext

	// acceptedContexts is shared with provider: the IDs of accepted
	// presentation contexts that incoming PDVs may address.
	acceptedContexts map[byte]struct{}

	mu        sync.Mutex
	closeOnce sync.Once

	events   chan Event
	inbound  chan *dimse.IncomingMessage
	readDone chan struct{}
}

// ID is a locally-generated identifier for this association, useful for
// correlating log lines across the lifetime of a connection.
func (a *Association) ID() string { return a.id }

// Role reports whether this side is the requestor or the acceptor.
func (a *Association) Role() Role { return a.role }

// State returns the current Upper Layer state machine state (one of
// ulsm.State*).
func (a *Association) State() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.machine.Current()
}

// Contexts returns the negotiated outcome for every presentation context
// proposed on this association, accepted or not.
func (a *Association) Contexts() []acse.NegotiatedContext { return a.contexts }

// Events returns the channel of lifecycle events (Established, Released,
// Aborted) for this association. The channel is buffered and never closed;
// an event that finds it full is dropped.
func (a *Association) Events() <-chan Event { return a.events }

// Inbound returns the channel of DIMSE requests this association did not
// itself initiate: C-STORE/C-FIND/C-GET/C-MOVE/N-* requests on the acceptor
// side, and C-CANCEL-RQ on either side. Responses to requests this side
// sent are never delivered here; they arrive on the channel returned by the
// SCU call helpers. The channel is closed when the read loop ends (release,
// abort, or transport failure).
func (a *Association) Inbound() <-chan *dimse.IncomingMessage { return a.inbound }

// ContextForAbstractSyntax finds the accepted presentation context for an
// abstract syntax, Part 8 §7.1.1.13.
func (a *Association) ContextForAbstractSyntax(abstractSyntax string) (acse.NegotiatedContext, error) {
	ctx, ok := a.byAbstract[abstractSyntax]
	if !ok || !ctx.Accepted() {
		return acse.NegotiatedContext{}, dicomerrors.ErrNoPresentationCtx
	}
	return ctx, nil
}

func newAssociation(role Role, channel *transport.Channel, machine *ulsm.Machine, maxPDULength uint32, logger dlog.Logger, contexts []acse.NegotiatedContext) *Association {
	if logger == nil {
		logger = dlog.Default()
	}
	id := uuid.NewString()
	a := &Association{
		id:       id,
		role:     role,
		channel:  channel,
		machine:  machine,
		timer:    transport.NewARTIMTimer(),
		logger:   logger.With("association_id", id, "role", role.String()),
		contexts: contexts,

		byAbstract: make(map[string]acse.NegotiatedContext, len(contexts)),
		byID:       make(map[byte]acse.NegotiatedContext, len(contexts)),

		events:   make(chan Event, 8),
		inbound:  make(chan *dimse.IncomingMessage, 16),
		readDone: make(chan struct{}),
	}
	a.acceptedContexts = make(map[byte]struct{}, len(contexts))
	for _, c := range contexts {
		a.byAbstract[c.AbstractSyntax()] = c
		a.byID[c.ID()] = c
		if c.Accepted() {
			a.acceptedContexts[c.ID()] = struct{}{}
		}
	}
	a.provider = dimse.NewProvider(channel, maxPDULength, a.acceptedContexts, a.logger)
	return a
}

// fire drives the state machine, serialized against concurrent callers.
func (a *Association) fire(ctx context.Context, event string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.machine.Fire(ctx, event)
}

func (a *Association) current() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.machine.Current()
}

func (a *Association) emit(evt Event) {
	select {
	case a.events <- evt:
	default:
		a.logger.Warn("event channel full, dropping event", "event", fmt.Sprintf("%T", evt))
	}
}

// startReadLoop adds the accepted contexts of the negotiated table, which
// Connect/Accept fill in after newAssociation, to the set the provider
// checks incoming PDVs against, then starts reading.
func (a *Association) startReadLoop() {
	for _, c := range a.contexts {
		if c.Accepted() {
			a.acceptedContexts[c.ID()] = struct{}{}
		}
	}
	go a.readLoop()
}

func (a *Association) readLoop() {
	defer close(a.readDone)
	defer close(a.inbound)
	for {
		frame, err := a.channel.ReadPDU(context.Background())
		if err != nil {
			a.onTransportError(err)
			return
		}

		decoded, derr := pdu.Decode(frame)
		if derr != nil {
			a.onProtocolError(derr)
			return
		}

		switch body := decoded.Body.(type) {
		case *pdu.PDataTF:
			if !a.handlePDataTF(body) {
				return
			}
		case *pdu.ReleaseRQ:
			a.handleReleaseRQ()
		case *pdu.ReleaseRP:
			a.handleReleaseRP()
			return
		case *pdu.Abort:
			a.handlePeerAbort(body)
			return
		default:
			a.onProtocolError(fmt.Errorf("unexpected PDU %T in state %s", body, a.current()))
			return
		}
	}
}

// handlePDataTF reassembles one P-DATA-TF PDU and dispatches it if it
// completed an unsolicited message. It reports false when reassembly failed
// the invariants of spec §4.5 (a data PDV before the command set is
// complete, or a PDV addressed to a context the association never accepted)
// and has already routed the violation to AA-8 via onProtocolError; the
// caller must stop reading from the connection in that case.
func (a *Association) handlePDataTF(pdt *pdu.PDataTF) bool {
	in, err := a.provider.HandlePDataTF(pdt)
	if err != nil {
		a.onProtocolError(err)
		return false
	}
	if in == nil {
		return true
	}
	select {
	case a.inbound <- in:
	default:
		a.logger.Warn("inbound queue full, dropping unsolicited DIMSE message",
			"command_field", in.Command.CommandField, "message_id", in.Command.MessageID)
	}
	return true
}

func (a *Association) handleReleaseRQ() {
	switch a.current() {
	case ulsm.StateEstablished:
		if err := a.fire(context.Background(), ulsm.EvtReleaseRequestPDU); err != nil {
			a.logger.Warn("release request rejected by state machine", "error", err)
			return
		}
		a.answerReleaseRQ()
		_ = a.fire(context.Background(), ulsm.EvtLocalReleaseResponse)
		a.emit(Released{})
	case ulsm.StateAwaitingReleaseRP:
		// Collision: both sides issued A-RELEASE-RQ before seeing the
		// peer's. Answer the peer's request immediately; this side still
		// waits for its own A-RELEASE-RP, handled by handleReleaseRP.
		if err := a.fire(context.Background(), ulsm.EvtCollisionReleaseRequestPDU); err != nil {
			a.logger.Warn("collision release request rejected by state machine", "error", err)
			return
		}
		a.answerReleaseRQ()
		_ = a.fire(context.Background(), ulsm.EvtCollisionLocalReleaseResponse)
	default:
		a.onProtocolError(fmt.Errorf("A-RELEASE-RQ unexpected in state %s", a.current()))
	}
}

func (a *Association) answerReleaseRQ() {
	if err := a.channel.WritePDU(context.Background(), (&pdu.ReleaseRP{}).Encode()); err != nil {
		a.logger.Warn("failed to send A-RELEASE-RP", "error", err)
	}
}

func (a *Association) handleReleaseRP() {
	event := ulsm.EvtReleaseResponsePDU
	if a.current() == ulsm.StateCollisionRequestorAwaitingRP {
		event = ulsm.EvtCollisionReleaseResponsePDU
	}
	if err := a.fire(context.Background(), event); err != nil {
		a.logger.Warn("release response rejected by state machine", "error", err)
	}
	a.emit(Released{})
	a.channel.Close()
}

func (a *Association) handlePeerAbort(body *pdu.Abort) {
	_ = a.fire(context.Background(), ulsm.EvtAbortPDU)
	a.provider.Abort()
	a.emit(Aborted{Source: AbortSourcePeer, Reason: fmt.Sprintf("source=0x%02x reason=0x%02x", body.Source, body.Reason)})
	a.channel.Close()
}

// onTransportError handles a read failure. If the association was already
// winding down through a normal release (state already Idle), this is the
// expected closure and no Aborted event is raised. Firing EvtTransportClosed
// happens unconditionally (it is what finally moves the state machine to
// Sta1 after a local Abort/release already closed the socket); the Aborted
// event itself is only ever emitted once, guarded by closeOnce.
func (a *Association) onTransportError(err error) {
	if a.current() == ulsm.StateIdle {
		return
	}
	_ = a.fire(context.Background(), ulsm.EvtTransportClosed)
	a.closeOnce.Do(func() {
		a.provider.Abort()
		a.emit(Aborted{Source: AbortSourceServiceProvider, Err: dicomerrors.NewTransportError("read", err)})
	})
}

func (a *Association) onProtocolError(err error) {
	a.closeOnce.Do(func() {
		_ = a.fire(context.Background(), ulsm.EvtProtocolError)
		_ = a.channel.WritePDU(context.Background(), (&pdu.Abort{
			Source: pdu.AbortSourceServiceProvider,
			Reason: pdu.AbortReasonUnexpectedPDU,
		}).Encode())
		a.provider.Abort()
		a.emit(Aborted{Source: AbortSourceServiceProvider, Err: asProtocolError(err, a.current())})
		a.channel.Close()
	})
}

// asProtocolError reports err as a ProtocolError carrying the association's
// current state. A dimse-layer violation (data before command complete, an
// unaccepted presentation context) already classifies itself with a
// ProtocolErrorKind; that classification is kept rather than collapsed to
// ProtocolErrorUnexpectedPDU.
func asProtocolError(err error, state string) *dicomerrors.ProtocolError {
	var pe *dicomerrors.ProtocolError
	if goerrors.As(err, &pe) {
		return dicomerrors.NewProtocolError(pe.Kind, state, pe.Msg)
	}
	return dicomerrors.NewProtocolError(dicomerrors.ProtocolErrorUnexpectedPDU, state, err.Error())
}

// Release performs a graceful A-RELEASE, Part 8 §7.2. It blocks until the
// release handshake completes (or ctx is done).
func (a *Association) Release(ctx context.Context) error {
	switch a.current() {
	case ulsm.StateEstablished, ulsm.StateAwaitingLocalReleaseResponse:
		if err := a.fire(ctx, ulsm.EvtReleaseRequest); err != nil {
			return err
		}
	default:
		return fmt.Errorf("association: cannot release from state %s", a.current())
	}

	if err := a.channel.WritePDU(ctx, (&pdu.ReleaseRQ{}).Encode()); err != nil {
		return dicomerrors.NewTransportError("write release request", err)
	}

	select {
	case <-a.readDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Abort tears the association down immediately with an A-ABORT, Part 8
// §7.3-1. Safe to call more than once; only the first call has an effect.
func (a *Association) Abort(reason pdu.AbortReason) {
	a.closeOnce.Do(func() {
		_ = a.fire(context.Background(), ulsm.EvtAbortRequest)
		_ = a.channel.WritePDU(context.Background(), (&pdu.Abort{
			Source: pdu.AbortSourceServiceUser,
			Reason: reason,
		}).Encode())
		a.provider.Abort()
		a.emit(Aborted{Source: AbortSourceLocal, Reason: fmt.Sprintf("reason=0x%02x", reason)})
		a.channel.Close()
	})
}

// Close releases the association if it is still established, or aborts it
// if release is not possible, then waits for the read loop to finish. It is
// the single entry point callers should defer right after Connect/Accept
// succeeds.
func (a *Association) Close(ctx context.Context) error {
	switch a.current() {
	case ulsm.StateIdle:
		return nil
	case ulsm.StateEstablished:
		return a.Release(ctx)
	default:
		a.Abort(pdu.AbortReasonNotSpecified)
		<-a.readDone
		return nil
	}
}

// Statistics exposes the underlying transport's traffic counters.
func (a *Association) Statistics() transport.Stats {
	return a.channel.Statistics()
}

// LocalAddr and RemoteAddr expose the underlying connection endpoints.
func (a *Association) LocalAddr() net.Addr  { return a.channel.LocalAddr() }
func (a *Association) RemoteAddr() net.Addr { return a.channel.RemoteAddr() }
