// Package aentity configures a local DICOM Application Entity and exposes
// the two things an AE does: associate out to a remote AE, and listen for
// associations coming in. It is the layer application code constructs
// once, at startup, to hold AE-wide configuration that a single
// association package.Association has no business knowing about.
package aentity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/caio-sobreiro/dicomnet/acse"
	"github.com/caio-sobreiro/dicomnet/association"
	dicomerrors "github.com/caio-sobreiro/dicomnet/errors"
	"github.com/caio-sobreiro/dicomnet/internal/dlog"
	"github.com/caio-sobreiro/dicomnet/pdu"
)

// Entity is a local Application Entity: an AE title plus the negotiation
// policy and timeouts it applies to every association it accepts or
// initiates.
type Entity struct {
	aeTitle      string
	maxPDULength uint32
	artimTimeout time.Duration
	logger       dlog.Logger

	implementationClassUID string
	implementationVersion  string

	supported []acse.SupportedAbstractSyntax

	requireCallingAETitle bool
	allowedCallingTitles  map[string]bool
	requireCalledAETitle  bool
}

// Option configures an Entity at construction time.
type Option func(*Entity)

// WithMaxPDULength overrides association.DefaultMaxPDULength.
func WithMaxPDULength(n uint32) Option {
	return func(e *Entity) { e.maxPDULength = n }
}

// WithARTIMTimeout overrides association.DefaultARTIMTimeout.
func WithARTIMTimeout(d time.Duration) Option {
	return func(e *Entity) { e.artimTimeout = d }
}

// WithLogger attaches a structured logger; every accepted/initiated
// association inherits it.
func WithLogger(logger dlog.Logger) Option {
	return func(e *Entity) { e.logger = logger }
}

// WithImplementation overrides the Implementation Class UID / Version Name
// this AE announces during negotiation, Part 7 Annex D.3.3.2.
func WithImplementation(classUID, version string) Option {
	return func(e *Entity) {
		e.implementationClassUID = classUID
		e.implementationVersion = version
	}
}

// WithSupportedAbstractSyntax registers an abstract syntax this AE accepts
// as an SCP, along with the transfer syntaxes and role it supports for it.
// Accumulates across calls; order does not affect negotiation.
func WithSupportedAbstractSyntax(syntax acse.SupportedAbstractSyntax) Option {
	return func(e *Entity) { e.supported = append(e.supported, syntax) }
}

// WithRequireCallingAETitle rejects any inbound association whose Calling
// AE Title is not in allowed, Part 7 Annex D.3.3.1 Calling AE Title.
func WithRequireCallingAETitle(allowed ...string) Option {
	return func(e *Entity) {
		e.requireCallingAETitle = true
		for _, t := range allowed {
			e.allowedCallingTitles[t] = true
		}
	}
}

// WithRequireCalledAETitle rejects any inbound association whose Called AE
// Title does not match this Entity's own AE title.
func WithRequireCalledAETitle() Option {
	return func(e *Entity) { e.requireCalledAETitle = true }
}

// New builds an Entity with the given AE title and options.
func New(aeTitle string, opts ...Option) *Entity {
	e := &Entity{
		aeTitle:                 aeTitle,
		maxPDULength:            association.DefaultMaxPDULength,
		artimTimeout:            association.DefaultARTIMTimeout,
		implementationClassUID:  association.DefaultImplementationClassUID,
		implementationVersion:   association.DefaultImplementationVersion,
		allowedCallingTitles:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = dlog.Default()
	}
	return e
}

// AETitle returns this Entity's AE title.
func (e *Entity) AETitle() string { return e.aeTitle }

// Associate opens an association to a remote AE as the requestor, Part 7
// Annex D.3.3.1. contexts are the presentation contexts to propose.
func (e *Entity) Associate(ctx context.Context, address, calledAETitle string, contexts []acse.ProposedContext) (*association.Association, error) {
	return association.Connect(ctx, address, association.ConnectParams{
		CallingAETitle:         e.aeTitle,
		CalledAETitle:          calledAETitle,
		MaxPDULength:           e.maxPDULength,
		ImplementationClassUID: e.implementationClassUID,
		ImplementationVersion:  e.implementationVersion,
		ArtimTimeout:           e.artimTimeout,
		Contexts:               contexts,
		Logger:                 e.logger,
	})
}

// Handler is called once per accepted association, in its own goroutine.
// It owns the association for the duration of the call: read from
// assoc.Inbound(), respond, and call assoc.Close() (or let StartServer's
// shutdown path abort it) before returning.
type Handler func(ctx context.Context, assoc *association.Association)

// StartServer accepts associations on address until ctx is cancelled. Each
// accepted connection is negotiated per this Entity's configuration and,
// if accepted, handed to handler in its own goroutine. Grounded on the
// same "accept loop plus per-connection goroutine" shape as a plain
// net.Listener server, generalized with errgroup so that StartServer does
// not return until every in-flight handler has also returned.
func (e *Entity) StartServer(ctx context.Context, address string, handler Handler) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return dicomerrors.NewTransportError("listen", err)
	}
	return e.Serve(ctx, listener, handler)
}

// Serve runs the accept loop against an already-bound listener, taking
// ownership of it (closing it on return). Split out from StartServer so
// callers that need the bound address ahead of time (address ":0", tests)
// can call net.Listen themselves first.
func (e *Entity) Serve(ctx context.Context, listener net.Listener, handler Handler) error {
	defer listener.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return listener.Close()
	})

	e.logger.Info("AE listening", "ae_title", e.aeTitle, "address", listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if gctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			return g.Wait()
		}
		g.Go(func() error {
			e.serveConn(gctx, conn, handler)
			return nil
		})
	}

	return g.Wait()
}

func (e *Entity) serveConn(ctx context.Context, conn net.Conn, handler Handler) {
	assoc, err := association.Accept(ctx, conn, association.AcceptParams{
		ArtimTimeout: e.artimTimeout,
		Logger:       e.logger,
		ResponseParams: acse.ResponseParams{
			AETitle:                e.aeTitle,
			MaxPDULength:           e.maxPDULength,
			ImplementationClassUID: e.implementationClassUID,
			ImplementationVersion:  e.implementationVersion,
			Supported:              e.supported,
		},
		Validate: e.validate,
	})
	if err != nil {
		e.logger.Warn("association rejected", "remote_addr", conn.RemoteAddr(), "error", err)
		return
	}
	handler(ctx, assoc)
}

func (e *Entity) validate(rq *pdu.AssociateRQ) *dicomerrors.AssociationError {
	if e.requireCalledAETitle && rq.CalledAETitle != e.aeTitle {
		return dicomerrors.NewAssociationError(dicomerrors.RejectSourceServiceUser, dicomerrors.RejectReasonCalledAETitleNotRecognized,
			fmt.Sprintf("called AE title %q does not match this entity's title %q", rq.CalledAETitle, e.aeTitle))
	}
	if e.requireCallingAETitle && !e.allowedCallingTitles[rq.CallingAETitle] {
		return dicomerrors.NewAssociationError(dicomerrors.RejectSourceServiceUser, dicomerrors.RejectReasonCallingAETitleNotRecognized,
			fmt.Sprintf("calling AE title %q is not in the allowed list", rq.CallingAETitle))
	}
	return nil
}
