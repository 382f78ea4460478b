package association

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/caio-sobreiro/dicomnet/acse"
	dicomerrors "github.com/caio-sobreiro/dicomnet/errors"
	"github.com/caio-sobreiro/dicomnet/internal/dlog"
	"github.com/caio-sobreiro/dicomnet/pdu"
	"github.com/caio-sobreiro/dicomnet/transport"
	"github.com/caio-sobreiro/dicomnet/ulsm"
)

// ConnectParams configures the requestor side of an association,
// Part 7 Annex D.3.3.1.
type ConnectParams struct {
	CallingAETitle         string
	CalledAETitle          string
	MaxPDULength           uint32
	ImplementationClassUID string
	ImplementationVersion  string
	ArtimTimeout           time.Duration
	Contexts               []acse.ProposedContext
	UserIdentity           *pdu.UserIdentityRQItem
	Logger                 dlog.Logger
}

func (p *ConnectParams) applyDefaults() {
	if p.MaxPDULength == 0 {
		p.MaxPDULength = DefaultMaxPDULength
	}
	if p.ImplementationClassUID == "" {
		p.ImplementationClassUID = DefaultImplementationClassUID
	}
	if p.ImplementationVersion == "" {
		p.ImplementationVersion = DefaultImplementationVersion
	}
	if p.ArtimTimeout == 0 {
		p.ArtimTimeout = DefaultARTIMTimeout
	}
}

// Connect dials address, proposes params.Contexts, and performs the AE-1
// through AE-4 association establishment sequence, Part 8 §9.2 Table 9-10.
// On negotiation failure the returned error is a *dicomerrors.NegotiationFailure.
func Connect(ctx context.Context, address string, params ConnectParams) (*Association, error) {
	params.applyDefaults()

	channel, err := transport.Dial(ctx, address)
	if err != nil {
		return nil, dicomerrors.NewTransportError("dial", err)
	}

	machine := ulsm.NewMachine(nil)
	a := newAssociation(RoleRequestor, channel, machine, params.MaxPDULength, params.Logger, nil)
	a.callingAETitle = params.CallingAETitle
	a.calledAETitle = params.CalledAETitle

	if err := a.fire(ctx, ulsm.EvtAssociateRequest); err != nil {
		channel.Close()
		return nil, err
	}
	// The dial above already blocked until the transport connected, so the
	// AE-2 transition follows immediately rather than waiting on a separate
	// connect-confirm callback.
	if err := a.fire(ctx, ulsm.EvtTransportConnectConfirm); err != nil {
		channel.Close()
		return nil, err
	}

	rq := acse.BuildAssociateRQ(acse.RequestParams{
		CallingAETitle:         params.CallingAETitle,
		CalledAETitle:          params.CalledAETitle,
		MaxPDULength:           params.MaxPDULength,
		ImplementationClassUID: params.ImplementationClassUID,
		ImplementationVersion:  params.ImplementationVersion,
		UserIdentity:           params.UserIdentity,
	}, params.Contexts)

	a.timer.Arm(params.ArtimTimeout)
	if err := channel.WritePDU(ctx, rq.Encode()); err != nil {
		a.timer.Disarm()
		channel.Close()
		return nil, dicomerrors.NewTransportError("write associate request", err)
	}

	artimCtx, cancel := context.WithTimeout(ctx, params.ArtimTimeout)
	defer cancel()
	frame, err := channel.ReadPDU(artimCtx)
	a.timer.Disarm()
	if err != nil {
		channel.Close()
		return nil, dicomerrors.NewTransportError("read associate response", err)
	}

	decoded, derr := pdu.Decode(frame)
	if derr != nil {
		channel.Close()
		return nil, derr
	}

	switch body := decoded.Body.(type) {
	case *pdu.AssociateAC:
		if err := a.fire(ctx, ulsm.EvtAssociateAccept); err != nil {
			channel.Close()
			return nil, err
		}
		outcomes := acse.ParseAcceptedContexts(params.Contexts, body)
		if !acse.AnyAccepted(outcomes) {
			a.Abort(pdu.AbortReasonNotSpecified)
			return nil, dicomerrors.NewNegotiationFailure(dicomerrors.RejectResultPermanent, dicomerrors.RejectSourceServiceUser, dicomerrors.RejectReasonNoReasonGiven)
		}
		a.contexts = outcomes
		a.byAbstract = make(map[string]acse.NegotiatedContext, len(outcomes))
		a.byID = make(map[byte]acse.NegotiatedContext, len(outcomes))
		for _, o := range outcomes {
			a.byAbstract[o.AbstractSyntax()] = o
			a.byID[o.ID()] = o
		}
		a.startReadLoop()
		a.emit(Established{Contexts: outcomes})
		return a, nil

	case *pdu.AssociateRJ:
		_ = a.fire(ctx, ulsm.EvtAssociateReject)
		channel.Close()
		return nil, dicomerrors.NewNegotiationFailure(
			dicomerrors.AssociationRejectResult(body.Result),
			dicomerrors.AssociationRejectSource(body.Source),
			dicomerrors.AssociationRejectReason(body.Reason),
		)

	default:
		_ = a.fire(ctx, ulsm.EvtProtocolError)
		channel.Close()
		return nil, fmt.Errorf("association: unexpected PDU %T awaiting associate response", body)
	}
}

// AcceptParams configures the acceptor side of an association,
// Part 8 §9.2 Table 9-10 events AE-5 through AE-8.
type AcceptParams struct {
	ResponseParams acse.ResponseParams
	ArtimTimeout   time.Duration
	Logger         dlog.Logger

	// Validate runs once the A-ASSOCIATE-RQ is received, before presentation
	// contexts are negotiated and before any A-ASSOCIATE-AC is sent.
	// Returning a non-nil error rejects the association with that error's
	// reason instead; nil accepts. Use this for calling/called AE title
	// allow-listing. May be nil, in which case every request is accepted
	// as long as acse.Negotiate found at least one acceptable context.
	Validate func(rq *pdu.AssociateRQ) *dicomerrors.AssociationError
}

func (p *AcceptParams) applyDefaults() {
	if p.ArtimTimeout == 0 {
		p.ArtimTimeout = DefaultARTIMTimeout
	}
	if p.ResponseParams.MaxPDULength == 0 {
		p.ResponseParams.MaxPDULength = DefaultMaxPDULength
	}
	if p.ResponseParams.ImplementationClassUID == "" {
		p.ResponseParams.ImplementationClassUID = DefaultImplementationClassUID
	}
	if p.ResponseParams.ImplementationVersion == "" {
		p.ResponseParams.ImplementationVersion = DefaultImplementationVersion
	}
}

// Accept reads one A-ASSOCIATE-RQ off an already-accepted net.Conn, answers
// it, and returns the established Association. conn is assumed freshly
// accepted (Sta1, about to fire AE-5).
func Accept(ctx context.Context, conn net.Conn, params AcceptParams) (*Association, error) {
	params.applyDefaults()

	channel := transport.New(conn)
	machine := ulsm.NewMachine(nil)
	a := newAssociation(RoleAcceptor, channel, machine, params.ResponseParams.MaxPDULength, params.Logger, nil)

	if err := a.fire(ctx, ulsm.EvtTransportConnectIndication); err != nil {
		channel.Close()
		return nil, err
	}

	a.timer.Arm(params.ArtimTimeout)
	artimCtx, cancel := context.WithTimeout(ctx, params.ArtimTimeout)
	defer cancel()
	frame, err := channel.ReadPDU(artimCtx)
	a.timer.Disarm()
	if err != nil {
		channel.Close()
		return nil, dicomerrors.NewTransportError("read associate request", err)
	}

	decoded, derr := pdu.Decode(frame)
	if derr != nil {
		channel.Close()
		return nil, derr
	}

	rq, ok := decoded.Body.(*pdu.AssociateRQ)
	if !ok {
		_ = a.fire(ctx, ulsm.EvtProtocolError)
		channel.WritePDU(ctx, (&pdu.Abort{Source: pdu.AbortSourceServiceProvider, Reason: pdu.AbortReasonUnexpectedPDU}).Encode())
		channel.Close()
		return nil, fmt.Errorf("association: expected A-ASSOCIATE-RQ, got %T", decoded.Body)
	}

	if err := a.fire(ctx, ulsm.EvtAssociateRequestPDU); err != nil {
		channel.Close()
		return nil, err
	}
	a.callingAETitle = rq.CallingAETitle
	a.calledAETitle = rq.CalledAETitle

	if params.Validate != nil {
		if rejectErr := params.Validate(rq); rejectErr != nil {
			rj := &pdu.AssociateRJ{
				Result: pdu.AssociationRejectResultWire(dicomerrors.RejectResultPermanent),
				Source: byte(rejectErr.Source),
				Reason: byte(rejectErr.Reason),
			}
			channel.WritePDU(ctx, rj.Encode())
			_ = a.fire(ctx, ulsm.EvtLocalAssociateReject)
			channel.Close()
			return nil, rejectErr
		}
	}

	ac, outcomes := acse.Negotiate(rq, params.ResponseParams)
	if !acse.AnyAccepted(outcomes) {
		rj := &pdu.AssociateRJ{
			Result: pdu.AssociationRejectResultWire(dicomerrors.RejectResultPermanent),
			Source: byte(dicomerrors.RejectSourceServiceUser),
			Reason: byte(dicomerrors.RejectReasonNoReasonGiven),
		}
		channel.WritePDU(ctx, rj.Encode())
		_ = a.fire(ctx, ulsm.EvtLocalAssociateReject)
		channel.Close()
		return nil, dicomerrors.NewNegotiationFailure(dicomerrors.RejectResultPermanent, dicomerrors.RejectSourceServiceUser, dicomerrors.RejectReasonNoReasonGiven)
	}

	if err := channel.WritePDU(ctx, ac.Encode()); err != nil {
		channel.Close()
		return nil, dicomerrors.NewTransportError("write associate response", err)
	}
	if err := a.fire(ctx, ulsm.EvtLocalAssociateAccept); err != nil {
		channel.Close()
		return nil, err
	}

	a.contexts = outcomes
	a.byAbstract = make(map[string]acse.NegotiatedContext, len(outcomes))
	a.byID = make(map[byte]acse.NegotiatedContext, len(outcomes))
	for _, o := range outcomes {
		a.byAbstract[o.AbstractSyntax()] = o
		a.byID[o.ID()] = o
	}

	a.startReadLoop()
	a.emit(Established{Contexts: outcomes})
	return a, nil
}
