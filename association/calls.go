package association

import (
	"context"

	"github.com/caio-sobreiro/dicomnet/dimse"
	dicomerrors "github.com/caio-sobreiro/dicomnet/errors"
	"github.com/caio-sobreiro/dicomnet/types"
)

// sendAndAwaitOne resolves the presentation context for abstractSyntax,
// sends req, and waits for the single response DIMSE expects for services
// that never stream (C-ECHO, C-STORE, N-EVENT-REPORT, N-GET, N-SET,
// N-ACTION, N-CREATE, N-DELETE).
func (a *Association) sendAndAwaitOne(ctx context.Context, abstractSyntax string, req *types.Message, dataset []byte) (*types.Message, []byte, error) {
	pc, err := a.ContextForAbstractSyntax(abstractSyntax)
	if err != nil {
		return nil, nil, err
	}
	req.TransferSyntaxUID = pc.TransferSyntax()

	ch, err := a.provider.SendRequest(ctx, pc.ID(), req, dataset)
	if err != nil {
		return nil, nil, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, nil, dicomerrors.ErrConnectionClosed
		}
		if resp.Err != nil {
			return nil, nil, resp.Err
		}
		return resp.Command, resp.Dataset, nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// Echo performs a C-ECHO, Part 7 Annex C.3. Returns an error unless the
// peer answers with Success.
func (a *Association) Echo(ctx context.Context) error {
	req := &types.Message{
		CommandField:           types.CEchoRQ,
		AffectedSOPClassUID:    types.VerificationSOPClass,
		CommandDataSetType:     noDataSetPresent,
	}
	resp, _, err := a.sendAndAwaitOne(ctx, types.VerificationSOPClass, req, nil)
	if err != nil {
		return err
	}
	if resp.Status != types.StatusSuccess {
		return dicomerrors.NewDIMSEError("C-ECHO", resp.Status, "verification failed")
	}
	return nil
}

// Store performs a C-STORE, Part 7 Annex C.4.1 / Part 4 Annex B.
func (a *Association) Store(ctx context.Context, sopClassUID, sopInstanceUID string, dataset []byte, priority uint16) error {
	req := &types.Message{
		CommandField:           types.CStoreRQ,
		AffectedSOPClassUID:    sopClassUID,
		AffectedSOPInstanceUID: sopInstanceUID,
		Priority:               priority,
		CommandDataSetType:     0x0000,
	}
	resp, _, err := a.sendAndAwaitOne(ctx, sopClassUID, req, dataset)
	if err != nil {
		return err
	}
	if resp.Status != types.StatusSuccess {
		return dicomerrors.NewDIMSEError("C-STORE", resp.Status, "store failed")
	}
	return nil
}

// Find performs a C-FIND, Part 7 Annex C.4.2. The returned channel carries
// one *dimse.Response per matching item (Status == StatusPending or
// StatusPendingOptionalKeys) followed by one final non-pending response,
// after which it closes.
func (a *Association) Find(ctx context.Context, sopClassUID string, identifier []byte, priority uint16) (<-chan *dimse.Response, error) {
	return a.streamingRequest(ctx, sopClassUID, &types.Message{
		CommandField:        types.CFindRQ,
		AffectedSOPClassUID: sopClassUID,
		Priority:            priority,
		CommandDataSetType:  0x0000,
	}, identifier)
}

// Move performs a C-MOVE, Part 7 Annex C.4.3. destination is the AE title
// sub-operations should be sent to.
func (a *Association) Move(ctx context.Context, sopClassUID, destination string, identifier []byte, priority uint16) (<-chan *dimse.Response, error) {
	return a.streamingRequest(ctx, sopClassUID, &types.Message{
		CommandField:        types.CMoveRQ,
		AffectedSOPClassUID: sopClassUID,
		MoveDestination:     destination,
		Priority:            priority,
		CommandDataSetType:  0x0000,
	}, identifier)
}

// Get performs a C-GET, Part 7 Annex C.4.3. Unlike C-MOVE, sub-operations
// arrive as C-STORE-RQ on the same association; callers read them from
// Inbound while draining the returned response channel.
func (a *Association) Get(ctx context.Context, sopClassUID string, identifier []byte, priority uint16) (<-chan *dimse.Response, error) {
	return a.streamingRequest(ctx, sopClassUID, &types.Message{
		CommandField:        types.CGetRQ,
		AffectedSOPClassUID: sopClassUID,
		Priority:            priority,
		CommandDataSetType:  0x0000,
	}, identifier)
}

func (a *Association) streamingRequest(ctx context.Context, abstractSyntax string, req *types.Message, identifier []byte) (<-chan *dimse.Response, error) {
	pc, err := a.ContextForAbstractSyntax(abstractSyntax)
	if err != nil {
		return nil, err
	}
	req.TransferSyntaxUID = pc.TransferSyntax()
	return a.provider.SendRequest(ctx, pc.ID(), req, identifier)
}

// Cancel sends a C-CANCEL-RQ for a previously issued C-FIND, C-GET, or
// C-MOVE, Part 7 Annex C.4.2.3 / C.4.3.3 / C.4.4.3. It does not wait for a
// response: cancellation is a notification, not a request-response
// exchange.
func (a *Association) Cancel(ctx context.Context, abstractSyntax string, messageIDBeingRespondedTo uint16) error {
	pc, err := a.ContextForAbstractSyntax(abstractSyntax)
	if err != nil {
		return err
	}
	return a.provider.SendCancel(ctx, pc.ID(), messageIDBeingRespondedTo)
}

// NEventReport performs an N-EVENT-REPORT, Part 7 §10.3.1. eventInfo is the
// optional Event Information data set; pass nil if the event type carries
// none.
func (a *Association) NEventReport(ctx context.Context, sopClassUID, sopInstanceUID string, eventTypeID uint16, eventInfo []byte) (*types.Message, []byte, error) {
	req := &types.Message{
		CommandField:           types.NEventReportRQ,
		AffectedSOPClassUID:    sopClassUID,
		AffectedSOPInstanceUID: sopInstanceUID,
		EventTypeID:            &eventTypeID,
		CommandDataSetType:     commandDataSetType(eventInfo),
	}
	return a.sendAndAwaitOne(ctx, sopClassUID, req, eventInfo)
}

// NGet performs an N-GET, Part 7 §10.1.2.1. attributeIdentifierList selects
// which attributes to return (group<<16|element per entry); a nil or empty
// list requests all attributes. N-GET-RQ never carries a data set itself;
// the requested attributes come back in the response data set.
func (a *Association) NGet(ctx context.Context, sopClassUID, sopInstanceUID string, attributeIdentifierList []uint32) (*types.Message, []byte, error) {
	req := &types.Message{
		CommandField:            types.NGetRQ,
		RequestedSOPClassUID:    sopClassUID,
		RequestedSOPInstanceUID: sopInstanceUID,
		AttributeIdentifierList: attributeIdentifierList,
		CommandDataSetType:      noDataSetPresent,
	}
	return a.sendAndAwaitOne(ctx, sopClassUID, req, nil)
}

// NSet performs an N-SET, Part 7 §10.1.3.1. modificationList is the
// mandatory Modification List data set.
func (a *Association) NSet(ctx context.Context, sopClassUID, sopInstanceUID string, modificationList []byte) (*types.Message, []byte, error) {
	req := &types.Message{
		CommandField:            types.NSetRQ,
		RequestedSOPClassUID:    sopClassUID,
		RequestedSOPInstanceUID: sopInstanceUID,
		CommandDataSetType:      0x0000,
	}
	return a.sendAndAwaitOne(ctx, sopClassUID, req, modificationList)
}

// NAction performs an N-ACTION, Part 7 §10.1.4.1. actionInfo is the
// optional Action Information data set; pass nil if the action carries
// none.
func (a *Association) NAction(ctx context.Context, sopClassUID, sopInstanceUID string, actionTypeID uint16, actionInfo []byte) (*types.Message, []byte, error) {
	req := &types.Message{
		CommandField:            types.NActionRQ,
		RequestedSOPClassUID:    sopClassUID,
		RequestedSOPInstanceUID: sopInstanceUID,
		ActionTypeID:            &actionTypeID,
		CommandDataSetType:      commandDataSetType(actionInfo),
	}
	return a.sendAndAwaitOne(ctx, sopClassUID, req, actionInfo)
}

// NCreate performs an N-CREATE, Part 7 §10.1.5.1. sopInstanceUID may be
// empty to let the SCP assign one; attributeList is the optional Attribute
// List data set.
func (a *Association) NCreate(ctx context.Context, sopClassUID, sopInstanceUID string, attributeList []byte) (*types.Message, []byte, error) {
	req := &types.Message{
		CommandField:           types.NCreateRQ,
		AffectedSOPClassUID:    sopClassUID,
		AffectedSOPInstanceUID: sopInstanceUID,
		CommandDataSetType:     commandDataSetType(attributeList),
	}
	return a.sendAndAwaitOne(ctx, sopClassUID, req, attributeList)
}

// NDelete performs an N-DELETE, Part 7 §10.1.6.1.
func (a *Association) NDelete(ctx context.Context, sopClassUID, sopInstanceUID string) (*types.Message, []byte, error) {
	req := &types.Message{
		CommandField:            types.NDeleteRQ,
		RequestedSOPClassUID:    sopClassUID,
		RequestedSOPInstanceUID: sopInstanceUID,
		CommandDataSetType:      noDataSetPresent,
	}
	return a.sendAndAwaitOne(ctx, sopClassUID, req, nil)
}

// commandDataSetType reports the CommandDataSetType value for an optional
// data set argument: present if non-empty, absent otherwise.
func commandDataSetType(dataset []byte) uint16 {
	if len(dataset) == 0 {
		return noDataSetPresent
	}
	return 0x0000
}

// Respond sends a DIMSE response for a request received on Inbound, Part 7
// §9.3. msg.MessageIDBeingRespondedTo and msg.CommandField must already be
// set by the caller (typically via NewResponse).
func (a *Association) Respond(ctx context.Context, presentationContextID byte, msg *types.Message, dataset []byte) error {
	if ctxOutcome, ok := a.byID[presentationContextID]; ok {
		msg.TransferSyntaxUID = ctxOutcome.TransferSyntax()
	}
	return a.provider.SendResponse(ctx, presentationContextID, msg, dataset)
}

// NewResponse builds the response Message for an inbound request, copying
// the fields every DIMSE response shares (command field, correlating
// message ID, affected SOP class/instance) and setting status.
func NewResponse(request *types.Message, status uint16) *types.Message {
	return &types.Message{
		CommandField:              types.ResponseCommandFor(request.CommandField),
		MessageIDBeingRespondedTo: request.MessageID,
		AffectedSOPClassUID:       request.AffectedSOPClassUID,
		AffectedSOPInstanceUID:    request.AffectedSOPInstanceUID,
		Status:                    status,
		CommandDataSetType:        noDataSetPresent,
	}
}

// noDataSetPresent mirrors dimse's unexported constant of the same value;
// association builds Messages directly rather than importing dimse's
// internals for one constant.
const noDataSetPresent = 0x0101
