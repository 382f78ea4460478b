package services

import (
	"context"
	"fmt"

	"github.com/caio-sobreiro/dicomnet/association"
	"github.com/caio-sobreiro/dicomnet/dimse"
	"github.com/caio-sobreiro/dicomnet/internal/dlog"
	"github.com/caio-sobreiro/dicomnet/interfaces"
	"github.com/caio-sobreiro/dicomnet/types"
)

// Registry routes incoming DIMSE command sets to the service handler
// registered for their Command Field, and drives that routing directly off
// an established association.Association.
type Registry struct {
	handlers map[uint16]interfaces.ServiceHandler
	logger   dlog.Logger
}

// NewRegistry creates an empty registry. Use RegisterHandler to add service
// handlers before calling Serve.
func NewRegistry(logger dlog.Logger) *Registry {
	if logger == nil {
		logger = dlog.Default()
	}
	return &Registry{
		handlers: make(map[uint16]interfaces.ServiceHandler),
		logger:   logger,
	}
}

// RegisterHandler registers a service handler for a DIMSE request command
// field (types.CStoreRQ, types.CFindRQ, ...). Only one handler can be
// registered per command; a later call replaces the earlier one.
func (r *Registry) RegisterHandler(commandField uint16, handler interfaces.ServiceHandler) {
	r.handlers[commandField] = handler
}

// UnregisterHandler removes the handler for a command field. Requests for
// that command subsequently receive an UnsupportedDICOMCommand-class error
// response.
func (r *Registry) UnregisterHandler(commandField uint16) {
	delete(r.handlers, commandField)
}

// HasHandler reports whether a handler is registered for commandField.
func (r *Registry) HasHandler(commandField uint16) bool {
	_, ok := r.handlers[commandField]
	return ok
}

// RegisteredCommands lists every command field with a registered handler.
func (r *Registry) RegisteredCommands() []uint16 {
	commands := make([]uint16, 0, len(r.handlers))
	for cmd := range r.handlers {
		commands = append(commands, cmd)
	}
	return commands
}

// Serve drains assoc.Inbound() until it closes (association released,
// aborted, or the transport failed), dispatching each reassembled command
// to its registered handler and sending the handler's response back over
// the same presentation context. Intended as an aentity.Handler body:
//
//	entity.StartServer(ctx, addr, func(ctx context.Context, a *association.Association) {
//	    defer a.Close(ctx)
//	    registry.Serve(ctx, a)
//	})
func (r *Registry) Serve(ctx context.Context, assoc *association.Association) {
	for {
		select {
		case in, ok := <-assoc.Inbound():
			if !ok {
				return
			}
			r.dispatch(ctx, assoc, in)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Registry) dispatch(ctx context.Context, assoc *association.Association, in *dimse.IncomingMessage) {
	logger := r.logger.With("command_field", fmt.Sprintf("0x%04x", in.Command.CommandField), "message_id", in.Command.MessageID)
	logger.Debug("routing DIMSE message")

	handler, ok := r.handlers[in.Command.CommandField]
	if !ok {
		logger.Warn("no handler registered for DIMSE command")
		resp := CreateErrorResponse(in.Command, unsupportedCommandStatus)
		if err := assoc.Respond(ctx, in.PresentationContextID, resp, nil); err != nil {
			logger.Warn("failed to send unsupported-command response", "error", err)
		}
		return
	}

	sender := &responder{ctx: ctx, assoc: assoc, presentationContextID: in.PresentationContextID}
	if streaming, ok := handler.(interfaces.StreamingServiceHandler); ok {
		if err := streaming.HandleDIMSEStreaming(ctx, in.Command, in.Dataset, sender); err != nil {
			logger.Warn("streaming handler failed", "error", err)
		}
		return
	}

	respMsg, respData, err := handler.HandleDIMSE(ctx, in.Command, in.Dataset)
	if err != nil {
		logger.Warn("handler failed", "error", err)
		resp := CreateErrorResponse(in.Command, types.StatusFailure)
		_ = assoc.Respond(ctx, in.PresentationContextID, resp, nil)
		return
	}
	if err := assoc.Respond(ctx, in.PresentationContextID, respMsg, respData); err != nil {
		logger.Warn("failed to send response", "error", err)
	}
}

// unsupportedCommandStatus is the status returned for a request whose
// command field has no registered handler. 0x0211 falls in the DIMSE
// general "no such object instance" family reused here for "no such SOP
// class support" since no command-agnostic status is defined for this.
const unsupportedCommandStatus = 0x0211

// responder adapts association.Association to interfaces.ResponseSender
// (and interfaces.CGetResponder), closing over the request's own
// presentation context so a streaming handler can send as many
// intermediate responses as it needs without re-deriving the context ID.
type responder struct {
	ctx                   context.Context
	assoc                 *association.Association
	presentationContextID byte
}

// SendResponse implements interfaces.ResponseSender.
func (s *responder) SendResponse(msg *types.Message, data []byte) error {
	return s.assoc.Respond(s.ctx, s.presentationContextID, msg, data)
}

// SendCStore implements interfaces.CGetResponder: a C-GET SCP sends
// sub-operation C-STORE-RQs over the same presentation context it received
// the C-GET-RQ on, Part 7 §9.3.3 Note 1.
func (s *responder) SendCStore(sopClassUID, sopInstanceUID string, data []byte) error {
	return s.assoc.Store(s.ctx, sopClassUID, sopInstanceUID, data, types.PriorityMedium)
}

// CreateErrorResponse builds a generic DIMSE error response: response
// command field, message ID being responded to, affected SOP class/instance
// carried over from the request, no dataset, and the given status.
func CreateErrorResponse(req *types.Message, status uint16) *types.Message {
	return &types.Message{
		CommandField:              types.ResponseCommandFor(req.CommandField),
		MessageIDBeingRespondedTo: req.MessageID,
		AffectedSOPClassUID:       req.AffectedSOPClassUID,
		AffectedSOPInstanceUID:    req.AffectedSOPInstanceUID,
		CommandDataSetType:        noDataSetPresent,
		Status:                    status,
	}
}
