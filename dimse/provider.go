// Package dimse implements DICOM Message Service Element exchange, Part 7:
// command set encoding, P-DATA-TF fragmentation and reassembly, and message
// ID correlation between a request and its (possibly multiple, for
// C-FIND/C-GET/C-MOVE) responses. It depends on pdu for the wire types but
// knows nothing about the Upper Layer state machine or the transport
// connection itself — the association layer feeds it decoded P-DATA-TF
// PDUs and supplies a Sender to write its own frames back out.
package dimse

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	dicomerrors "github.com/caio-sobreiro/dicomnet/errors"
	"github.com/caio-sobreiro/dicomnet/internal/dlog"
	"github.com/caio-sobreiro/dicomnet/pdu"
	"github.com/caio-sobreiro/dicomnet/types"
)

// Sender writes a fully-encoded PDU frame to the peer. *transport.Channel
// satisfies this.
type Sender interface {
	WritePDU(ctx context.Context, frame []byte) error
}

// IncomingMessage is one fully-reassembled DIMSE message: a command set and
// its optional data set, addressed to a presentation context. Delivered to
// a service handler when it carries a request (or a C-CANCEL-RQ) with no
// matching pending SendRequest.
type IncomingMessage struct {
	PresentationContextID byte
	Command               *types.Message
	Dataset               []byte
}

// Response is one message delivered on the channel SendRequest returns.
// Err is set instead of Command/Dataset when the association tears down
// before a final response arrives (see Provider.Abort), in which case the
// channel carries exactly one Response before closing.
type Response struct {
	Command *types.Message
	Dataset []byte
	Err     error
}

// Provider correlates outstanding requests with their responses and drives
// command set encode/decode and PDV fragmentation/reassembly for one
// association. Safe for concurrent use: a typical caller has one goroutine
// feeding inbound P-DATA-TF PDUs via HandlePDataTF and others issuing
// requests via SendRequest.
type Provider struct {
	sender           Sender
	maxPDULength     uint32
	acceptedContexts map[byte]struct{}
	logger           dlog.Logger

	nextMessageID atomic.Uint32

	mu           sync.Mutex
	pending      map[uint16]chan *Response
	reassemblers map[byte]*Reassembler
}

// NewProvider builds a Provider that writes outbound frames through sender
// and fragments outbound data to fit within maxPDULength, the value
// negotiated in A-ASSOCIATE-RQ/AC User Information (Max Length Item).
// acceptedContexts restricts HandlePDataTF to PDVs addressed to one of these
// presentation context IDs, Part 8 §9.3.5; a nil map disables the check,
// which unit tests feeding HandlePDataTF directly rely on.
func NewProvider(sender Sender, maxPDULength uint32, acceptedContexts map[byte]struct{}, logger dlog.Logger) *Provider {
	if logger == nil {
		logger = dlog.Default()
	}
	return &Provider{
		sender:           sender,
		maxPDULength:     maxPDULength,
		acceptedContexts: acceptedContexts,
		logger:           logger,
		pending:          make(map[uint16]chan *Response),
		reassemblers:     make(map[byte]*Reassembler),
	}
}

// NextMessageID returns the next Message ID to use for a new request,
// Part 7 §7.1, wrapping from 65535 back to 1. 0 is never issued: some
// peers treat it as "absent".
func (p *Provider) NextMessageID() uint16 {
	for {
		id := uint16(p.nextMessageID.Add(1))
		if id != 0 {
			return id
		}
	}
}

// SendRequest encodes, fragments, and writes a request command (assigning
// a Message ID if msg.MessageID is zero), and returns a channel that
// receives every response correlated to it by Message ID Being Responded
// To. The channel is closed once a non-pending (final) status response has
// been delivered, or once Abort is called. C-FIND/C-GET/C-MOVE callers
// should keep reading from the channel until it closes; C-STORE/C-ECHO
// callers expect exactly one response.
func (p *Provider) SendRequest(ctx context.Context, presContextID byte, msg *types.Message, dataset []byte) (<-chan *Response, error) {
	if msg.MessageID == 0 {
		msg.MessageID = p.NextMessageID()
	}
	if len(dataset) > 0 {
		msg.CommandDataSetType = 0x0000
	} else {
		msg.CommandDataSetType = noDataSetPresent
	}

	ch := make(chan *Response, 4)
	p.mu.Lock()
	p.pending[msg.MessageID] = ch
	p.mu.Unlock()

	if err := p.write(ctx, presContextID, msg, dataset); err != nil {
		p.mu.Lock()
		delete(p.pending, msg.MessageID)
		p.mu.Unlock()
		close(ch)
		return nil, err
	}
	return ch, nil
}

// SendResponse encodes, fragments, and writes a response command. It does
// not register any correlation: responses are never themselves awaited.
func (p *Provider) SendResponse(ctx context.Context, presContextID byte, msg *types.Message, dataset []byte) error {
	if len(dataset) > 0 {
		msg.CommandDataSetType = 0x0000
	} else if msg.Status != types.StatusPending && msg.Status != types.StatusPendingOptionalKeys {
		msg.CommandDataSetType = noDataSetPresent
	}
	return p.write(ctx, presContextID, msg, dataset)
}

// SendCancel writes a C-CANCEL-RQ referencing the Message ID of an
// in-progress C-FIND, C-GET, or C-MOVE request, Part 7 §9.3.2.3.
func (p *Provider) SendCancel(ctx context.Context, presContextID byte, messageIDBeingRespondedTo uint16) error {
	msg := &types.Message{
		CommandField:              types.CCancelRQ,
		MessageIDBeingRespondedTo: messageIDBeingRespondedTo,
		CommandDataSetType:        noDataSetPresent,
	}
	return p.write(ctx, presContextID, msg, nil)
}

func (p *Provider) write(ctx context.Context, presContextID byte, msg *types.Message, dataset []byte) error {
	command := EncodeCommand(msg)
	pdvs := Fragment(presContextID, command, dataset, p.maxPDULength)
	frame := (&pdu.PDataTF{PDVs: pdvs}).Encode()
	return p.sender.WritePDU(ctx, frame)
}

// HandlePDataTF feeds one decoded P-DATA-TF PDU's PDVs through the
// per-context reassembler. When a PDV completes a response, it is routed
// to the matching SendRequest channel and HandlePDataTF returns nil, nil.
// When it completes a request or an unsolicited message with no matching
// pending request (including C-CANCEL-RQ), the reassembled IncomingMessage
// is returned for the caller to dispatch to a service handler.
func (p *Provider) HandlePDataTF(pdt *pdu.PDataTF) (*IncomingMessage, error) {
	var completed *IncomingMessage

	for _, pdv := range pdt.PDVs {
		if p.acceptedContexts != nil {
			if _, ok := p.acceptedContexts[pdv.PresentationContextID]; !ok {
				return nil, dicomerrors.NewProtocolError(dicomerrors.ProtocolErrorInvalidPDUParameter, "",
					fmt.Sprintf("PDV references unaccepted presentation context %d", pdv.PresentationContextID))
			}
		}

		p.mu.Lock()
		r, ok := p.reassemblers[pdv.PresentationContextID]
		if !ok {
			r = &Reassembler{}
			p.reassemblers[pdv.PresentationContextID] = r
		}
		p.mu.Unlock()

		done, err := r.Feed(pdv)
		if err != nil {
			p.mu.Lock()
			delete(p.reassemblers, pdv.PresentationContextID)
			p.mu.Unlock()
			return nil, fmt.Errorf("dimse: reassembly failed on context %d: %w", pdv.PresentationContextID, err)
		}
		if !done {
			continue
		}

		msg, err := r.Message()
		p.mu.Lock()
		delete(p.reassemblers, pdv.PresentationContextID)
		p.mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("dimse: command decode failed on context %d: %w", pdv.PresentationContextID, err)
		}

		in := &IncomingMessage{PresentationContextID: pdv.PresentationContextID, Command: msg, Dataset: r.Dataset()}
		if p.routeResponse(msg, in) {
			continue
		}
		completed = in
	}

	return completed, nil
}

// routeResponse delivers in to its SendRequest channel if msg is a
// response and reports whether it did so. A C-CANCEL-RQ is never routed
// here: it has no Message ID Being Responded To response semantics of its
// own and is always dispatched as an IncomingMessage.
func (p *Provider) routeResponse(msg *types.Message, in *IncomingMessage) bool {
	if !types.IsResponse(msg.CommandField) {
		return false
	}

	p.mu.Lock()
	ch, ok := p.pending[msg.MessageIDBeingRespondedTo]
	final := msg.Status != types.StatusPending && msg.Status != types.StatusPendingOptionalKeys
	if ok && final {
		delete(p.pending, msg.MessageIDBeingRespondedTo)
	}
	p.mu.Unlock()

	if !ok {
		p.logger.Warn("dimse: response with no matching pending request", "message_id", msg.MessageIDBeingRespondedTo)
		return false
	}

	ch <- &Response{Command: in.Command, Dataset: in.Dataset}
	if final {
		close(ch)
	}
	return true
}

// Abort delivers dicomerrors.ErrAborted to every pending request and
// closes its channel, waking any caller blocked reading responses. Called
// by the association layer when the Upper Layer state machine tears down
// (A-ABORT, A-P-ABORT, or transport loss).
func (p *Provider) Abort() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.pending {
		ch <- &Response{Err: dicomerrors.ErrAborted}
		close(ch)
		delete(p.pending, id)
	}
	p.reassemblers = make(map[byte]*Reassembler)
}
