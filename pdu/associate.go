package pdu

import (
	"encoding/binary"

	"github.com/caio-sobreiro/dicomnet/types"
)

// protocolVersion is the only version this stack speaks, Part 8 §9.3.2.
const protocolVersion uint16 = 0x0001

// PresentationContextResult enumerates the Result/Reason field of a
// Presentation Context AC item, Part 8 Table 9-18.
type PresentationContextResult byte

const (
	PresentationContextAccepted                      PresentationContextResult = 0
	PresentationContextUserRejection                  PresentationContextResult = 1
	PresentationContextNoReason                       PresentationContextResult = 2
	PresentationContextAbstractSyntaxNotSupported     PresentationContextResult = 3
	PresentationContextTransferSyntaxesNotSupported   PresentationContextResult = 4
)

func (r PresentationContextResult) String() string {
	switch r {
	case PresentationContextAccepted:
		return "accepted"
	case PresentationContextUserRejection:
		return "user-rejection"
	case PresentationContextNoReason:
		return "no-reason-given"
	case PresentationContextAbstractSyntaxNotSupported:
		return "abstract-syntax-not-supported"
	case PresentationContextTransferSyntaxesNotSupported:
		return "transfer-syntaxes-not-supported"
	default:
		return "unknown"
	}
}

// PresentationContextRQItem (0x20) proposes one abstract syntax against one
// or more candidate transfer syntaxes.
type PresentationContextRQItem struct {
	ID              byte
	AbstractSyntax  string
	TransferSyntaxes []string
}

func encodePresentationContextRQ(pc PresentationContextRQItem) []byte {
	body := make([]byte, 4)
	body[0] = pc.ID
	body = appendItem(body, types.ItemAbstractSyntax, padUID(pc.AbstractSyntax))
	for _, ts := range pc.TransferSyntaxes {
		body = appendItem(body, types.ItemTransferSyntax, padUID(ts))
	}
	return body
}

func decodePresentationContextRQ(value []byte) (PresentationContextRQItem, *DecodeError) {
	if len(value) < 4 {
		return PresentationContextRQItem{}, newDecodeError(MalformedSubItem, "presentation context RQ item too short")
	}
	pc := PresentationContextRQItem{ID: value[0]}
	offset := 4
	for offset < len(value) {
		itemType, valueStart, valueEnd, err := readItemHeader(value, offset)
		if err != nil {
			return PresentationContextRQItem{}, err
		}
		switch itemType {
		case types.ItemAbstractSyntax:
			pc.AbstractSyntax = trimUID(value[valueStart:valueEnd])
		case types.ItemTransferSyntax:
			pc.TransferSyntaxes = append(pc.TransferSyntaxes, trimUID(value[valueStart:valueEnd]))
		default:
			return PresentationContextRQItem{}, newDecodeError(MalformedSubItem, "unexpected sub-item 0x%02x in presentation context RQ", itemType)
		}
		offset = valueEnd
	}
	return pc, nil
}

// PresentationContextACItem (0x21) answers one proposed context with a
// single transfer syntax (when accepted) or a rejection result.
type PresentationContextACItem struct {
	ID              byte
	Result          PresentationContextResult
	TransferSyntax  string
}

func encodePresentationContextAC(pc PresentationContextACItem) []byte {
	body := make([]byte, 4)
	body[0] = pc.ID
	body[2] = byte(pc.Result)
	body = appendItem(body, types.ItemTransferSyntax, padUID(pc.TransferSyntax))
	return body
}

func decodePresentationContextAC(value []byte) (PresentationContextACItem, *DecodeError) {
	if len(value) < 4 {
		return PresentationContextACItem{}, newDecodeError(MalformedSubItem, "presentation context AC item too short")
	}
	pc := PresentationContextACItem{ID: value[0], Result: PresentationContextResult(value[2])}
	offset := 4
	if offset < len(value) {
		itemType, valueStart, valueEnd, err := readItemHeader(value, offset)
		if err != nil {
			return PresentationContextACItem{}, err
		}
		if itemType != types.ItemTransferSyntax {
			return PresentationContextACItem{}, newDecodeError(MalformedSubItem, "expected transfer syntax sub-item in presentation context AC, got 0x%02x", itemType)
		}
		pc.TransferSyntax = trimUID(value[valueStart:valueEnd])
	}
	return pc, nil
}

// AssociateRQ is the body of an A-ASSOCIATE-RQ PDU, Part 8 §9.3.2.
type AssociateRQ struct {
	CalledAETitle         string
	CallingAETitle        string
	ApplicationContextName string
	PresentationContexts  []PresentationContextRQItem
	UserInformation       *UserInformation
}

// Encode serializes a full A-ASSOCIATE-RQ PDU (type byte through body).
func (rq *AssociateRQ) Encode() []byte {
	fixed := make([]byte, 68)
	binary.BigEndian.PutUint16(fixed[0:2], protocolVersion)
	copy(fixed[4:20], padAETitle(rq.CalledAETitle))
	copy(fixed[20:36], padAETitle(rq.CallingAETitle))

	body := fixed
	body = appendItem(body, types.ItemApplicationContext, padUID(rq.ApplicationContextName))
	for _, pc := range rq.PresentationContexts {
		body = appendItem(body, types.ItemPresentationContextRQ, encodePresentationContextRQ(pc))
	}
	if rq.UserInformation != nil {
		body = append(body, encodeUserInformation(rq.UserInformation)...)
	}

	return wrapPDU(types.TypeAssociateRQ, body)
}

// DecodeAssociateRQ parses the body of an A-ASSOCIATE-RQ PDU (the bytes
// following the 6-byte outer PDU header).
func DecodeAssociateRQ(body []byte) (*AssociateRQ, *DecodeError) {
	if len(body) < 68 {
		return nil, newDecodeError(ShortBuffer, "A-ASSOCIATE-RQ body too short: %d bytes", len(body))
	}
	rq := &AssociateRQ{
		CalledAETitle:  trimAETitle(body[4:20]),
		CallingAETitle: trimAETitle(body[20:36]),
	}

	offset := 68
	for offset < len(body) {
		itemType, valueStart, valueEnd, err := readItemHeader(body, offset)
		if err != nil {
			return nil, err
		}
		value := body[valueStart:valueEnd]
		switch itemType {
		case types.ItemApplicationContext:
			rq.ApplicationContextName = trimUID(value)
		case types.ItemPresentationContextRQ:
			pc, derr := decodePresentationContextRQ(value)
			if derr != nil {
				return nil, derr
			}
			rq.PresentationContexts = append(rq.PresentationContexts, pc)
		case types.ItemUserInformation:
			ui, derr := decodeUserInformation(value)
			if derr != nil {
				return nil, derr
			}
			rq.UserInformation = ui
		default:
			return nil, newDecodeError(MalformedSubItem, "unexpected top-level sub-item 0x%02x in A-ASSOCIATE-RQ", itemType)
		}
		offset = valueEnd
	}

	return rq, nil
}

// AssociateAC is the body of an A-ASSOCIATE-AC PDU, Part 8 §9.3.3. The
// Called/Calling AE Title fields are present on the wire but not
// semantically significant per the standard; they are still carried here
// for parity checking against the request.
type AssociateAC struct {
	CalledAETitle          string
	CallingAETitle         string
	ApplicationContextName string
	PresentationContexts   []PresentationContextACItem
	UserInformation        *UserInformation
}

// Encode serializes a full A-ASSOCIATE-AC PDU.
func (ac *AssociateAC) Encode() []byte {
	fixed := make([]byte, 68)
	binary.BigEndian.PutUint16(fixed[0:2], protocolVersion)
	copy(fixed[4:20], padAETitle(ac.CalledAETitle))
	copy(fixed[20:36], padAETitle(ac.CallingAETitle))

	body := fixed
	body = appendItem(body, types.ItemApplicationContext, padUID(ac.ApplicationContextName))
	for _, pc := range ac.PresentationContexts {
		body = appendItem(body, types.ItemPresentationContextAC, encodePresentationContextAC(pc))
	}
	if ac.UserInformation != nil {
		body = append(body, encodeUserInformation(ac.UserInformation)...)
	}

	return wrapPDU(types.TypeAssociateAC, body)
}

// DecodeAssociateAC parses the body of an A-ASSOCIATE-AC PDU.
func DecodeAssociateAC(body []byte) (*AssociateAC, *DecodeError) {
	if len(body) < 68 {
		return nil, newDecodeError(ShortBuffer, "A-ASSOCIATE-AC body too short: %d bytes", len(body))
	}
	ac := &AssociateAC{
		CalledAETitle:  trimAETitle(body[4:20]),
		CallingAETitle: trimAETitle(body[20:36]),
	}

	offset := 68
	for offset < len(body) {
		itemType, valueStart, valueEnd, err := readItemHeader(body, offset)
		if err != nil {
			return nil, err
		}
		value := body[valueStart:valueEnd]
		switch itemType {
		case types.ItemApplicationContext:
			ac.ApplicationContextName = trimUID(value)
		case types.ItemPresentationContextAC:
			pc, derr := decodePresentationContextAC(value)
			if derr != nil {
				return nil, derr
			}
			ac.PresentationContexts = append(ac.PresentationContexts, pc)
		case types.ItemUserInformation:
			ui, derr := decodeUserInformation(value)
			if derr != nil {
				return nil, derr
			}
			ac.UserInformation = ui
		default:
			return nil, newDecodeError(MalformedSubItem, "unexpected top-level sub-item 0x%02x in A-ASSOCIATE-AC", itemType)
		}
		offset = valueEnd
	}

	return ac, nil
}

// AssociateRJ is the body of an A-ASSOCIATE-RJ PDU, Part 8 §9.3.4.
type AssociateRJ struct {
	Result AssociationRejectResultWire
	Source byte
	Reason byte
}

// AssociationRejectResultWire mirrors errors.AssociationRejectResult at the
// wire layer, keeping pdu free of a dependency on the errors package.
type AssociationRejectResultWire byte

// Encode serializes a full A-ASSOCIATE-RJ PDU.
func (rj *AssociateRJ) Encode() []byte {
	body := []byte{0x00, byte(rj.Result), rj.Source, rj.Reason}
	return wrapPDU(types.TypeAssociateRJ, body)
}

// DecodeAssociateRJ parses the body of an A-ASSOCIATE-RJ PDU.
func DecodeAssociateRJ(body []byte) (*AssociateRJ, *DecodeError) {
	if len(body) != 4 {
		return nil, newDecodeError(MalformedSubItem, "A-ASSOCIATE-RJ body must be 4 bytes, got %d", len(body))
	}
	return &AssociateRJ{
		Result: AssociationRejectResultWire(body[1]),
		Source: body[2],
		Reason: body[3],
	}, nil
}
