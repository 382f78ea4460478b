package pdu

import "github.com/caio-sobreiro/dicomnet/types"

// ReleaseRQ is the body of an A-RELEASE-RQ PDU, Part 8 §9.3.6: 4 reserved
// bytes, no parameters.
type ReleaseRQ struct{}

func (r *ReleaseRQ) Encode() []byte {
	return wrapPDU(types.TypeReleaseRQ, make([]byte, 4))
}

func DecodeReleaseRQ(body []byte) (*ReleaseRQ, *DecodeError) {
	if len(body) != 4 {
		return nil, newDecodeError(MalformedSubItem, "A-RELEASE-RQ body must be 4 bytes, got %d", len(body))
	}
	return &ReleaseRQ{}, nil
}

// ReleaseRP is the body of an A-RELEASE-RP PDU, Part 8 §9.3.7: 4 reserved
// bytes, no parameters.
type ReleaseRP struct{}

func (r *ReleaseRP) Encode() []byte {
	return wrapPDU(types.TypeReleaseRP, make([]byte, 4))
}

func DecodeReleaseRP(body []byte) (*ReleaseRP, *DecodeError) {
	if len(body) != 4 {
		return nil, newDecodeError(MalformedSubItem, "A-RELEASE-RP body must be 4 bytes, got %d", len(body))
	}
	return &ReleaseRP{}, nil
}

// AbortSource distinguishes who originated an A-ABORT, Part 8 Table 9-26.
type AbortSource byte

const (
	AbortSourceServiceUser     AbortSource = 0x00
	AbortSourceServiceProvider AbortSource = 0x02
)

// AbortReason enumerates the service-provider-originated abort reasons,
// Part 8 Table 9-26. Meaningless when Source is AbortSourceServiceUser.
type AbortReason byte

const (
	AbortReasonNotSpecified         AbortReason = 0x00
	AbortReasonUnrecognizedPDU      AbortReason = 0x01
	AbortReasonUnexpectedPDU        AbortReason = 0x02
	AbortReasonUnrecognizedParameter AbortReason = 0x04
	AbortReasonUnexpectedParameter  AbortReason = 0x05
	AbortReasonInvalidParameterValue AbortReason = 0x06
)

// Abort is the body of an A-ABORT PDU, Part 8 §9.3.8.
type Abort struct {
	Source AbortSource
	Reason AbortReason
}

func (a *Abort) Encode() []byte {
	body := []byte{0x00, 0x00, byte(a.Source), byte(a.Reason)}
	return wrapPDU(types.TypeAbort, body)
}

func DecodeAbort(body []byte) (*Abort, *DecodeError) {
	if len(body) != 4 {
		return nil, newDecodeError(MalformedSubItem, "A-ABORT body must be 4 bytes, got %d", len(body))
	}
	return &Abort{Source: AbortSource(body[2]), Reason: AbortReason(body[3])}, nil
}
