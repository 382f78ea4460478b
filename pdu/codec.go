package pdu

import (
	"encoding/binary"

	"github.com/caio-sobreiro/dicomnet/types"
)

// HeaderLength is the size of the fixed Type/Reserved/Length envelope that
// precedes every PDU body, Part 8 §9.3.
const HeaderLength = 6

// wrapPDU prepends the 6-byte Type/Reserved/Length envelope to body.
func wrapPDU(pduType byte, body []byte) []byte {
	frame := make([]byte, HeaderLength, HeaderLength+len(body))
	frame[0] = pduType
	binary.BigEndian.PutUint32(frame[2:6], uint32(len(body)))
	return append(frame, body...)
}

// Frame is a fully decoded PDU: its type byte and the typed body produced
// by the matching Decode* function. Body is one of *AssociateRQ,
// *AssociateAC, *AssociateRJ, *PDataTF, *ReleaseRQ, *ReleaseRP, or *Abort.
type Frame struct {
	Type byte
	Body interface{}
}

// PeekLength reads the 4-byte big-endian length field that follows a PDU's
// type and reserved bytes, letting a transport reader know how many more
// bytes to buffer before calling Decode. header must be at least 6 bytes.
func PeekLength(header []byte) (uint32, *DecodeError) {
	if len(header) < HeaderLength {
		return 0, newDecodeError(ShortBuffer, "PDU header requires %d bytes, got %d", HeaderLength, len(header))
	}
	return binary.BigEndian.Uint32(header[2:6]), nil
}

// Decode parses a complete PDU frame (6-byte header plus body) into its
// typed representation. It never panics: every malformed input is reported
// as a *DecodeError.
func Decode(frame []byte) (*Frame, *DecodeError) {
	if len(frame) < HeaderLength {
		return nil, newDecodeError(ShortBuffer, "PDU frame requires at least %d bytes, got %d", HeaderLength, len(frame))
	}
	pduType := frame[0]
	length := binary.BigEndian.Uint32(frame[2:6])
	body := frame[HeaderLength:]
	if int(length) != len(body) {
		return nil, newDecodeError(LengthMismatch, "PDU declares length %d but body is %d bytes", length, len(body))
	}

	var decoded interface{}
	var err *DecodeError

	switch pduType {
	case types.TypeAssociateRQ:
		decoded, err = DecodeAssociateRQ(body)
	case types.TypeAssociateAC:
		decoded, err = DecodeAssociateAC(body)
	case types.TypeAssociateRJ:
		decoded, err = DecodeAssociateRJ(body)
	case types.TypePDataTF:
		decoded, err = DecodePDataTF(body)
	case types.TypeReleaseRQ:
		decoded, err = DecodeReleaseRQ(body)
	case types.TypeReleaseRP:
		decoded, err = DecodeReleaseRP(body)
	case types.TypeAbort:
		decoded, err = DecodeAbort(body)
	default:
		return nil, newDecodeError(UnknownPduType, "unrecognized PDU type 0x%02x", pduType)
	}
	if err != nil {
		return nil, err
	}

	return &Frame{Type: pduType, Body: decoded}, nil
}

// Encoder is implemented by every PDU body type.
type Encoder interface {
	Encode() []byte
}
