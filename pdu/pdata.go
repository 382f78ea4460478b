package pdu

import (
	"encoding/binary"

	"github.com/caio-sobreiro/dicomnet/types"
)

// PresentationDataValue is one fragment of a command or data set, carried
// inside a P-DATA-TF PDU, Part 8 §9.3.5.
type PresentationDataValue struct {
	PresentationContextID byte
	// Command is true when this fragment carries (a portion of) the DIMSE
	// command set rather than a data set.
	Command bool
	// Last is true when this is the final fragment of its command or data
	// set.
	Last bool
	Data []byte
}

const (
	mchCommandBit = 0x01
	mchLastBit    = 0x02
)

func encodePDV(pdv PresentationDataValue) []byte {
	mch := byte(0)
	if pdv.Command {
		mch |= mchCommandBit
	}
	if pdv.Last {
		mch |= mchLastBit
	}

	item := make([]byte, 4, 6+len(pdv.Data))
	binary.BigEndian.PutUint32(item, uint32(2+len(pdv.Data)))
	item = append(item, pdv.PresentationContextID, mch)
	return append(item, pdv.Data...)
}

func decodePDV(buf []byte, offset int) (PresentationDataValue, int, *DecodeError) {
	if offset+4 > len(buf) {
		return PresentationDataValue{}, 0, newDecodeError(ShortBuffer, "PDV item header at offset %d exceeds buffer", offset)
	}
	length := binary.BigEndian.Uint32(buf[offset : offset+4])
	start := offset + 4
	end := start + int(length)
	if end > len(buf) {
		return PresentationDataValue{}, 0, newDecodeError(LengthMismatch, "PDV item length %d exceeds remaining buffer", length)
	}
	if length < 2 {
		return PresentationDataValue{}, 0, newDecodeError(MalformedSubItem, "PDV item length %d too short for context ID and control header", length)
	}

	contextID := buf[start]
	mch := buf[start+1]
	if mch&^(mchCommandBit|mchLastBit) != 0 {
		return PresentationDataValue{}, 0, newDecodeError(MalformedSubItem, "PDV message control header 0x%02x has reserved bits set", mch)
	}
	pdv := PresentationDataValue{
		PresentationContextID: contextID,
		Command:               mch&mchCommandBit != 0,
		Last:                  mch&mchLastBit != 0,
		Data:                  append([]byte(nil), buf[start+2:end]...),
	}
	return pdv, end, nil
}

// PDataTF is the body of a P-DATA-TF PDU: one or more PDVs, Part 8 §9.3.5.
type PDataTF struct {
	PDVs []PresentationDataValue
}

// Encode serializes a full P-DATA-TF PDU.
func (p *PDataTF) Encode() []byte {
	var body []byte
	for _, pdv := range p.PDVs {
		body = append(body, encodePDV(pdv)...)
	}
	return wrapPDU(types.TypePDataTF, body)
}

// DecodePDataTF parses the body of a P-DATA-TF PDU.
func DecodePDataTF(body []byte) (*PDataTF, *DecodeError) {
	p := &PDataTF{}
	offset := 0
	for offset < len(body) {
		pdv, next, err := decodePDV(body, offset)
		if err != nil {
			return nil, err
		}
		p.PDVs = append(p.PDVs, pdv)
		offset = next
	}
	return p, nil
}
