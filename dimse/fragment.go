package dimse

import (
	dicomerrors "github.com/caio-sobreiro/dicomnet/errors"
	"github.com/caio-sobreiro/dicomnet/pdu"
	"github.com/caio-sobreiro/dicomnet/types"
)

// pdvHeaderSize is the PDV item length prefix plus its context ID and
// control header byte, Part 8 §9.3.5.
const pdvHeaderSize = 4 + 1 + 1

// Fragment splits command and (optional) data set bytes into the
// Presentation Data Values of one or more P-DATA-TF PDUs, each no larger
// than maxPDULength, Part 8 §9.3.5 and Annex D.1. The command set always
// precedes the data set and each is fragmented independently, since a PDV
// never mixes command and data set bytes.
func Fragment(presContextID byte, command, dataset []byte, maxPDULength uint32) []pdu.PresentationDataValue {
	maxChunk := maxFragmentSize(maxPDULength)

	var pdvs []pdu.PresentationDataValue
	pdvs = append(pdvs, fragmentOne(presContextID, command, true, maxChunk)...)
	if len(dataset) > 0 {
		pdvs = append(pdvs, fragmentOne(presContextID, dataset, false, maxChunk)...)
	}
	return pdvs
}

func maxFragmentSize(maxPDULength uint32) int {
	// pdu.HeaderLength covers the P-DATA-TF envelope; pdvHeaderSize covers
	// the PDV item itself. A zero or unreasonably small negotiated max
	// length still yields at least one byte per fragment.
	size := int(maxPDULength) - pdu.HeaderLength - pdvHeaderSize
	if size < 1 {
		size = 1
	}
	return size
}

func fragmentOne(presContextID byte, data []byte, isCommand bool, maxChunk int) []pdu.PresentationDataValue {
	if len(data) == 0 {
		return []pdu.PresentationDataValue{{
			PresentationContextID: presContextID,
			Command:               isCommand,
			Last:                  true,
			Data:                  nil,
		}}
	}

	var pdvs []pdu.PresentationDataValue
	for offset := 0; offset < len(data); offset += maxChunk {
		end := offset + maxChunk
		if end > len(data) {
			end = len(data)
		}
		pdvs = append(pdvs, pdu.PresentationDataValue{
			PresentationContextID: presContextID,
			Command:               isCommand,
			Last:                  end == len(data),
			Data:                  data[offset:end],
		})
	}
	return pdvs
}

// Reassembler accumulates the PDVs of one DIMSE message (a command set and
// its optional data set) arriving across one or more P-DATA-TF PDUs on a
// single presentation context, Part 7 §6.3.1 and Part 8 §9.3.5. A
// Reassembler is single-context and single-message: once Feed reports the
// message complete, create a new Reassembler for the next one.
type Reassembler struct {
	command        []byte
	dataset        []byte
	commandDone    bool
	decoded        bool
	datasetWanted  bool
}

// Feed appends one PDV's payload to the in-progress command or data set. It
// returns true once both the command set and any data set it declares are
// fully reassembled.
func (r *Reassembler) Feed(pdv pdu.PresentationDataValue) (complete bool, err error) {
	if pdv.Command {
		r.command = append(r.command, pdv.Data...)
		if pdv.Last {
			r.commandDone = true
		}
	} else {
		if !r.commandDone {
			return false, dicomerrors.NewProtocolError(dicomerrors.ProtocolErrorInvalidPDUParameter, "",
				"data PDV arrived before the command PDV's last fragment")
		}
		r.dataset = append(r.dataset, pdv.Data...)
	}

	if r.commandDone && !r.decoded {
		msg, decodeErr := DecodeCommand(r.command)
		if decodeErr != nil {
			return false, decodeErr
		}
		r.decoded = true
		r.datasetWanted = msg.CommandDataSetType != noDataSetPresent
	}

	if !r.commandDone {
		return false, nil
	}
	if !r.datasetWanted {
		return true, nil
	}
	return pdv.Last && !pdv.Command, nil
}

// Message decodes the fully-reassembled command set. Only valid once Feed
// has reported the message complete.
func (r *Reassembler) Message() (*types.Message, error) {
	return DecodeCommand(r.command)
}

// Dataset returns the fully-reassembled data set bytes, or nil if the
// command declared none.
func (r *Reassembler) Dataset() []byte {
	return r.dataset
}
