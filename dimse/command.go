package dimse

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/caio-sobreiro/dicomnet/types"
)

// Command Group (0000,eeee) element tags, Part 7 Annex E. The command set
// is always encoded Implicit VR Little Endian regardless of the negotiated
// transfer syntax for the accompanying data set, Part 7 §6.3.1.
const (
	tagCommandGroupLength              = 0x0000
	tagAffectedSOPClassUID             = 0x0002
	tagRequestedSOPClassUID            = 0x0003
	tagCommandField                    = 0x0100
	tagMessageID                       = 0x0110
	tagMessageIDBeingRespondedTo       = 0x0120
	tagMoveDestination                 = 0x0600
	tagPriority                        = 0x0700
	tagCommandDataSetType              = 0x0800
	tagStatus                          = 0x0900
	tagAffectedSOPInstanceUID          = 0x1000
	tagRequestedSOPInstanceUID         = 0x1001
	tagEventTypeID                     = 0x1002
	tagAttributeIdentifierList         = 0x1005
	tagActionTypeID                    = 0x1008
	tagNumberOfRemainingSuboperations  = 0x1020
	tagNumberOfCompletedSuboperations  = 0x1021
	tagNumberOfFailedSuboperations     = 0x1022
	tagNumberOfWarningSuboperations    = 0x1023
)

// noDataSetPresent is the Command Data Set Type value meaning the command
// has no following data set, Part 7 §6.3.1.1.4.
const noDataSetPresent = 0x0101

// EncodeCommand serializes a DIMSE command set as Implicit VR Little
// Endian, the only encoding a command set is ever allowed to use, Part 7
// §6.3.1. Command Group Length, Command Field and Command Data Set Type are
// always written; every other field is omitted when left at its zero value.
func EncodeCommand(msg *types.Message) []byte {
	buf := make([]byte, 0, 256)
	buf = appendElement(buf, tagCommandGroupLength, make([]byte, 4))
	lengthPos := len(buf) - 4

	if msg.AffectedSOPClassUID != "" {
		buf = appendElement(buf, tagAffectedSOPClassUID, padUIDBytes(msg.AffectedSOPClassUID))
	}
	if msg.RequestedSOPClassUID != "" {
		buf = appendElement(buf, tagRequestedSOPClassUID, padUIDBytes(msg.RequestedSOPClassUID))
	}
	buf = appendElement(buf, tagCommandField, uint16Bytes(msg.CommandField))
	if msg.MessageID != 0 {
		buf = appendElement(buf, tagMessageID, uint16Bytes(msg.MessageID))
	}
	if msg.MessageIDBeingRespondedTo != 0 {
		buf = appendElement(buf, tagMessageIDBeingRespondedTo, uint16Bytes(msg.MessageIDBeingRespondedTo))
	}
	if msg.MoveDestination != "" {
		buf = appendElement(buf, tagMoveDestination, padAEBytes(msg.MoveDestination))
	}
	if msg.Priority != 0 {
		buf = appendElement(buf, tagPriority, uint16Bytes(msg.Priority))
	}
	buf = appendElement(buf, tagCommandDataSetType, uint16Bytes(msg.CommandDataSetType))
	if msg.Status != 0 {
		buf = appendElement(buf, tagStatus, uint16Bytes(msg.Status))
	}
	if msg.AffectedSOPInstanceUID != "" {
		buf = appendElement(buf, tagAffectedSOPInstanceUID, padUIDBytes(msg.AffectedSOPInstanceUID))
	}
	if msg.RequestedSOPInstanceUID != "" {
		buf = appendElement(buf, tagRequestedSOPInstanceUID, padUIDBytes(msg.RequestedSOPInstanceUID))
	}
	if msg.EventTypeID != nil {
		buf = appendElement(buf, tagEventTypeID, uint16Bytes(*msg.EventTypeID))
	}
	if len(msg.AttributeIdentifierList) > 0 {
		buf = appendElement(buf, tagAttributeIdentifierList, encodeTagList(msg.AttributeIdentifierList))
	}
	if msg.ActionTypeID != nil {
		buf = appendElement(buf, tagActionTypeID, uint16Bytes(*msg.ActionTypeID))
	}
	if msg.NumberOfRemainingSuboperations != nil {
		buf = appendElement(buf, tagNumberOfRemainingSuboperations, uint16Bytes(*msg.NumberOfRemainingSuboperations))
	}
	if msg.NumberOfCompletedSuboperations != nil {
		buf = appendElement(buf, tagNumberOfCompletedSuboperations, uint16Bytes(*msg.NumberOfCompletedSuboperations))
	}
	if msg.NumberOfFailedSuboperations != nil {
		buf = appendElement(buf, tagNumberOfFailedSuboperations, uint16Bytes(*msg.NumberOfFailedSuboperations))
	}
	if msg.NumberOfWarningSuboperations != nil {
		buf = appendElement(buf, tagNumberOfWarningSuboperations, uint16Bytes(*msg.NumberOfWarningSuboperations))
	}

	groupLength := uint32(len(buf) - lengthPos - 4)
	binary.LittleEndian.PutUint32(buf[lengthPos:lengthPos+4], groupLength)
	return buf
}

// appendElement appends one Implicit VR Little Endian element (group 0000
// implied) to buf: a 4-byte tag, a 4-byte length, then the value.
func appendElement(buf []byte, element uint16, value []byte) []byte {
	buf = append(buf, 0x00, 0x00, byte(element), byte(element>>8))
	length := uint32(len(value))
	buf = append(buf, byte(length), byte(length>>8), byte(length>>16), byte(length>>24))
	return append(buf, value...)
}

func uint16Bytes(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func padUIDBytes(uid string) []byte {
	b := []byte(uid)
	if len(b)%2 == 1 {
		b = append(b, 0x00)
	}
	return b
}

func padAEBytes(ae string) []byte {
	b := []byte(ae)
	if len(b)%2 == 1 {
		b = append(b, 0x20)
	}
	return b
}

func encodeTagList(tags []uint32) []byte {
	b := make([]byte, 0, 4*len(tags))
	for _, tag := range tags {
		group := uint16(tag >> 16)
		element := uint16(tag)
		b = append(b, byte(group), byte(group>>8), byte(element), byte(element>>8))
	}
	return b
}

func decodeTagList(value []byte) []uint32 {
	tags := make([]uint32, 0, len(value)/4)
	for i := 0; i+4 <= len(value); i += 4 {
		group := binary.LittleEndian.Uint16(value[i : i+2])
		element := binary.LittleEndian.Uint16(value[i+2 : i+4])
		tags = append(tags, uint32(group)<<16|uint32(element))
	}
	return tags
}

// DecodeCommand parses an Implicit VR Little Endian command set, Part 7
// §6.3.1. It never trusts input lengths beyond the buffer and returns an
// error instead of panicking on truncated data.
func DecodeCommand(data []byte) (*types.Message, error) {
	msg := &types.Message{CommandDataSetType: noDataSetPresent}
	offset := 0

	for offset+8 <= len(data) {
		group := binary.LittleEndian.Uint16(data[offset : offset+2])
		element := binary.LittleEndian.Uint16(data[offset+2 : offset+4])
		length := binary.LittleEndian.Uint32(data[offset+4 : offset+8])

		valueStart := offset + 8
		valueEnd := valueStart + int(length)
		if valueEnd > len(data) {
			return nil, fmt.Errorf("dimse: element (%04x,%04x) declares length %d beyond buffer", group, element, length)
		}
		value := data[valueStart:valueEnd]

		if group == 0x0000 {
			switch element {
			case tagAffectedSOPClassUID:
				msg.AffectedSOPClassUID = trimUID(value)
			case tagRequestedSOPClassUID:
				msg.RequestedSOPClassUID = trimUID(value)
			case tagCommandField:
				msg.CommandField = mustUint16(value)
			case tagMessageID:
				msg.MessageID = mustUint16(value)
			case tagMessageIDBeingRespondedTo:
				msg.MessageIDBeingRespondedTo = mustUint16(value)
			case tagMoveDestination:
				msg.MoveDestination = trimUID(value)
			case tagPriority:
				msg.Priority = mustUint16(value)
			case tagCommandDataSetType:
				msg.CommandDataSetType = mustUint16(value)
			case tagStatus:
				msg.Status = mustUint16(value)
			case tagAffectedSOPInstanceUID:
				msg.AffectedSOPInstanceUID = trimUID(value)
			case tagRequestedSOPInstanceUID:
				msg.RequestedSOPInstanceUID = trimUID(value)
			case tagEventTypeID:
				v := mustUint16(value)
				msg.EventTypeID = &v
			case tagAttributeIdentifierList:
				msg.AttributeIdentifierList = decodeTagList(value)
			case tagActionTypeID:
				v := mustUint16(value)
				msg.ActionTypeID = &v
			case tagNumberOfRemainingSuboperations:
				v := mustUint16(value)
				msg.NumberOfRemainingSuboperations = &v
			case tagNumberOfCompletedSuboperations:
				v := mustUint16(value)
				msg.NumberOfCompletedSuboperations = &v
			case tagNumberOfFailedSuboperations:
				v := mustUint16(value)
				msg.NumberOfFailedSuboperations = &v
			case tagNumberOfWarningSuboperations:
				v := mustUint16(value)
				msg.NumberOfWarningSuboperations = &v
			}
		}

		offset = valueEnd
	}
	if offset != len(data) {
		return nil, fmt.Errorf("dimse: %d trailing bytes too short for an element header", len(data)-offset)
	}

	return msg, nil
}

func mustUint16(value []byte) uint16 {
	if len(value) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(value[:2])
}

func trimUID(value []byte) string {
	return strings.TrimRight(string(value), "\x00 ")
}
