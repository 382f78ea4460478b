package pdu

import (
	"encoding/binary"
	"strings"
)

// padAETitle returns title as exactly 16 ASCII bytes, space-padded or
// truncated, per Part 8 §9.3.2.
func padAETitle(title string) []byte {
	buf := make([]byte, 16)
	for i := range buf {
		buf[i] = ' '
	}
	copy(buf, title)
	return buf
}

func trimAETitle(raw []byte) string {
	return strings.TrimRight(string(raw), " \x00")
}

// padUID right-pads an ASCII UID with a single trailing NUL byte to make its
// length even, per Part 8 §9.3.
func padUID(uid string) []byte {
	b := []byte(uid)
	if len(b)%2 == 1 {
		b = append(b, 0x00)
	}
	return b
}

func trimUID(raw []byte) string {
	return strings.TrimRight(string(raw), "\x00 ")
}

// readItemHeader reads a sub-item's 1-byte type, 1-byte reserved, and 2-byte
// big-endian length, validating the value fits within buf.
func readItemHeader(buf []byte, offset int) (itemType byte, valueStart, valueEnd int, err *DecodeError) {
	if offset+4 > len(buf) {
		return 0, 0, 0, newDecodeError(ShortBuffer, "sub-item header at offset %d exceeds buffer of length %d", offset, len(buf))
	}
	itemType = buf[offset]
	length := binary.BigEndian.Uint16(buf[offset+2 : offset+4])
	valueStart = offset + 4
	valueEnd = valueStart + int(length)
	if valueEnd > len(buf) {
		return 0, 0, 0, newDecodeError(LengthMismatch, "sub-item 0x%02x length %d exceeds remaining buffer", itemType, length)
	}
	return itemType, valueStart, valueEnd, nil
}

func appendItem(buf []byte, itemType byte, value []byte) []byte {
	buf = append(buf, itemType, 0x00)
	lenBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(lenBytes, uint16(len(value)))
	buf = append(buf, lenBytes...)
	return append(buf, value...)
}

func appendUint16(buf []byte, v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return append(buf, b...)
}

func appendUint32(buf []byte, v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return append(buf, b...)
}
