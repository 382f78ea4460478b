package pdu

import (
	"encoding/binary"

	"github.com/caio-sobreiro/dicomnet/types"
)

// MaxLengthItem carries the proposer's/acceptor's maximum PDU length
// (0x51). A value of 0 means unlimited.
type MaxLengthItem struct {
	MaxLength uint32
}

// ImplementationClassUIDItem (0x52).
type ImplementationClassUIDItem struct {
	UID string
}

// ImplementationVersionNameItem (0x55).
type ImplementationVersionNameItem struct {
	Name string
}

// AsyncOperationsWindowItem (0x53), Part 7 Annex D.3.3.3.
type AsyncOperationsWindowItem struct {
	MaxOpsInvoked  uint16
	MaxOpsPerformed uint16
}

// RoleSelectionItem (0x54), Part 7 Annex D.3.3.4. Negotiates which of SCU
// and SCP roles each peer plays for a given abstract syntax.
type RoleSelectionItem struct {
	SOPClassUID string
	SCURole     bool
	SCPRole     bool
}

// UserIdentityType enumerates the User Identity Type field values, Part 7
// Annex D.3.3.6.1.
type UserIdentityType byte

const (
	UserIdentityUsername         UserIdentityType = 1
	UserIdentityUsernamePassword UserIdentityType = 2
	UserIdentityKerberos         UserIdentityType = 3
	UserIdentitySAML             UserIdentityType = 4
	UserIdentityJWT              UserIdentityType = 5
)

// UserIdentityRQItem (0x58). Primary/Secondary fields are carried as opaque
// bytes: this layer never interprets credentials, it only frames them.
type UserIdentityRQItem struct {
	Type                      UserIdentityType
	PositiveResponseRequested bool
	PrimaryField              []byte
	SecondaryField            []byte
}

// UserIdentityACItem (0x59).
type UserIdentityACItem struct {
	ServerResponse []byte
}

// ExtendedNegotiationItem is the SOP Class Extended Negotiation sub-item
// (0x56), Part 7 Annex D.3.3.3.1. ServiceClassAppInfo is opaque,
// service-class-specific bytes.
type ExtendedNegotiationItem struct {
	SOPClassUID          string
	ServiceClassAppInfo []byte
}

// CommonExtendedNegotiationItem is the SOP Class Common Extended
// Negotiation sub-item (0x57), Part 7 Annex D.3.3.6.
type CommonExtendedNegotiationItem struct {
	SOPClassUID             string
	ServiceClassUID          string
	RelatedGeneralSOPClassUIDs []string
}

// UnknownItem preserves a User Information sub-item this codec does not
// recognize, verbatim, so it can be re-emitted unchanged (forward
// compatibility, spec §4.1).
type UnknownItem struct {
	Type byte
	Raw  []byte
}

// UserInformation aggregates all sub-items nested within the User
// Information Item (0x50) of an A-ASSOCIATE-RQ/AC.
type UserInformation struct {
	MaxLength               *MaxLengthItem
	ImplementationClassUID  *ImplementationClassUIDItem
	ImplementationVersion   *ImplementationVersionNameItem
	AsyncOpsWindow          *AsyncOperationsWindowItem
	RoleSelections          []RoleSelectionItem
	ExtendedNegotiations    []ExtendedNegotiationItem
	CommonExtendedNegotiations []CommonExtendedNegotiationItem
	UserIdentityRQ          *UserIdentityRQItem
	UserIdentityAC          *UserIdentityACItem
	Unknown                 []UnknownItem
}

func encodeRoleSelection(r RoleSelectionItem) []byte {
	uid := []byte(r.SOPClassUID)
	buf := make([]byte, 0, 2+len(uid)+2)
	buf = appendUint16(buf, uint16(len(uid)))
	buf = append(buf, uid...)
	buf = append(buf, boolByte(r.SCURole), boolByte(r.SCPRole))
	return buf
}

func decodeRoleSelection(value []byte) (RoleSelectionItem, *DecodeError) {
	if len(value) < 2 {
		return RoleSelectionItem{}, newDecodeError(MalformedSubItem, "role selection item too short")
	}
	uidLen := int(binary.BigEndian.Uint16(value[0:2]))
	if 2+uidLen+2 > len(value) {
		return RoleSelectionItem{}, newDecodeError(LengthMismatch, "role selection UID length exceeds item")
	}
	uid := string(value[2 : 2+uidLen])
	scu := value[2+uidLen] != 0
	scp := value[2+uidLen+1] != 0
	return RoleSelectionItem{SOPClassUID: uid, SCURole: scu, SCPRole: scp}, nil
}

func encodeUserIdentityRQ(u UserIdentityRQItem) []byte {
	buf := make([]byte, 0, 4+len(u.PrimaryField)+len(u.SecondaryField))
	buf = append(buf, byte(u.Type), boolByte(u.PositiveResponseRequested))
	buf = appendUint16(buf, uint16(len(u.PrimaryField)))
	buf = append(buf, u.PrimaryField...)
	buf = appendUint16(buf, uint16(len(u.SecondaryField)))
	buf = append(buf, u.SecondaryField...)
	return buf
}

func decodeUserIdentityRQ(value []byte) (UserIdentityRQItem, *DecodeError) {
	if len(value) < 4 {
		return UserIdentityRQItem{}, newDecodeError(MalformedSubItem, "user identity RQ item too short")
	}
	u := UserIdentityRQItem{
		Type:                      UserIdentityType(value[0]),
		PositiveResponseRequested: value[1] != 0,
	}
	offset := 2
	primaryLen := int(binary.BigEndian.Uint16(value[offset : offset+2]))
	offset += 2
	if offset+primaryLen > len(value) {
		return UserIdentityRQItem{}, newDecodeError(LengthMismatch, "user identity primary field exceeds item")
	}
	u.PrimaryField = append([]byte(nil), value[offset:offset+primaryLen]...)
	offset += primaryLen
	if offset+2 > len(value) {
		return UserIdentityRQItem{}, newDecodeError(MalformedSubItem, "user identity RQ item missing secondary length")
	}
	secondaryLen := int(binary.BigEndian.Uint16(value[offset : offset+2]))
	offset += 2
	if offset+secondaryLen > len(value) {
		return UserIdentityRQItem{}, newDecodeError(LengthMismatch, "user identity secondary field exceeds item")
	}
	u.SecondaryField = append([]byte(nil), value[offset:offset+secondaryLen]...)
	return u, nil
}

func encodeUserIdentityAC(u UserIdentityACItem) []byte {
	buf := make([]byte, 0, 2+len(u.ServerResponse))
	buf = appendUint16(buf, uint16(len(u.ServerResponse)))
	return append(buf, u.ServerResponse...)
}

func decodeUserIdentityAC(value []byte) (UserIdentityACItem, *DecodeError) {
	if len(value) < 2 {
		return UserIdentityACItem{}, newDecodeError(MalformedSubItem, "user identity AC item too short")
	}
	respLen := int(binary.BigEndian.Uint16(value[0:2]))
	if 2+respLen > len(value) {
		return UserIdentityACItem{}, newDecodeError(LengthMismatch, "user identity AC response exceeds item")
	}
	return UserIdentityACItem{ServerResponse: append([]byte(nil), value[2:2+respLen]...)}, nil
}

func encodeExtendedNegotiation(e ExtendedNegotiationItem) []byte {
	uid := padUID(e.SOPClassUID)
	buf := make([]byte, 0, 2+len(uid)+len(e.ServiceClassAppInfo))
	buf = appendUint16(buf, uint16(len(uid)))
	buf = append(buf, uid...)
	return append(buf, e.ServiceClassAppInfo...)
}

func decodeExtendedNegotiation(value []byte) (ExtendedNegotiationItem, *DecodeError) {
	if len(value) < 2 {
		return ExtendedNegotiationItem{}, newDecodeError(MalformedSubItem, "extended negotiation item too short")
	}
	uidLen := int(binary.BigEndian.Uint16(value[0:2]))
	if 2+uidLen > len(value) {
		return ExtendedNegotiationItem{}, newDecodeError(LengthMismatch, "extended negotiation UID length exceeds item")
	}
	uid := trimUID(value[2 : 2+uidLen])
	info := append([]byte(nil), value[2+uidLen:]...)
	return ExtendedNegotiationItem{SOPClassUID: uid, ServiceClassAppInfo: info}, nil
}

func encodeCommonExtendedNegotiation(c CommonExtendedNegotiationItem) []byte {
	sopUID := padUID(c.SOPClassUID)
	svcUID := padUID(c.ServiceClassUID)
	buf := make([]byte, 0, 64)
	buf = appendUint16(buf, uint16(len(sopUID)))
	buf = append(buf, sopUID...)
	buf = appendUint16(buf, uint16(len(svcUID)))
	buf = append(buf, svcUID...)

	var relatedBuf []byte
	for _, related := range c.RelatedGeneralSOPClassUIDs {
		ruid := padUID(related)
		relatedBuf = appendUint16(relatedBuf, uint16(len(ruid)))
		relatedBuf = append(relatedBuf, ruid...)
	}
	buf = appendUint16(buf, uint16(len(relatedBuf)))
	buf = append(buf, relatedBuf...)
	return buf
}

func decodeCommonExtendedNegotiation(value []byte) (CommonExtendedNegotiationItem, *DecodeError) {
	offset := 0
	readUID := func() (string, *DecodeError) {
		if offset+2 > len(value) {
			return "", newDecodeError(MalformedSubItem, "common extended negotiation item truncated")
		}
		l := int(binary.BigEndian.Uint16(value[offset : offset+2]))
		offset += 2
		if offset+l > len(value) {
			return "", newDecodeError(LengthMismatch, "common extended negotiation UID length exceeds item")
		}
		uid := trimUID(value[offset : offset+l])
		offset += l
		return uid, nil
	}

	sopUID, derr := readUID()
	if derr != nil {
		return CommonExtendedNegotiationItem{}, derr
	}
	svcUID, derr := readUID()
	if derr != nil {
		return CommonExtendedNegotiationItem{}, derr
	}

	if offset+2 > len(value) {
		return CommonExtendedNegotiationItem{SOPClassUID: sopUID, ServiceClassUID: svcUID}, nil
	}
	relatedLen := int(binary.BigEndian.Uint16(value[offset : offset+2]))
	offset += 2
	end := offset + relatedLen
	if end > len(value) {
		end = len(value)
	}

	var related []string
	for offset+2 <= end {
		l := int(binary.BigEndian.Uint16(value[offset : offset+2]))
		offset += 2
		if offset+l > end {
			break
		}
		related = append(related, trimUID(value[offset:offset+l]))
		offset += l
	}

	return CommonExtendedNegotiationItem{
		SOPClassUID:                sopUID,
		ServiceClassUID:            svcUID,
		RelatedGeneralSOPClassUIDs: related,
	}, nil
}

// encodeUserInformation serializes the User Information Item (0x50) and all
// populated sub-items, in the fixed order Part 8 implementations
// conventionally use (Max Length, Implementation Class UID, Async Ops
// Window, Role Selection(s), Implementation Version Name, Extended
// Negotiation(s), User Identity, Common Extended Negotiation(s)), followed
// by any unrecognized sub-items preserved verbatim.
func encodeUserInformation(ui *UserInformation) []byte {
	var body []byte

	if ui.MaxLength != nil {
		body = appendItem(body, types.ItemMaxLength, appendUint32(nil, ui.MaxLength.MaxLength))
	}
	if ui.ImplementationClassUID != nil {
		body = appendItem(body, types.ItemImplementationClassUID, padUID(ui.ImplementationClassUID.UID))
	}
	if ui.AsyncOpsWindow != nil {
		v := appendUint16(nil, ui.AsyncOpsWindow.MaxOpsInvoked)
		v = appendUint16(v, ui.AsyncOpsWindow.MaxOpsPerformed)
		body = appendItem(body, types.ItemAsyncOperationsWindow, v)
	}
	for _, r := range ui.RoleSelections {
		body = appendItem(body, types.ItemRoleSelection, encodeRoleSelection(r))
	}
	if ui.ImplementationVersion != nil {
		body = appendItem(body, types.ItemImplementationVersionName, []byte(ui.ImplementationVersion.Name))
	}
	for _, e := range ui.ExtendedNegotiations {
		body = appendItem(body, types.ItemSOPClassExtendedNegotiation, encodeExtendedNegotiation(e))
	}
	if ui.UserIdentityRQ != nil {
		body = appendItem(body, types.ItemUserIdentityRQ, encodeUserIdentityRQ(*ui.UserIdentityRQ))
	}
	if ui.UserIdentityAC != nil {
		body = appendItem(body, types.ItemUserIdentityAC, encodeUserIdentityAC(*ui.UserIdentityAC))
	}
	for _, c := range ui.CommonExtendedNegotiations {
		body = appendItem(body, types.ItemSOPClassCommonExtNegotiation, encodeCommonExtendedNegotiation(c))
	}
	for _, u := range ui.Unknown {
		body = appendItem(body, u.Type, u.Raw)
	}

	return appendItem(nil, types.ItemUserInformation, body)
}

// decodeUserInformation parses the body of a User Information Item (the
// bytes after its own 4-byte header).
func decodeUserInformation(data []byte) (*UserInformation, *DecodeError) {
	ui := &UserInformation{}
	offset := 0

	for offset < len(data) {
		itemType, valueStart, valueEnd, err := readItemHeader(data, offset)
		if err != nil {
			return nil, err
		}
		value := data[valueStart:valueEnd]

		switch itemType {
		case types.ItemMaxLength:
			if len(value) != 4 {
				return nil, newDecodeError(MalformedSubItem, "max length item must be 4 bytes, got %d", len(value))
			}
			ui.MaxLength = &MaxLengthItem{MaxLength: binary.BigEndian.Uint32(value)}
		case types.ItemImplementationClassUID:
			ui.ImplementationClassUID = &ImplementationClassUIDItem{UID: trimUID(value)}
		case types.ItemAsyncOperationsWindow:
			if len(value) != 4 {
				return nil, newDecodeError(MalformedSubItem, "async ops window item must be 4 bytes, got %d", len(value))
			}
			ui.AsyncOpsWindow = &AsyncOperationsWindowItem{
				MaxOpsInvoked:   binary.BigEndian.Uint16(value[0:2]),
				MaxOpsPerformed: binary.BigEndian.Uint16(value[2:4]),
			}
		case types.ItemRoleSelection:
			r, derr := decodeRoleSelection(value)
			if derr != nil {
				return nil, derr
			}
			ui.RoleSelections = append(ui.RoleSelections, r)
		case types.ItemImplementationVersionName:
			ui.ImplementationVersion = &ImplementationVersionNameItem{Name: trimUID(value)}
		case types.ItemSOPClassExtendedNegotiation:
			e, derr := decodeExtendedNegotiation(value)
			if derr != nil {
				return nil, derr
			}
			ui.ExtendedNegotiations = append(ui.ExtendedNegotiations, e)
		case types.ItemUserIdentityRQ:
			u, derr := decodeUserIdentityRQ(value)
			if derr != nil {
				return nil, derr
			}
			ui.UserIdentityRQ = &u
		case types.ItemUserIdentityAC:
			u, derr := decodeUserIdentityAC(value)
			if derr != nil {
				return nil, derr
			}
			ui.UserIdentityAC = &u
		case types.ItemSOPClassCommonExtNegotiation:
			c, derr := decodeCommonExtendedNegotiation(value)
			if derr != nil {
				return nil, derr
			}
			ui.CommonExtendedNegotiations = append(ui.CommonExtendedNegotiations, c)
		default:
			// Forward compatibility: preserve unrecognized sub-items verbatim.
			ui.Unknown = append(ui.Unknown, UnknownItem{Type: itemType, Raw: append([]byte(nil), value...)})
		}

		offset = valueEnd
	}

	return ui, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
