package apdu

import (
	"bytes"
	"fmt"

	"github.com/metergrid/godlms/axdr"
)

// LNItem addresses one attribute or method of a logical-name-referenced
// COSEM object, with optional selective access for GET/ACTION.
type LNItem struct {
	ClassId          uint16
	Obis             axdr.Obis
	Attribute        int8
	HasAccess        bool
	AccessDescriptor byte
	AccessData       *axdr.Data // selective-access parameter, when HasAccess
	SetData          *axdr.Data // SET/ACTION payload, nil for a bare GET
}

func encodeCosemAttribute(dst *bytes.Buffer, item *LNItem) {
	dst.WriteByte(byte(item.ClassId >> 8))
	dst.WriteByte(byte(item.ClassId))
	dst.Write(item.Obis.Bytes())
	dst.WriteByte(byte(item.Attribute))
}

// EncodeGetItem writes one GET-Request item: cosem attribute descriptor
// plus an optional selective-access parameter.
func EncodeGetItem(dst *bytes.Buffer, item *LNItem) error {
	encodeCosemAttribute(dst, item)
	if item.HasAccess {
		dst.WriteByte(1)
		dst.WriteByte(item.AccessDescriptor)
		enc, err := axdr.Encode(*item.AccessData)
		if err != nil {
			return fmt.Errorf("apdu: encoding get selective access: %w", err)
		}
		dst.Write(enc)
	} else {
		dst.WriteByte(0)
	}
	return nil
}

// EncodeSetItem writes one SET-Request item: cosem attribute descriptor,
// optional selective access, and the value being set.
func EncodeSetItem(dst *bytes.Buffer, item *LNItem) error {
	encodeCosemAttribute(dst, item)
	if item.HasAccess {
		dst.WriteByte(1)
		dst.WriteByte(item.AccessDescriptor)
		enc, err := axdr.Encode(*item.AccessData)
		if err != nil {
			return fmt.Errorf("apdu: encoding set selective access: %w", err)
		}
		dst.Write(enc)
	} else {
		dst.WriteByte(0)
	}
	if item.SetData == nil {
		return fmt.Errorf("apdu: set item requires a value")
	}
	enc, err := axdr.Encode(*item.SetData)
	if err != nil {
		return fmt.Errorf("apdu: encoding set value: %w", err)
	}
	dst.Write(enc)
	return nil
}

// EncodeActionItem writes one ACTION-Request item: cosem method
// descriptor and an optional method argument. Actions never carry
// selective access.
func EncodeActionItem(dst *bytes.Buffer, item *LNItem) error {
	if item.HasAccess {
		return fmt.Errorf("apdu: action item cannot have selective access")
	}
	encodeCosemAttribute(dst, item)
	if item.SetData != nil {
		dst.WriteByte(1)
		enc, err := axdr.Encode(*item.SetData)
		if err != nil {
			return fmt.Errorf("apdu: encoding action argument: %w", err)
		}
		dst.Write(enc)
	} else {
		dst.WriteByte(0)
	}
	return nil
}
