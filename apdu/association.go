package apdu

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/metergrid/godlms/axdr"
	"github.com/metergrid/godlms/base"
)

// AssociationParams carries everything EncodeAARQ needs to build an AARQ
// APDU: the negotiated application context, the authentication mechanism
// and its credential, and the xDLMS InitiateRequest fields.
type AssociationParams struct {
	ApplicationContext base.ApplicationContext
	Authentication     base.Authentication
	Password           []byte // LLS password or HLS challenge, per Authentication
	SystemTitle        []byte // required for AuthenticationHighGmac
	DedicatedKey       []byte // present only if UseDedicatedKey
	UseDedicatedKey    bool
	ConformanceBlock   uint32
	MaxPduRecvSize     uint16

	// Cipher, when non-nil, is called to GCM-wrap the xDLMS InitiateRequest
	// block for AuthenticationHighGmac associations. The session layer
	// supplies this from the cipher package; apdu stays transport-agnostic.
	Cipher func(tag byte, plaintext []byte) ([]byte, error)
}

func encodeBERTag(dst *bytes.Buffer, tag byte, data []byte) {
	dst.WriteByte(tag)
	axdr.EncodeLength(dst, uint(len(data)))
	dst.Write(data)
}

func encodeBERNestedTag(dst *bytes.Buffer, tag byte, innerTag byte, data []byte) {
	dst.WriteByte(tag)
	var inner bytes.Buffer
	inner.WriteByte(innerTag)
	axdr.EncodeLength(&inner, uint(len(data)))
	inner.Write(data)
	axdr.EncodeLength(dst, uint(inner.Len()))
	dst.Write(inner.Bytes())
}

func putApplicationContextName(dst *bytes.Buffer, p *AssociationParams) {
	dst.WriteByte(base.BERTypeContext | base.BERTypeConstructed | base.PduTypeApplicationContextName)
	dst.Write([]byte{0x09, 0x06, 0x07, 0x60, 0x85, 0x74, 0x05, 0x08, 0x01})
	dst.WriteByte(byte(p.ApplicationContext))
}

func putMechanismName(dst *bytes.Buffer, p *AssociationParams) {
	if p.Authentication == base.AuthenticationNone {
		return
	}
	dst.WriteByte(base.BERTypeContext | base.PduTypeMechanismName)
	dst.Write([]byte{0x07, 0x60, 0x85, 0x74, 0x05, 0x08, 0x02})
	dst.WriteByte(byte(p.Authentication))
}

func putSecurityValue(dst *bytes.Buffer, p *AssociationParams) {
	if p.Authentication == base.AuthenticationNone {
		return
	}
	encodeBERNestedTag(dst, base.BERTypeContext|base.BERTypeConstructed|base.PduTypeCallingAuthenticationValue, 0x80, p.Password)
}

func putSystemTitle(dst *bytes.Buffer, p *AssociationParams) {
	if p.Authentication == base.AuthenticationHighGmac {
		encodeBERNestedTag(dst, base.BERTypeContext|base.BERTypeConstructed|base.PduTypeCallingAPTitle, 0x04, p.SystemTitle)
	}
}

func buildInitiateRequest(p *AssociationParams) []byte {
	var body []byte
	if p.UseDedicatedKey {
		body = make([]byte, 15+len(p.DedicatedKey))
		body[0] = 0x01
		body[1] = 0x01
		body[2] = byte(len(p.DedicatedKey))
		copy(body[3:], p.DedicatedKey)
	} else {
		body = make([]byte, 14)
		body[0] = 0x01
		body[1] = 0x00
	}
	tail := body[len(body)-12:]
	tail[0] = 0x00
	tail[1] = 0x00
	tail[2] = 0x06
	tail[3] = 0x5f
	tail[4] = 0x1f
	tail[5] = 0x04
	binary.BigEndian.PutUint32(tail[6:], p.ConformanceBlock)
	tail[10] = byte(p.MaxPduRecvSize >> 8)
	tail[11] = byte(p.MaxPduRecvSize)
	return body
}

func putUserInformation(dst *bytes.Buffer, p *AssociationParams) error {
	xdlms := buildInitiateRequest(p)
	if p.Authentication == base.AuthenticationHighGmac {
		if p.Cipher == nil {
			return fmt.Errorf("apdu: AuthenticationHighGmac association requires a Cipher function")
		}
		enc, err := p.Cipher(byte(base.TagGloInitiateRequest), xdlms)
		if err != nil {
			return fmt.Errorf("apdu: ciphering initiate request: %w", err)
		}
		xdlms = enc
	}
	encodeBERNestedTag(dst, base.BERTypeContext|base.BERTypeConstructed|base.PduTypeUserInformation, 0x04, xdlms)
	return nil
}

// EncodeAARQ builds an AARQ APDU. It returns both the full encoding and a
// second copy with the authentication credential zeroed, so callers can log
// the redacted copy without ever writing a real password or HLS challenge
// to a log sink.
func EncodeAARQ(p *AssociationParams) (full []byte, redacted []byte, err error) {
	var content bytes.Buffer
	putApplicationContextName(&content, p)
	putSystemTitle(&content, p)
	if p.Authentication != base.AuthenticationNone {
		encodeBERTag(&content, base.BERTypeContext|base.PduTypeSenderAcseRequirements, []byte{0x07, 0x80})
	}
	putMechanismName(&content, p)
	secStart := content.Len()
	putSecurityValue(&content, p)
	secEnd := content.Len()
	if err := putUserInformation(&content, p); err != nil {
		return nil, nil, err
	}

	var buf bytes.Buffer
	encodeBERTag(&buf, byte(base.TagAARQ), content.Bytes())
	full = buf.Bytes()
	redacted = make([]byte, len(full))
	copy(redacted, full)
	hdr := len(full) - content.Len() // AARQ tag and length bytes ahead of content
	for i := hdr + secStart; i < hdr+secEnd; i++ {
		redacted[i] = 0
	}
	return full, redacted, nil
}

// EncodeRLRQ builds a Release-Request APDU. When empty is true it writes
// the minimal 2-byte form with no reason/user-information; otherwise it
// writes the 5-byte form carrying ReleaseRequestReasonNormal.
func EncodeRLRQ(empty bool) []byte {
	var dst bytes.Buffer
	dst.WriteByte(byte(base.TagRLRQ))
	if empty {
		dst.WriteByte(0x00)
		return dst.Bytes()
	}
	dst.WriteByte(0x03)
	dst.WriteByte(base.BERTypeContext)
	dst.WriteByte(0x01)
	dst.WriteByte(byte(base.ReleaseRequestReasonNormal))
	return dst.Bytes()
}

// berField is one top-level BER tag-length-value field of an AARE.
type berField struct {
	tag  byte
	data []byte
}

func decodeBERFields(src []byte) ([]berField, error) {
	var out []berField
	for len(src) > 0 {
		if len(src) < 2 {
			return nil, fmt.Errorf("apdu: truncated BER field")
		}
		tag := src[0]
		n, c, err := axdr.DecodeLength(bytes.NewReader(src[1:]))
		if err != nil {
			return nil, err
		}
		if len(src) < 1+c+int(n) {
			return nil, fmt.Errorf("apdu: declared BER field length exceeds remaining input")
		}
		out = append(out, berField{tag: tag, data: src[1+c : 1+c+int(n)]})
		src = src[1+c+int(n):]
	}
	return out, nil
}

// AARE is the decoded content of an Association-Response APDU.
type AARE struct {
	ApplicationContextName base.ApplicationContext
	AssociationResult      base.AssociationResult
	SourceDiagnostic       base.SourceDiagnostic
	SystemTitle            []byte
	Initiate               *InitiateResponse
	ConfirmedServiceError  *ConfirmedServiceError
}

// InitiateResponse is the decoded xDLMS InitiateResponse carried inside an
// AARE's user-information field.
type InitiateResponse struct {
	NegotiatedQualityOfService byte
	NegotiatedConformance      uint32
	ServerMaxReceivePduSize    uint16
	VAAddress                  int16
}

// ConfirmedServiceError is the decoded content of a Confirmed-Service-Error,
// returned instead of an InitiateResponse when the meter rejects the
// association at the xDLMS layer (e.g. incompatible conformance request).
type ConfirmedServiceError struct {
	ConfirmedServiceError byte
	ServiceError          byte
	Value                 byte
}

func decodeApplicationContextName(f *berField) (base.ApplicationContext, error) {
	if len(f.data) != 9 {
		return 0, fmt.Errorf("apdu: invalid application-context-name length")
	}
	want := []byte{0x06, 0x07, 0x60, 0x85, 0x74, 0x05, 0x08, 0x01}
	if !bytes.Equal(f.data[:8], want) {
		return 0, fmt.Errorf("apdu: invalid application-context-name content")
	}
	return base.ApplicationContext(f.data[8]), nil
}

func decodeAssociationResultField(f *berField) (base.AssociationResult, error) {
	if len(f.data) != 3 {
		return 0, fmt.Errorf("apdu: invalid association-result length")
	}
	if f.data[0] != 0x02 || f.data[1] != 0x01 {
		return 0, fmt.Errorf("apdu: invalid association-result content")
	}
	return base.AssociationResult(f.data[2]), nil
}

func decodeSourceDiagnosticField(f *berField) (base.SourceDiagnostic, error) {
	if len(f.data) != 5 {
		return 0, fmt.Errorf("apdu: invalid source-diagnostic length")
	}
	if !bytes.Equal(f.data[1:4], []byte{0x03, 0x02, 0x01}) {
		return 0, fmt.Errorf("apdu: invalid source-diagnostic content")
	}
	return base.SourceDiagnostic(f.data[4]), nil
}

func decodeAPTitleField(f *berField) ([]byte, error) {
	if len(f.data) < 2 {
		return nil, fmt.Errorf("apdu: invalid AP-title length")
	}
	tag := f.data[0]
	n, c, err := axdr.DecodeLength(bytes.NewReader(f.data[1:]))
	if err != nil {
		return nil, err
	}
	if tag != 0x04 {
		return nil, fmt.Errorf("apdu: invalid AP-title content")
	}
	out := make([]byte, n)
	copy(out, f.data[1+c:1+c+int(n)])
	return out, nil
}

func decodeInitiateResponseBody(src []byte) (InitiateResponse, error) {
	var out InitiateResponse
	if len(src) < 13 {
		if len(src) == 12 {
			src = append(src, 0)
		} else {
			return out, fmt.Errorf("apdu: invalid initiate-response length")
		}
	}
	if src[0] == 0x01 {
		out.NegotiatedQualityOfService = src[1]
		src = src[2:]
	} else {
		src = src[1:]
	}
	if src[0] != base.DlmsVersion {
		return out, fmt.Errorf("apdu: unsupported dlms version %d", src[0])
	}
	if !bytes.Equal(src[1:5], []byte{0x5F, 0x1F, 0x04, 0x00}) {
		return out, fmt.Errorf("apdu: invalid initiate-response content")
	}
	out.NegotiatedConformance = binary.BigEndian.Uint32(src[4:8])
	out.ServerMaxReceivePduSize = binary.BigEndian.Uint16(src[8:10])
	out.VAAddress = int16(binary.BigEndian.Uint16(src[10:12]))
	return out, nil
}

func decodeConfirmedServiceErrorBody(src []byte) (ConfirmedServiceError, error) {
	if len(src) < 3 {
		return ConfirmedServiceError{}, fmt.Errorf("apdu: invalid confirmed-service-error length")
	}
	return ConfirmedServiceError{
		ConfirmedServiceError: src[0],
		ServiceError:          src[1],
		Value:                 src[2],
	}, nil
}

// decipher, when non-nil, GCM-unwraps a GloInitiateResponse payload found
// inside the user-information field; a GloConfirmedServiceError is returned
// as an error without being deciphered. The session layer supplies
// decipher from the cipher package.
func decodeUserInformationTag(d []byte, decipher func(ciphertext []byte) ([]byte, error)) (*InitiateResponse, *ConfirmedServiceError, error) {
	if len(d) == 0 {
		return nil, nil, fmt.Errorf("apdu: empty user-information content")
	}
	switch base.CosemTag(d[0]) {
	case base.TagInitiateResponse:
		ir, err := decodeInitiateResponseBody(d[1:])
		return &ir, nil, err
	case base.TagConfirmedServiceError:
		cse, err := decodeConfirmedServiceErrorBody(d[1:])
		return nil, &cse, err
	case base.TagGloConfirmedServiceError:
		return nil, nil, fmt.Errorf("apdu: meter returned a ciphered confirmed-service-error")
	case base.TagGloInitiateResponse:
		if decipher == nil {
			return nil, nil, fmt.Errorf("apdu: ciphered initiate-response requires a decipher function")
		}
		n, c, err := axdr.DecodeLength(bytes.NewReader(d[1:]))
		if err != nil {
			return nil, nil, err
		}
		body := d[1+c:]
		if len(body) < int(n) || n < 5 {
			return nil, nil, fmt.Errorf("apdu: invalid ciphered xDLMS length")
		}
		plain, err := decipher(body[:n])
		if err != nil {
			return nil, nil, err
		}
		return decodeUserInformationTag(plain, decipher)
	default:
		return nil, nil, fmt.Errorf("apdu: unexpected user-information tag %#x", d[0])
	}
}

func decodeUserInformationField(f *berField, decipher func([]byte) ([]byte, error)) (*InitiateResponse, *ConfirmedServiceError, error) {
	if len(f.data) < 6 {
		return nil, nil, fmt.Errorf("apdu: invalid user-information length")
	}
	tag := f.data[0]
	n, c, err := axdr.DecodeLength(bytes.NewReader(f.data[1:]))
	if err != nil {
		return nil, nil, err
	}
	if tag != 0x04 {
		return nil, nil, fmt.Errorf("apdu: invalid user-information content")
	}
	return decodeUserInformationTag(f.data[1+c:1+c+int(n)], decipher)
}

// DecodeAARE parses an AARE APDU body (the bytes following the AARE's own
// outer tag+length, i.e. the content octets). decipher unwraps a ciphered
// InitiateResponse when the association uses AuthenticationHighGmac; pass
// nil for unciphered associations.
func DecodeAARE(content []byte, decipher func([]byte) ([]byte, error)) (AARE, error) {
	fields, err := decodeBERFields(content)
	if err != nil {
		return AARE{}, err
	}
	var out AARE
	for i := range fields {
		f := &fields[i]
		switch f.tag {
		case base.BERTypeContext | base.BERTypeConstructed | base.PduTypeApplicationContextName: // 0xa1
			out.ApplicationContextName, err = decodeApplicationContextName(f)
		case base.BERTypeContext | base.BERTypeConstructed | base.PduTypeCalledAPTitle: // 0xa2
			out.AssociationResult, err = decodeAssociationResultField(f)
		case base.BERTypeContext | base.BERTypeConstructed | base.PduTypeCalledAEQualifier: // 0xa3
			out.SourceDiagnostic, err = decodeSourceDiagnosticField(f)
		case base.BERTypeContext | base.BERTypeConstructed | base.PduTypeCalledAPInvocationID: // 0xa4
			out.SystemTitle, err = decodeAPTitleField(f)
		case base.BERTypeContext | base.BERTypeConstructed | base.PduTypeUserInformation: // 0xbe
			out.Initiate, out.ConfirmedServiceError, err = decodeUserInformationField(f, decipher)
		}
		if err != nil {
			return out, err
		}
	}
	return out, nil
}
