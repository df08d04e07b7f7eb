package apdu

import (
	"testing"

	"github.com/metergrid/godlms/base"
	"github.com/stretchr/testify/require"
)

func TestEncodeAARQNoSecurity(t *testing.T) {
	p := &AssociationParams{
		ApplicationContext: base.ApplicationContextLNNoCiphering,
		Authentication:     base.AuthenticationNone,
		ConformanceBlock:   base.ConformanceBlockGet | base.ConformanceBlockSet | base.ConformanceBlockAction,
		MaxPduRecvSize:     1024,
	}
	full, redacted, err := EncodeAARQ(p)
	require.NoError(t, err)
	require.Equal(t, full, redacted) // no credential to redact
	require.Equal(t, byte(base.TagAARQ), full[0])
}

func TestEncodeAARQRedactsPassword(t *testing.T) {
	p := &AssociationParams{
		ApplicationContext: base.ApplicationContextLNNoCiphering,
		Authentication:     base.AuthenticationLow,
		Password:           []byte("supersecret"),
		ConformanceBlock:   base.ConformanceBlockGet,
		MaxPduRecvSize:     512,
	}
	full, redacted, err := EncodeAARQ(p)
	require.NoError(t, err)
	require.NotEqual(t, full, redacted)
	require.NotContains(t, string(redacted), "supersecret")
	require.Contains(t, string(full), "supersecret")
}

func TestEncodeAARQHighGmacRequiresCipher(t *testing.T) {
	p := &AssociationParams{
		ApplicationContext: base.ApplicationContextLNCiphering,
		Authentication:     base.AuthenticationHighGmac,
		SystemTitle:        []byte("12345678"),
		Password:           []byte("challenge"),
	}
	_, _, err := EncodeAARQ(p)
	require.Error(t, err)

	p.Cipher = func(tag byte, plaintext []byte) ([]byte, error) {
		return append([]byte{tag}, plaintext...), nil
	}
	full, _, err := EncodeAARQ(p)
	require.NoError(t, err)
	require.NotEmpty(t, full)
}

func TestEncodeRLRQ(t *testing.T) {
	require.Equal(t, []byte{byte(base.TagRLRQ), 0x00}, EncodeRLRQ(true))
	require.Equal(t, []byte{byte(base.TagRLRQ), 0x03, base.BERTypeContext, 0x01, byte(base.ReleaseRequestReasonNormal)}, EncodeRLRQ(false))
}

func TestDecodeAARE(t *testing.T) {
	var content []byte
	content = append(content, 0xa1, 0x09, 0x06, 0x07, 0x60, 0x85, 0x74, 0x05, 0x08, 0x01, byte(base.ApplicationContextLNNoCiphering))
	content = append(content, 0xa2, 0x03, 0x02, 0x01, byte(base.AssociationResultAccepted))
	content = append(content, 0xa3, 0x05, 0xa0, 0x03, 0x02, 0x01, byte(base.SourceDiagnosticNone))

	// InitiateResponse body: flag(0x00) version 5F1F0400(conformance-tag
	// magic, last byte doubles as the conformance's high byte) conformance
	// (3 more bytes) maxPduSize(2) vaAddress(2) -- 13 bytes, grounded on
	// the donor's own overlapping-index layout.
	initiate := []byte{
		byte(base.TagInitiateResponse),
		0x00, base.DlmsVersion, 0x5F, 0x1F, 0x04, 0x00,
		0x00, 0x00, 0x00,
		0x00, 0x07,
		0x00, 0x07,
	}
	content = append(content, 0xbe, byte(1+1+len(initiate)))
	content = append(content, 0x04, byte(len(initiate)))
	content = append(content, initiate...)

	aare, err := DecodeAARE(content, nil)
	require.NoError(t, err)
	require.Equal(t, base.ApplicationContextLNNoCiphering, aare.ApplicationContextName)
	require.Equal(t, base.AssociationResultAccepted, aare.AssociationResult)
	require.Equal(t, base.SourceDiagnosticNone, aare.SourceDiagnostic)
	require.NotNil(t, aare.Initiate)
	require.Equal(t, uint16(7), aare.Initiate.ServerMaxReceivePduSize)
}
