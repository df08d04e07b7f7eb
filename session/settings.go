package session

import (
	"fmt"

	"github.com/metergrid/godlms/base"
	"github.com/metergrid/godlms/cipher"
)

// defaultChunkSize is the number of items a GET/SET-Request-WithList carries
// before read_multiple/write_multiple splits into consecutive requests
// (spec §4.4.3).
const defaultChunkSize = 10

// defaultMaxPduSize is ClientSettings.MaxPduSize's default before
// negotiation (spec §6).
const defaultMaxPduSize = 1024

// pduOverhead is the worst-case non-payload overhead of a single-block GET/
// SET/ACTION request (tag, variant, invoke-id, cosem descriptor, selective
// access flag, ciphering envelope when present), used to decide whether a
// value fits in one request or needs block transfer. Grounded on the
// donor's own `pduoverhead`/`pdublockoverhead` constants in dlmsal.go.
const pduOverhead = 6 + 5 + 12 + 9 // header bytes + GCM tag + system title slop

// blockOverhead is the additional per-block framing cost once a transfer
// is already blocked (block header + length prefix on top of pduOverhead).
const blockOverhead = pduOverhead + 10

// Settings carries the ClientSettings configuration described in spec §6.
type Settings struct {
	ClientAddress uint8
	ServerAddress uint16

	MaxPduSize uint16 // negotiable up to >= 65535; 0 means defaultMaxPduSize

	ApplicationContext base.ApplicationContext
	Authentication     base.Authentication
	Password           []byte // LLS password, or HLS challenge for High*

	// ClientSystemTitle is required for AuthenticationHighGmac, carried in
	// the AARQ's calling-AP-title field.
	ClientSystemTitle []byte

	// Security is the L3 ciphering context, or nil for an unciphered
	// association. Its PeerSystemTitle is filled in from the AARE by
	// Connect.
	Security *cipher.Context

	UseDedicatedKey bool
	DedicatedKey    []byte

	ConformanceBlock uint32

	// HighPriority/ConfirmedRequests set the top two bits of every
	// invoke-id-and-priority byte the session emits.
	HighPriority      bool
	ConfirmedRequests bool

	// EmptyRLRQ sends the minimal 2-byte RLRQ with no release reason,
	// matching meters that reject the longer form.
	EmptyRLRQ bool

	// MaxAttributesPerRequest bounds GET/SET-Request-WithList item counts
	// (spec §4.4.3's chunk_size). 0 means defaultChunkSize.
	MaxAttributesPerRequest int
}

func (s *Settings) maxPduSize() uint16 {
	if s.MaxPduSize == 0 {
		return defaultMaxPduSize
	}
	return s.MaxPduSize
}

func (s *Settings) chunkSize() int {
	if s.MaxAttributesPerRequest <= 0 {
		return defaultChunkSize
	}
	return s.MaxAttributesPerRequest
}

func (s *Settings) invokeBits() byte {
	var b byte
	if s.HighPriority {
		b |= 0x80
	}
	if s.ConfirmedRequests {
		b |= 0x40
	}
	return b
}

// defaultLNConformance is the conformance block every logical-name
// association proposes unless the caller overrides it, grounded on the
// donor's NewSettingsWithLowAuthenticationLN default.
const defaultLNConformance = base.ConformanceBlockBlockTransferWithGetOrRead |
	base.ConformanceBlockBlockTransferWithSetOrWrite |
	base.ConformanceBlockBlockTransferWithAction |
	base.ConformanceBlockAction |
	base.ConformanceBlockGet |
	base.ConformanceBlockSet |
	base.ConformanceBlockSelectiveAccess |
	base.ConformanceBlockMultipleReferences |
	base.ConformanceBlockAttribute0SupportedWithGet

// NewSettingsWithNoAuthentication builds Settings for an unauthenticated,
// unciphered logical-name association.
func NewSettingsWithNoAuthentication() *Settings {
	return &Settings{
		ApplicationContext: base.ApplicationContextLNNoCiphering,
		Authentication:     base.AuthenticationNone,
		HighPriority:       true,
		ConfirmedRequests:  true,
		EmptyRLRQ:          true,
		ConformanceBlock:   defaultLNConformance,
	}
}

// NewSettingsWithLowAuthentication builds Settings for a logical-name
// association authenticated with an LLS password.
func NewSettingsWithLowAuthentication(password string) *Settings {
	return &Settings{
		ApplicationContext: base.ApplicationContextLNNoCiphering,
		Authentication:     base.AuthenticationLow,
		Password:           []byte(password),
		HighPriority:       true,
		ConfirmedRequests:  true,
		EmptyRLRQ:          true,
		ConformanceBlock:   defaultLNConformance,
	}
}

// NewSettingsWithCiphering builds Settings for a logical-name association
// secured end to end: GMAC (or a stronger HLS mechanism) at association
// time, AES-128-GCM ciphering of every GET/SET/ACTION thereafter. clientTitle
// must be 8 bytes; security's invocation counter and keys must already be
// configured by the caller.
func NewSettingsWithCiphering(clientTitle []byte, security *cipher.Context, challenge []byte, mechanism base.Authentication) (*Settings, error) {
	if len(clientTitle) != 8 {
		return nil, fmt.Errorf("session: client system title must be 8 bytes, got %d", len(clientTitle))
	}
	if security == nil {
		return nil, fmt.Errorf("session: ciphered settings require a security context")
	}
	return &Settings{
		ApplicationContext: base.ApplicationContextLNCiphering,
		Authentication:     mechanism,
		Password:           challenge,
		ClientSystemTitle:  clientTitle,
		Security:           security,
		HighPriority:       true,
		ConfirmedRequests:  true,
		EmptyRLRQ:          true,
		ConformanceBlock:   defaultLNConformance | base.ConformanceBlockGeneralProtection,
	}, nil
}
