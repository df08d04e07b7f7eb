// Package cipher implements the L3 ciphering layer: AES-128-GCM
// authenticated encryption of GET/SET/ACTION APDUs under the GLO (global,
// shared-key) and DED (dedicated, per-association-key) key regimes, with
// the deterministic IV construction and invocation-counter replay
// protection required by the Green Book.
//
// It consolidates the donor's gcm and ciphering packages, which historically
// duplicated the same AES-GCM math behind two slightly different call
// shapes (plus a KMS-backed variant this module does not carry, see
// DESIGN.md).
package cipher

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/metergrid/godlms/base"
)

// Errors raised by Encrypt/Decrypt, per spec §4.3/§7.
var (
	ErrInvalidTag            = fmt.Errorf("cipher: AES-GCM authentication tag mismatch")
	ErrReplaySuspected       = fmt.Errorf("cipher: invocation counter did not strictly increase")
	ErrCounterExhausted      = fmt.Errorf("cipher: invocation counter would overflow")
	ErrTruncatedFrame        = fmt.Errorf("cipher: ciphered frame shorter than security-control + counter + tag")
	ErrSecurityLevelMismatch = fmt.Errorf("cipher: unsupported security-control byte")
)

// KeyRegime selects between the shared Global key and a per-association
// Dedicated key, which select disjoint tag ranges on the wire (§3.5).
type KeyRegime byte

const (
	RegimeGlobal    KeyRegime = iota // GLO
	RegimeDedicated                  // DED
)

// Security-control byte bit layout (§4.3): bits 0-2 carry the security
// suite id, bit4 requests authentication, bit5 requests encryption, bit6
// selects the dedicated key, bit7 marks a broadcast frame.
const (
	scSuiteMask    byte = 0x07
	scAuthenticate byte = 0x10
	scEncrypt      byte = 0x20
	scKeySet       byte = 0x40
	scBroadcast    byte = 0x80
)

// Context holds one association's security material and invocation-counter
// state (spec §3.9). It is not safe for concurrent use; the session engine
// that owns it is itself single-threaded per association (§5).
type Context struct {
	Regime          KeyRegime
	SecuritySuite   byte
	SystemTitle     [8]byte // this client's own system title
	PeerSystemTitle [8]byte // the server's system title, learned from AARE

	encKey  *engine
	authKey []byte // AAD material, 16 bytes; nil disables authentication-only framing

	invocationCounter uint32 // own counter, incremented before every emission
	peerCounter       uint32 // last-seen server counter
	peerCounterSeen   bool
}

// NewContext builds a Context for one association. key is the 16-byte
// global or dedicated encryption key (per regime); authKey is the 16-byte
// authentication key used as AAD whenever a frame requests authentication;
// pass nil if the association never authenticates.
func NewContext(regime KeyRegime, suite byte, key, authKey []byte, systemTitle [8]byte) (*Context, error) {
	eng, err := newEngine(key)
	if err != nil {
		return nil, err
	}
	return &Context{
		Regime:        regime,
		SecuritySuite: suite,
		SystemTitle:   systemTitle,
		encKey:        eng,
		authKey:       authKey,
	}, nil
}

// SetPeerSystemTitle records the server's system title, learned from the
// AARE's calling-AP-title field, before the first Decrypt call.
func (c *Context) SetPeerSystemTitle(title [8]byte) {
	c.PeerSystemTitle = title
}

// InvocationCounter returns the counter value used by the most recent
// Encrypt call, or 0 before the first; the next call uses this value plus one.
func (c *Context) InvocationCounter() uint32 {
	return c.invocationCounter
}

func buildIV(systemTitle [8]byte, ic uint32) []byte {
	iv := make([]byte, 12)
	copy(iv, systemTitle[:])
	binary.BigEndian.PutUint32(iv[8:], ic)
	return iv
}

func securityControlByte(suite byte, authenticate, encrypt bool, regime KeyRegime, broadcast bool) byte {
	sc := suite & scSuiteMask
	if authenticate {
		sc |= scAuthenticate
	}
	if encrypt {
		sc |= scEncrypt
	}
	if regime == RegimeDedicated {
		sc |= scKeySet
	}
	if broadcast {
		sc |= scBroadcast
	}
	return sc
}

func gloTagFor(regime KeyRegime, plain base.CosemTag) (base.CosemTag, bool) {
	var m map[base.CosemTag]base.CosemTag
	if regime == RegimeGlobal {
		m = gloTagMap
	} else {
		m = dedTagMap
	}
	t, ok := m[plain]
	return t, ok
}

func plainTagFor(regime KeyRegime, wrapped base.CosemTag) (base.CosemTag, bool) {
	var m map[base.CosemTag]base.CosemTag
	if regime == RegimeGlobal {
		m = gloTagMapInverse
	} else {
		m = dedTagMapInverse
	}
	t, ok := m[wrapped]
	return t, ok
}

var gloTagMap = map[base.CosemTag]base.CosemTag{
	base.TagGetRequest:    base.TagGloGetRequest,
	base.TagSetRequest:    base.TagGloSetRequest,
	base.TagActionRequest: base.TagGloActionRequest,
	base.TagGetResponse:   base.TagGloGetResponse,
	base.TagSetResponse:   base.TagGloSetResponse,
	base.TagActionResponse: base.TagGloActionResponse,
}

var dedTagMap = map[base.CosemTag]base.CosemTag{
	base.TagGetRequest:     base.TagDedGetRequest,
	base.TagSetRequest:     base.TagDedSetRequest,
	base.TagActionRequest:  base.TagDedActionRequest,
	base.TagGetResponse:    base.TagDedGetResponse,
	base.TagSetResponse:    base.TagDedSetResponse,
	base.TagActionResponse: base.TagDedActionResponse,
}

func invert(m map[base.CosemTag]base.CosemTag) map[base.CosemTag]base.CosemTag {
	out := make(map[base.CosemTag]base.CosemTag, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

var gloTagMapInverse = invert(gloTagMap)
var dedTagMapInverse = invert(dedTagMap)

// Encrypt wraps a plaintext APDU of tag plainTag (one of GetRequest,
// SetRequest, ActionRequest, GetResponse, SetResponse, ActionResponse) under
// this Context's security suite, returning the GLO/DED-tagged ciphered APDU
// ready for transmission. authenticate/encrypt select the security level
// per §4.3; the invocation counter is read, incremented, and stored back
// atomically with this call, before the caller has had a chance to transmit
// anything — the counter is never reused even if the subsequent send fails.
func (c *Context) Encrypt(plainTag base.CosemTag, plaintext []byte, authenticate, encrypt bool) ([]byte, error) {
	if !authenticate && !encrypt {
		return nil, fmt.Errorf("%w: neither authentication nor encryption requested", ErrSecurityLevelMismatch)
	}
	if c.invocationCounter == 0xFFFFFFFF {
		return nil, ErrCounterExhausted
	}
	gloTag, ok := gloTagFor(c.Regime, plainTag)
	if !ok {
		return nil, fmt.Errorf("cipher: tag %d has no ciphered variant", plainTag)
	}
	return c.EncryptRaw(byte(gloTag), plaintext, authenticate, encrypt)
}

// EncryptRaw seals plaintext under an arbitrary GLO/DED tag byte, for
// APDUs outside the GET/SET/ACTION family that are still ciphered per the
// Green Book's GeneralGloCiphering mechanism — namely the xDLMS
// InitiateRequest embedded in an AARQ's user-information field when the
// association uses AuthenticationHighGmac. GET/SET/ACTION ciphering should
// use Encrypt instead, which resolves the GLO/DED tag automatically.
func (c *Context) EncryptRaw(gloTag byte, plaintext []byte, authenticate, encrypt bool) ([]byte, error) {
	if !authenticate && !encrypt {
		return nil, fmt.Errorf("%w: neither authentication nor encryption requested", ErrSecurityLevelMismatch)
	}
	if c.invocationCounter == 0xFFFFFFFF {
		return nil, ErrCounterExhausted
	}

	c.invocationCounter++
	ic := c.invocationCounter

	sc := securityControlByte(c.SecuritySuite, authenticate, encrypt, c.Regime, false)
	iv := buildIV(c.SystemTitle, ic)
	payload := c.sealPayload(sc, iv, plaintext, authenticate, encrypt)

	var out []byte
	out = append(out, gloTag)
	out = appendLength(out, uint(len(payload)))
	out = append(out, payload...)
	return out, nil
}

func (c *Context) sealPayload(sc byte, iv, plaintext []byte, authenticate, encrypt bool) []byte {
	var aad []byte
	var plain, crypt []byte
	switch {
	case authenticate && !encrypt:
		aad = make([]byte, 1+len(c.authKey)+len(plaintext))
		aad[0] = sc
		copy(aad[1:], c.authKey)
		copy(aad[1+len(c.authKey):], plaintext)
	case encrypt && !authenticate:
		plain = plaintext
		crypt = make([]byte, len(plaintext))
	default: // authenticate && encrypt
		aad = make([]byte, 1+len(c.authKey))
		aad[0] = sc
		copy(aad[1:], c.authKey)
		plain = plaintext
		crypt = make([]byte, len(plaintext))
	}
	tag := c.encKey.seal(iv, aad, plain, crypt)

	out := make([]byte, 0, 5+len(crypt)+len(plaintext)+tagSize)
	out = append(out, sc)
	out = append(out, iv[8:12]...) // IC, big-endian
	if encrypt {
		out = append(out, crypt...)
	} else {
		out = append(out, plaintext...)
	}
	out = append(out, tag...)
	return out
}

// Decrypt unwraps a GLO/DED-tagged ciphered APDU, returning the plaintext
// APDU's original tag and body. The server's invocation counter must be
// strictly greater than the last one seen under this Context or the frame
// is rejected as a suspected replay without being decrypted further.
func (c *Context) Decrypt(wrapped []byte) (base.CosemTag, []byte, error) {
	if len(wrapped) < 2 {
		return 0, nil, ErrTruncatedFrame
	}
	wrappedTag := base.CosemTag(wrapped[0])
	plainTag, ok := plainTagFor(c.Regime, wrappedTag)
	if !ok {
		return 0, nil, fmt.Errorf("cipher: tag %#x is not a known ciphered APDU", wrapped[0])
	}
	n, consumed, err := decodeLengthBytes(wrapped[1:])
	if err != nil {
		return 0, nil, err
	}
	payload := wrapped[1+consumed:]
	if uint(len(payload)) < n {
		return 0, nil, ErrTruncatedFrame
	}
	payload = payload[:n]
	plaintext, err := c.DecryptPayload(payload)
	if err != nil {
		return 0, nil, err
	}
	return plainTag, plaintext, nil
}

// DecryptPayload authenticates and decrypts a bare security-control ∥
// invocation-counter ∥ ciphertext ∥ tag payload, without the outer GLO/DED
// tag+length envelope Decrypt expects. Used for the xDLMS InitiateResponse
// ciphered inside an AARE's user-information field, which carries only this
// inner payload (the outer GloInitiateResponse tag+length is stripped by
// the caller before this is reached).
func (c *Context) DecryptPayload(payload []byte) ([]byte, error) {
	if len(payload) < 5+tagSize {
		return nil, ErrTruncatedFrame
	}

	sc := payload[0]
	ic := binary.BigEndian.Uint32(payload[1:5])
	body := payload[5:]

	if c.peerCounterSeen && ic <= c.peerCounter {
		return nil, ErrReplaySuspected
	}

	authenticate := sc&scAuthenticate != 0
	encrypt := sc&scEncrypt != 0
	if !authenticate && !encrypt {
		return nil, fmt.Errorf("%w: security-control byte %#x requests neither", ErrSecurityLevelMismatch, sc)
	}

	iv := buildIV(c.PeerSystemTitle, ic)
	plaintext, err := c.openPayload(sc, iv, body, authenticate, encrypt)
	if err != nil {
		return nil, err
	}

	c.peerCounter = ic
	c.peerCounterSeen = true
	return plaintext, nil
}

func (c *Context) openPayload(sc byte, iv, body []byte, authenticate, encrypt bool) ([]byte, error) {
	if len(body) < tagSize {
		return nil, ErrTruncatedFrame
	}
	cipherPart := body[:len(body)-tagSize]
	tag := body[len(body)-tagSize:]

	var aad, plain, crypt []byte
	switch {
	case authenticate && !encrypt:
		aad = make([]byte, 1+len(c.authKey)+len(cipherPart))
		aad[0] = sc
		copy(aad[1:], c.authKey)
		copy(aad[1+len(c.authKey):], cipherPart)
	case encrypt && !authenticate:
		crypt = cipherPart
		plain = make([]byte, len(cipherPart))
	default:
		aad = make([]byte, 1+len(c.authKey))
		aad[0] = sc
		copy(aad[1:], c.authKey)
		crypt = cipherPart
		plain = make([]byte, len(cipherPart))
	}

	if !c.encKey.open(iv, aad, crypt, plain, tag) {
		return nil, ErrInvalidTag
	}
	if authenticate && !encrypt {
		return cipherPart, nil
	}
	return plain, nil
}

// HashChallenge produces a fresh GMAC authentication-only challenge: an
// invocation counter paired with a tag computed over the security-control
// byte and authentication key alone, with no other payload. This is the
// client-to-server hash of the post-AARE HLS confirmation round trip
// required by AuthenticationHighGmac (spec §4.4.1), sent as the argument to
// reply_to_HLS_authentication on the Current Association object.
func (c *Context) HashChallenge() ([]byte, error) {
	if c.invocationCounter == 0xFFFFFFFF {
		return nil, ErrCounterExhausted
	}
	c.invocationCounter++
	ic := c.invocationCounter

	sc := securityControlByte(c.SecuritySuite, true, false, c.Regime, false)
	iv := buildIV(c.SystemTitle, ic)
	return c.sealPayload(sc, iv, nil, true, false), nil
}

// VerifyChallenge checks a peer's GMAC hash — the same sc||counter||tag
// shape HashChallenge produces — against this Context's key material and
// peer counter. Unlike DecryptPayload, a tag mismatch here is reported as
// (false, nil): failing the HLS confirmation means the peer didn't prove
// itself, not that the wire is corrupt.
func (c *Context) VerifyChallenge(response []byte) (bool, error) {
	_, err := c.DecryptPayload(response)
	if errors.Is(err, ErrInvalidTag) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// appendLength and decodeLengthBytes duplicate axdr's A-XDR variable length
// codec at the byte-slice level (rather than io.Reader/bytes.Buffer) so this
// package has no import-cycle dependency on axdr for the one primitive it
// needs.
func appendLength(dst []byte, n uint) []byte {
	switch {
	case n < 128:
		return append(dst, byte(n))
	case n < 256:
		return append(dst, 0x81, byte(n))
	case n < 65536:
		return append(dst, 0x82, byte(n>>8), byte(n))
	case n < 16777216:
		return append(dst, 0x83, byte(n>>16), byte(n>>8), byte(n))
	default:
		return append(dst, 0x84, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	}
}

func decodeLengthBytes(src []byte) (uint, int, error) {
	if len(src) < 1 {
		return 0, 0, ErrTruncatedFrame
	}
	b := src[0]
	if b < 128 {
		return uint(b), 1, nil
	}
	if b == 128 {
		return 0, 0, fmt.Errorf("cipher: indefinite length (0x80) is reserved")
	}
	c := int(b & 0x7f)
	if c > 4 || len(src) < 1+c {
		return 0, 0, ErrTruncatedFrame
	}
	var n uint
	for i := 0; i < c; i++ {
		n = (n << 8) | uint(src[1+i])
	}
	return n, c + 1, nil
}
