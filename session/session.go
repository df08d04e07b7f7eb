package session

import (
	"errors"
	"fmt"
	"io"

	"github.com/metergrid/godlms/apdu"
	"github.com/metergrid/godlms/axdr"
	"github.com/metergrid/godlms/base"
	"go.uber.org/zap"
)

// Session drives one DLMS application association over a base.Stream
// transport: AARQ/AARE and RLRQ/RLRE, the GET/SET/ACTION request/response
// protocol with block reassembly and chunking, and transparent ciphering.
// It is not safe for concurrent use (spec §5); the caller must serialize
// calls to a single Session, typically one goroutine per association.
type Session struct {
	transport base.Stream
	logger    *zap.SugaredLogger
	clock     base.TimeSource
	settings  *Settings

	state base.AssociationState

	invokeId byte // 4-bit counter, 1..15, wrapping (spec §4.4.4)

	negotiatedPduSize uint16
	negotiatedConform uint32
	serverSystemTitle []byte
	vaAddress         int16
}

// New builds a Session over transport using settings. Connect must be
// called before any request.
func New(transport base.Stream, settings *Settings) *Session {
	return &Session{
		transport: transport,
		settings:  settings,
		state:     base.AssociationDisconnected,
	}
}

// SetLogger installs a logger propagated to the transport too, matching the
// donor's own SetLogger behavior.
func (s *Session) SetLogger(logger *zap.SugaredLogger) {
	s.logger = logger
	s.transport.SetLogger(logger)
}

// SetTimeSource installs the system-time collaborator used by SetClock's
// Now() convenience. Optional; SetClock requires one when called without an
// explicit timestamp.
func (s *Session) SetTimeSource(clock base.TimeSource) {
	s.clock = clock
}

// State reports the session's current association state (spec §3.8).
func (s *Session) State() base.AssociationState {
	return s.state
}

func (s *Session) logf(format string, v ...any) {
	if s.logger != nil {
		s.logger.Infof(format, v...)
	}
}

func (s *Session) dlogf(format string, v ...any) {
	if s.logger != nil {
		s.logger.Debugf(format, v...)
	}
}

// maxReadoutDuringAssociation bounds the AARE/RLRE readout buffer; these
// are small, fixed-shape APDUs, unlike GET/SET/ACTION responses.
const maxReadoutDuringAssociation = 8192

// readAll reads from the transport until EOF, per the Stream contract that
// each logical APDU ends when the transport signals EOF for that read
// (framing is the external transport's job; see base.Stream). Grounded on
// the donor's own dlmsal.smallreadout, generalized to grow past a small
// buffer for the larger GET/SET/ACTION bodies this layer also reads.
func (s *Session) readAll(maxBytes int) ([]byte, error) {
	buf := make([]byte, 256)
	total := 0
	for {
		if total == len(buf) {
			if total >= maxBytes {
				return nil, fmt.Errorf("session: response exceeds maximum buffer size (%d bytes)", maxBytes)
			}
			grown := make([]byte, min(len(buf)*2, maxBytes))
			copy(grown, buf)
			buf = grown
		}
		n, err := s.transport.Read(buf[total:])
		total += n
		if err != nil {
			if errors.Is(err, io.EOF) {
				return buf[:total], nil
			}
			return nil, err
		}
	}
}

// writeFrame transmits one APDU, marking the session Broken on transport
// failure (spec §7: a live-wire I/O fault desynchronizes the association).
func (s *Session) writeFrame(b []byte) error {
	if err := s.transport.Write(b); err != nil {
		s.state = base.AssociationBroken
		return err
	}
	return nil
}

// readResponseFrame reads one response APDU during a live association,
// marking the session Broken on transport failure.
func (s *Session) readResponseFrame() ([]byte, error) {
	maxBytes := int(s.responseBudget())
	frame, err := s.readAll(maxBytes)
	if err != nil {
		s.state = base.AssociationBroken
		return nil, err
	}
	return frame, nil
}

func (s *Session) responseBudget() int {
	size := int(s.negotiatedPduSize)
	if size == 0 {
		size = int(s.settings.maxPduSize())
	}
	// Leave generous headroom for ciphering overhead and a meter that
	// slightly overshoots the negotiated size; this is a sanity bound
	// against a runaway peer, not a strict protocol limit.
	return size*2 + 4096
}

// nextInvokeId advances the 4-bit invoke-id counter, wrapping 1..15 with 0
// reserved (spec §4.4.4; see DESIGN.md for why this widens the donor's
// 3-bit scheme).
func (s *Session) nextInvokeId() byte {
	s.invokeId = (s.invokeId % 15) + 1
	return s.invokeId | s.settings.invokeBits()
}

func (s *Session) currentInvokeId() byte {
	return s.invokeId
}

// checkInvokeId verifies a response's invoke-id-and-priority byte matches
// the outstanding request, per spec §4.4.4.
func (s *Session) checkInvokeId(got byte) error {
	if got&0x0F != s.invokeId {
		return ErrUnexpectedInvokeId
	}
	return nil
}

// unwrapIfCiphered strips a GLO/DED envelope when present, returning the
// plaintext APDU tag and body; otherwise it returns the frame unchanged.
// Any cipher failure breaks the session (spec §7: cipher errors on a live
// response desynchronize the wire). Deciphering itself always goes through
// Security.OpenStream's incremental GHASH/CTR reader rather than a one-shot
// byte-slice decrypt, so every ciphered response — not just the streaming
// ReadStream path — is authenticated by that reader; the plaintext is then
// read out in full with io.ReadAll.
func (s *Session) unwrapIfCiphered(frame []byte) (base.CosemTag, []byte, error) {
	if len(frame) == 0 {
		return 0, nil, fmt.Errorf("session: empty response frame")
	}
	tag := base.CosemTag(frame[0])
	switch tag {
	case base.TagGloGetResponse, base.TagGloSetResponse, base.TagGloActionResponse,
		base.TagDedGetResponse, base.TagDedSetResponse, base.TagDedActionResponse:
		if s.settings.Security == nil {
			s.state = base.AssociationBroken
			return 0, nil, fmt.Errorf("session: received ciphered response but no security context is configured")
		}
		plainTag, r, err := s.settings.Security.OpenStream(frame)
		if err != nil {
			s.state = base.AssociationBroken
			return 0, nil, wireError("deciphering response", err)
		}
		plaintext, err := io.ReadAll(r)
		if err != nil {
			s.state = base.AssociationBroken
			return 0, nil, wireError("deciphering response", err)
		}
		return plainTag, plaintext, nil
	default:
		// Unciphered response (including TagExceptionResponse, handled by
		// the caller): the plaintext tag and body are the frame itself.
		return tag, frame[1:], nil
	}
}

// cipherRequest wraps a plaintext request APDU (tag included) under the
// session's security context when one is configured, advancing the
// invocation counter atomically with this call (spec §4.3/§5: the counter
// is never reused even if the subsequent transmit fails).
func (s *Session) cipherRequest(plaintext []byte) ([]byte, error) {
	if s.settings.Security == nil {
		return plaintext, nil
	}
	plainTag := base.CosemTag(plaintext[0])
	// GLO/DED ciphering of GET/SET/ACTION always requests authenticated
	// encryption in this library, as does the association-time
	// InitiateRequest (see EncryptRaw's caller in Connect).
	wrapped, err := s.settings.Security.Encrypt(plainTag, plaintext, true, true)
	if err != nil {
		return nil, wireError("ciphering request", err)
	}
	return wrapped, nil
}

// exceptionResponseError decodes the 2-byte ExceptionResponse body (state
// error, service error) into a Go error, matching real meters that answer
// a malformed request this way instead of a tagged GET/SET/ACTION response.
func exceptionResponseError(body []byte) error {
	if len(body) < 2 {
		return fmt.Errorf("session: truncated exception-response")
	}
	return fmt.Errorf("session: meter returned exception-response (state-error=%#x service-error=%#x)", body[0], body[1])
}

// Connect builds and sends an AARQ, awaiting the AARE, per spec §4.4.1.
// Acceptance moves the session to Associated and records the negotiated
// PDU size and conformance. Rejection leaves the session Disconnected and
// returns a *RejectedError.
func (s *Session) Connect() error {
	if s.state == base.AssociationAssociated {
		return nil
	}
	if err := s.transport.Open(); err != nil {
		return err
	}

	params := &apdu.AssociationParams{
		ApplicationContext: s.settings.ApplicationContext,
		Authentication:     s.settings.Authentication,
		Password:           s.settings.Password,
		SystemTitle:        s.settings.ClientSystemTitle,
		DedicatedKey:       s.settings.DedicatedKey,
		UseDedicatedKey:    s.settings.UseDedicatedKey,
		ConformanceBlock:   s.settings.ConformanceBlock,
		MaxPduRecvSize:     s.settings.maxPduSize(),
	}
	if s.settings.Authentication == base.AuthenticationHighGmac {
		if s.settings.Security == nil {
			return fmt.Errorf("session: AuthenticationHighGmac requires a security context")
		}
		params.Cipher = func(tag byte, plaintext []byte) ([]byte, error) {
			return s.settings.Security.EncryptRaw(tag, plaintext, true, true)
		}
	}

	full, redacted, err := apdu.EncodeAARQ(params)
	if err != nil {
		return fmt.Errorf("session: building AARQ: %w", err)
	}
	s.dlogf("AARQ (redacted): % x", redacted)
	if err := s.transport.Write(full); err != nil {
		return err
	}

	frame, err := s.readAll(maxReadoutDuringAssociation)
	if err != nil {
		return fmt.Errorf("session: reading AARE: %w", err)
	}
	s.dlogf("AARE: % x", frame)

	tag, content, err := decodeOuterBER(frame)
	if err != nil {
		return fmt.Errorf("session: parsing AARE: %w", err)
	}
	if tag != byte(base.TagAARE) {
		return fmt.Errorf("session: expected AARE tag, got %#x", tag)
	}

	var decipher func([]byte) ([]byte, error)
	if s.settings.Security != nil {
		decipher = s.settings.Security.DecryptPayload
	}
	aare, err := apdu.DecodeAARE(content, decipher)
	if err != nil {
		return fmt.Errorf("session: decoding AARE: %w", err)
	}

	if aare.AssociationResult != base.AssociationResultAccepted {
		return &RejectedError{Result: aare.AssociationResult, Diagnostic: aare.SourceDiagnostic}
	}
	switch aare.SourceDiagnostic {
	case base.SourceDiagnosticNone, base.SourceDiagnosticAuthenticationRequired:
	default:
		return &RejectedError{Result: aare.AssociationResult, Diagnostic: aare.SourceDiagnostic}
	}
	if aare.ConfirmedServiceError != nil {
		return fmt.Errorf("session: confirmed service error: %#x", aare.ConfirmedServiceError.ConfirmedServiceError)
	}
	if aare.Initiate == nil {
		return fmt.Errorf("session: AARE carried no initiate-response")
	}

	s.negotiatedPduSize = aare.Initiate.ServerMaxReceivePduSize
	s.negotiatedConform = aare.Initiate.NegotiatedConformance & s.settings.ConformanceBlock
	s.vaAddress = aare.Initiate.VAAddress
	s.serverSystemTitle = aare.SystemTitle

	if s.settings.Security != nil && len(aare.SystemTitle) == 8 {
		var title [8]byte
		copy(title[:], aare.SystemTitle)
		s.settings.Security.SetPeerSystemTitle(title)
	}

	s.state = base.AssociationAssociated
	s.invokeId = 0

	if s.settings.Authentication == base.AuthenticationHighGmac && aare.SourceDiagnostic == base.SourceDiagnosticAuthenticationRequired {
		if err := s.confirmHighGmac(); err != nil {
			s.state = base.AssociationDisconnected
			return fmt.Errorf("session: HLS confirmation failed: %w", err)
		}
	}

	s.logf("associated: max-pdu=%d conformance=%#06x va-address=%#04x", s.negotiatedPduSize, s.negotiatedConform, s.vaAddress)
	return nil
}

// currentAssociationObis addresses the "Current Association" instance of
// the Association LN class (class 15, spec §4.4.1), the object every
// meter exposes its reply_to_HLS_authentication method on.
var currentAssociationObis = axdr.Obis{A: 0, B: 0, C: 40, D: 0, E: 0, F: 255}

// confirmHighGmac performs the post-AARE GMAC challenge-response round trip
// AuthenticationHighGmac requires once the AARE's source diagnostic signals
// authentication-required: an ACTION invoking reply_to_HLS_authentication
// (method 1) on the Current Association object, carrying a fresh
// client-to-server hash, whose reply carries the server's own
// server-to-client hash for the client to verify in turn. Grounded on the
// donor's dlmsal.LNAuthentication.
func (s *Session) confirmHighGmac() error {
	if s.settings.Security == nil {
		return fmt.Errorf("session: AuthenticationHighGmac requires a security context")
	}

	challenge, err := s.settings.Security.HashChallenge()
	if err != nil {
		return fmt.Errorf("session: building gmac challenge: %w", err)
	}
	arg := &axdr.Data{Tag: axdr.TagOctetString, Value: challenge}

	resp, err := s.Method(15, currentAssociationObis, 1, arg)
	if err != nil {
		return fmt.Errorf("session: gmac confirmation action: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("session: gmac confirmation returned no data")
	}
	response, ok := resp.Value.([]byte)
	if !ok {
		return fmt.Errorf("session: gmac confirmation response is not an octet-string")
	}

	verified, err := s.settings.Security.VerifyChallenge(response)
	if err != nil {
		return fmt.Errorf("session: verifying gmac confirmation: %w", err)
	}
	if !verified {
		return fmt.Errorf("session: gmac confirmation hash mismatch")
	}
	return nil
}

// Disconnect emits an RLRQ and awaits the RLRE, per spec §4.4.1. Transport
// errors during release are logged, not raised — the association is
// considered gone either way once this returns.
func (s *Session) Disconnect() error {
	if s.state != base.AssociationAssociated {
		s.state = base.AssociationDisconnected
		return s.transport.Close()
	}
	rl := apdu.EncodeRLRQ(s.settings.EmptyRLRQ)
	if err := s.transport.Write(rl); err != nil {
		s.logf("RLRQ transmit failed during disconnect: %v", err)
		s.state = base.AssociationDisconnected
		return s.transport.Close()
	}
	if _, err := s.readAll(maxReadoutDuringAssociation); err != nil {
		s.logf("RLRE readout failed during disconnect: %v", err)
	}
	s.state = base.AssociationDisconnected
	return s.transport.Close()
}

// decodeOuterBER splits an APDU's leading BER tag+length from its content
// octets, used for the AARE/RLRE top-level envelope.
func decodeOuterBER(frame []byte) (tag byte, content []byte, err error) {
	if len(frame) < 2 {
		return 0, nil, fmt.Errorf("truncated frame")
	}
	tag = frame[0]
	n, c, err := apduDecodeLength(frame[1:])
	if err != nil {
		return 0, nil, err
	}
	if len(frame) < 1+c+int(n) {
		return 0, nil, fmt.Errorf("declared length exceeds remaining input")
	}
	return tag, frame[1+c : 1+c+int(n)], nil
}

// apduDecodeLength duplicates axdr's A-XDR length codec at the byte-slice
// level, avoiding a bytes.Reader allocation for this one top-level field.
func apduDecodeLength(src []byte) (uint, int, error) {
	if len(src) < 1 {
		return 0, 0, fmt.Errorf("truncated length")
	}
	b := src[0]
	if b < 128 {
		return uint(b), 1, nil
	}
	if b == 128 {
		return 0, 0, fmt.Errorf("indefinite length (0x80) is reserved")
	}
	c := int(b & 0x7f)
	if c > 4 || len(src) < 1+c {
		return 0, 0, fmt.Errorf("truncated length")
	}
	var n uint
	for i := 0; i < c; i++ {
		n = (n << 8) | uint(src[1+i])
	}
	return n, c + 1, nil
}
