package session

import (
	"bytes"
	"fmt"

	"github.com/metergrid/godlms/apdu"
	"github.com/metergrid/godlms/axdr"
	"github.com/metergrid/godlms/base"
)

// Write implements the SET request/response driver (spec §4.4.2): encode
// value, and either send it as a single SET-Request-Normal or, when it
// would not fit in one PDU, chunk it across SET-Request-WithFirstDataBlock/
// WithDataBlock continuations (spec §4.4.2 invariant 7, mirroring the
// donor's own dlmslnset overhead accounting).
func (s *Session) Write(classId uint16, obis axdr.Obis, attribute int8, access *Access, value axdr.Data) error {
	if s.state != base.AssociationAssociated {
		return ErrNotAssociated
	}

	item := &apdu.LNItem{ClassId: classId, Obis: obis, Attribute: attribute, SetData: &value}
	access.apply(item)

	encoded, err := axdr.Encode(value)
	if err != nil {
		return fmt.Errorf("session: encoding set value: %w", err)
	}

	budget := int(s.settings.maxPduSize()) - pduOverhead
	if budget < 1 {
		budget = 1
	}
	if len(encoded) <= budget {
		return s.writeSingle(item)
	}
	return s.writeBlocked(item, encoded)
}

func (s *Session) writeSingle(item *apdu.LNItem) error {
	invokeId := s.nextInvokeId()
	plaintext, err := apdu.EncodeSetRequestNormal(invokeId, item)
	if err != nil {
		return fmt.Errorf("session: building set-request: %w", err)
	}
	wire, err := s.cipherRequest(plaintext)
	if err != nil {
		return err
	}
	if err := s.writeFrame(wire); err != nil {
		return err
	}

	variant, invoke, body, err := s.readSetResponse()
	if err != nil {
		return err
	}
	if err := s.checkInvokeId(invoke); err != nil {
		s.state = base.AssociationBroken
		return err
	}
	if variant != apdu.SetResponseNormal {
		s.state = base.AssociationBroken
		return fmt.Errorf("session: expected set-response-normal, got variant %#x", variant)
	}
	r, err := apdu.DecodeSetResponseNormal(bytes.NewReader(body))
	if err != nil {
		s.state = base.AssociationBroken
		return wireError("decoding set-response-normal", err)
	}
	if r.Result != base.TagResultSuccess {
		return dataAccessError(r.Result)
	}
	return nil
}

// writeBlocked chunks encoded across SET-Request-WithFirstDataBlock/
// WithDataBlock continuations, each sized to leave blockOverhead room for
// framing and ciphering.
func (s *Session) writeBlocked(item *apdu.LNItem, encoded []byte) error {
	chunkSize := int(s.settings.maxPduSize()) - blockOverhead
	if chunkSize < 1 {
		chunkSize = 1
	}

	blockNum := uint32(1)
	first := encoded[:min(chunkSize, len(encoded))]
	rest := encoded[len(first):]
	last := len(rest) == 0

	invokeId := s.nextInvokeId()
	plaintext, err := apdu.EncodeSetRequestFirstDataBlock(invokeId, item, first, last, blockNum)
	if err != nil {
		return fmt.Errorf("session: building set-request-with-first-data-block: %w", err)
	}
	wire, err := s.cipherRequest(plaintext)
	if err != nil {
		return err
	}
	if err := s.writeFrame(wire); err != nil {
		return err
	}

	for {
		variant, invoke, body, err := s.readSetResponse()
		if err != nil {
			return err
		}
		if err := s.checkInvokeId(invoke); err != nil {
			s.state = base.AssociationBroken
			return err
		}

		if last {
			if variant != apdu.SetResponseLastDataBlock {
				s.state = base.AssociationBroken
				return fmt.Errorf("session: expected set-response-last-data-block, got variant %#x", variant)
			}
			r, err := apdu.DecodeSetResponseLastDataBlock(bytes.NewReader(body))
			if err != nil {
				s.state = base.AssociationBroken
				return wireError("decoding set-response-last-data-block", err)
			}
			if r.BlockNum != blockNum {
				s.state = base.AssociationBroken
				return ErrBlockSequenceError
			}
			if r.Result != base.TagResultSuccess {
				return dataAccessError(r.Result)
			}
			return nil
		}

		if variant != apdu.SetResponseDataBlock {
			s.state = base.AssociationBroken
			return fmt.Errorf("session: expected set-response-data-block, got variant %#x", variant)
		}
		r, err := apdu.DecodeSetResponseDataBlock(bytes.NewReader(body))
		if err != nil {
			s.state = base.AssociationBroken
			return wireError("decoding set-response-data-block", err)
		}
		if r.BlockNum != blockNum {
			s.state = base.AssociationBroken
			return ErrBlockSequenceError
		}

		blockNum++
		chunk := rest[:min(chunkSize, len(rest))]
		rest = rest[len(chunk):]
		last = len(rest) == 0

		invokeId = s.nextInvokeId()
		req := apdu.EncodeSetRequestDataBlock(invokeId, chunk, last, blockNum)
		wire, err := s.cipherRequest(req)
		if err != nil {
			return err
		}
		if err := s.writeFrame(wire); err != nil {
			return err
		}
	}
}

// readSetResponse reads one SET-Response frame and splits its variant
// discriminator and invoke-id, encoded variant-then-invoke-id, the same
// order as GET and ACTION responses (only the SET *request* is encoded
// invoke-id-then-variant, a genuine donor quirk mirrored in apdu/set.go).
func (s *Session) readSetResponse() (apdu.SetResponseTag, byte, []byte, error) {
	frame, err := s.readResponseFrame()
	if err != nil {
		return 0, 0, nil, err
	}
	plainTag, body, err := s.unwrapIfCiphered(frame)
	if err != nil {
		return 0, 0, nil, err
	}
	if plainTag == base.TagExceptionResponse {
		return 0, 0, nil, exceptionResponseError(body)
	}
	if plainTag != base.TagSetResponse {
		s.state = base.AssociationBroken
		return 0, 0, nil, fmt.Errorf("session: expected set-response, got tag %#x", plainTag)
	}
	if len(body) < 2 {
		s.state = base.AssociationBroken
		return 0, 0, nil, fmt.Errorf("session: truncated set-response")
	}
	return apdu.SetResponseTag(body[0]), body[1], body[2:], nil
}
