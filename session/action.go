package session

import (
	"bytes"
	"fmt"
	"io"

	"github.com/metergrid/godlms/apdu"
	"github.com/metergrid/godlms/axdr"
	"github.com/metergrid/godlms/base"
)

// Method implements the ACTION request/response driver (spec §4.4.2): a
// single-method ACTION-Request-Normal, with block-transfer chunking of the
// argument when it does not fit a single PDU and block reassembly of the
// response when the meter answers with ACTION-Response-WithPBlock.
func (s *Session) Method(classId uint16, obis axdr.Obis, method int8, arg *axdr.Data) (*axdr.Data, error) {
	if s.state != base.AssociationAssociated {
		return nil, ErrNotAssociated
	}

	item := &apdu.LNItem{ClassId: classId, Obis: obis, Attribute: method, SetData: arg}

	var encoded []byte
	if arg != nil {
		enc, err := axdr.Encode(*arg)
		if err != nil {
			return nil, fmt.Errorf("session: encoding method argument: %w", err)
		}
		encoded = enc
	}

	budget := int(s.settings.maxPduSize()) - pduOverhead
	if budget < 1 {
		budget = 1
	}
	if arg == nil || len(encoded) <= budget {
		return s.methodSingle(item)
	}
	return s.methodBlocked(item, encoded)
}

func (s *Session) methodSingle(item *apdu.LNItem) (*axdr.Data, error) {
	invokeId := s.nextInvokeId()
	plaintext, err := apdu.EncodeActionRequestNormal(invokeId, item)
	if err != nil {
		return nil, fmt.Errorf("session: building action-request: %w", err)
	}
	wire, err := s.cipherRequest(plaintext)
	if err != nil {
		return nil, err
	}
	if err := s.writeFrame(wire); err != nil {
		return nil, err
	}
	return s.readActionResponse()
}

// methodBlocked chunks encoded across ACTION-Request-WithFirstPBlock/
// WithPBlock continuations, mirroring SET's chunking since the donor's own
// ACTION driver never sends a blocked method argument (see DESIGN.md).
func (s *Session) methodBlocked(item *apdu.LNItem, encoded []byte) (*axdr.Data, error) {
	chunkSize := int(s.settings.maxPduSize()) - blockOverhead
	if chunkSize < 1 {
		chunkSize = 1
	}

	blockNum := uint32(1)
	first := encoded[:min(chunkSize, len(encoded))]
	rest := encoded[len(first):]
	last := len(rest) == 0

	invokeId := s.nextInvokeId()
	plaintext, err := apdu.EncodeActionRequestWithFirstPBlock(invokeId, item, first, last, blockNum)
	if err != nil {
		return nil, fmt.Errorf("session: building action-request-with-first-pblock: %w", err)
	}
	wire, err := s.cipherRequest(plaintext)
	if err != nil {
		return nil, err
	}
	if err := s.writeFrame(wire); err != nil {
		return nil, err
	}

	for !last {
		frame, err := s.readResponseFrame()
		if err != nil {
			return nil, err
		}
		plainTag, body, err := s.unwrapIfCiphered(frame)
		if err != nil {
			return nil, err
		}
		if plainTag == base.TagExceptionResponse {
			return nil, exceptionResponseError(body)
		}
		if plainTag != base.TagActionResponse || len(body) < 2 || apdu.ActionResponseTag(body[0]) != apdu.ActionResponseNextPBlock {
			s.state = base.AssociationBroken
			return nil, fmt.Errorf("session: expected action-response-next-pblock while sending blocked method argument")
		}
		if err := s.checkInvokeId(body[1]); err != nil {
			s.state = base.AssociationBroken
			return nil, err
		}
		next, err := apdu.DecodeActionResponseNextPBlock(bytes.NewReader(body[2:]))
		if err != nil {
			s.state = base.AssociationBroken
			return nil, wireError("decoding action-response-next-pblock", err)
		}
		if next.BlockNum != blockNum {
			s.state = base.AssociationBroken
			return nil, ErrBlockSequenceError
		}

		blockNum++
		chunk := rest[:min(chunkSize, len(rest))]
		rest = rest[len(chunk):]
		last = len(rest) == 0

		invokeId = s.nextInvokeId()
		req := apdu.EncodeActionRequestWithPBlock(invokeId, chunk, last, blockNum)
		wire, err := s.cipherRequest(req)
		if err != nil {
			return nil, err
		}
		if err := s.writeFrame(wire); err != nil {
			return nil, err
		}
	}

	return s.readActionResponse()
}

// readActionResponse reads one ACTION-Response, following
// ACTION-Response-WithPBlock continuations to completion when the method's
// return value itself is blocked.
func (s *Session) readActionResponse() (*axdr.Data, error) {
	frame, err := s.readResponseFrame()
	if err != nil {
		return nil, err
	}
	plainTag, body, err := s.unwrapIfCiphered(frame)
	if err != nil {
		return nil, err
	}
	if plainTag == base.TagExceptionResponse {
		return nil, exceptionResponseError(body)
	}
	if plainTag != base.TagActionResponse || len(body) < 2 {
		s.state = base.AssociationBroken
		return nil, fmt.Errorf("session: expected action-response, got tag %#x", plainTag)
	}
	variant := apdu.ActionResponseTag(body[0])
	if err := s.checkInvokeId(body[1]); err != nil {
		s.state = base.AssociationBroken
		return nil, err
	}
	rest := bytes.NewReader(body[2:])

	switch variant {
	case apdu.ActionResponseNormal:
		r, err := apdu.DecodeActionResponseNormal(rest)
		if err != nil {
			s.state = base.AssociationBroken
			return nil, wireError("decoding action-response-normal", err)
		}
		if r.Result != base.ActionResultSuccess {
			return nil, actionResultError(r.Result)
		}
		return r.Value, nil

	case apdu.ActionResponseWithPBlock:
		return s.reassembleActionBlocks(rest)

	default:
		s.state = base.AssociationBroken
		return nil, fmt.Errorf("session: unexpected action-response variant %#x", variant)
	}
}

// reassembleActionBlocks drives ACTION-Request-NextPBlock continuations
// until the meter signals last_block, then parses the reassembled buffer
// as the method's return value.
func (s *Session) reassembleActionBlocks(first *bytes.Reader) (*axdr.Data, error) {
	header, n, err := apdu.DecodeActionResponseWithPBlock(first)
	if err != nil {
		s.state = base.AssociationBroken
		return nil, wireError("decoding action-response-with-pblock", err)
	}
	chunk := make([]byte, n)
	if _, err := io.ReadFull(first, chunk); err != nil {
		s.state = base.AssociationBroken
		return nil, wireError("reading action block chunk", err)
	}
	if header.BlockNum != 1 {
		s.state = base.AssociationBroken
		return nil, ErrBlockSequenceError
	}

	var buf bytes.Buffer
	buf.Write(chunk)
	expected := header.BlockNum
	for !header.LastBlock {
		invokeId := s.nextInvokeId()
		req := apdu.EncodeActionRequestNextPBlock(invokeId, expected)
		wire, err := s.cipherRequest(req)
		if err != nil {
			return nil, err
		}
		if err := s.writeFrame(wire); err != nil {
			return nil, err
		}

		frame, err := s.readResponseFrame()
		if err != nil {
			return nil, err
		}
		plainTag, body, err := s.unwrapIfCiphered(frame)
		if err != nil {
			return nil, err
		}
		if plainTag == base.TagExceptionResponse {
			return nil, exceptionResponseError(body)
		}
		if plainTag != base.TagActionResponse || len(body) < 2 || apdu.ActionResponseTag(body[0]) != apdu.ActionResponseWithPBlock {
			s.state = base.AssociationBroken
			return nil, fmt.Errorf("session: expected action-response-with-pblock continuation")
		}
		if err := s.checkInvokeId(body[1]); err != nil {
			s.state = base.AssociationBroken
			return nil, err
		}
		rest := bytes.NewReader(body[2:])
		header, n, err = apdu.DecodeActionResponseWithPBlock(rest)
		if err != nil {
			s.state = base.AssociationBroken
			return nil, wireError("decoding action block continuation", err)
		}
		chunk = make([]byte, n)
		if _, err := io.ReadFull(rest, chunk); err != nil {
			s.state = base.AssociationBroken
			return nil, wireError("reading action block chunk", err)
		}
		if header.BlockNum != expected+1 {
			s.state = base.AssociationBroken
			return nil, ErrBlockSequenceError
		}
		expected = header.BlockNum
		buf.Write(chunk)
	}

	val, _, err := axdr.DecodeDataTag(&buf)
	if err != nil {
		s.state = base.AssociationBroken
		return nil, wireError("parsing reassembled action block buffer", err)
	}
	return &val, nil
}
