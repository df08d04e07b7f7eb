package session

import (
	"bytes"
	"fmt"

	"github.com/metergrid/godlms/apdu"
	"github.com/metergrid/godlms/axdr"
	"github.com/metergrid/godlms/base"
)

// Read implements the GET request/response driver (spec §4.4.2): build a
// GET-Request-Normal, transmit, and — if the response is a single block —
// return the decoded value immediately, or — if it is blocked — reassemble
// every continuation before parsing. A DataAccessResult response is
// returned as a *ResultError, not a protocol-level error.
func (s *Session) Read(classId uint16, obis axdr.Obis, attribute int8, access *Access) (axdr.Data, error) {
	if s.state != base.AssociationAssociated {
		return axdr.Data{}, ErrNotAssociated
	}

	item := &apdu.LNItem{ClassId: classId, Obis: obis, Attribute: attribute}
	access.apply(item)

	invokeId := s.nextInvokeId()
	plaintext, err := apdu.EncodeGetRequestNormal(invokeId, item)
	if err != nil {
		return axdr.Data{}, fmt.Errorf("session: building get-request: %w", err)
	}
	wire, err := s.cipherRequest(plaintext)
	if err != nil {
		return axdr.Data{}, err
	}
	if err := s.writeFrame(wire); err != nil {
		return axdr.Data{}, err
	}

	return s.readGetResponse()
}

// ReadStream behaves like Read but hands back a DataStream instead of a
// fully decoded axdr.Data: the reassembled response is accumulated in a
// ChunkedStream and walked element by element, so a large Array or
// Structure value (a ProfileGeneric buffer split across many GET blocks)
// never needs its whole decoded tree held in memory at once.
func (s *Session) ReadStream(classId uint16, obis axdr.Obis, attribute int8, access *Access) (DataStream, error) {
	if s.state != base.AssociationAssociated {
		return nil, ErrNotAssociated
	}

	item := &apdu.LNItem{ClassId: classId, Obis: obis, Attribute: attribute}
	access.apply(item)

	invokeId := s.nextInvokeId()
	plaintext, err := apdu.EncodeGetRequestNormal(invokeId, item)
	if err != nil {
		return nil, fmt.Errorf("session: building get-request: %w", err)
	}
	wire, err := s.cipherRequest(plaintext)
	if err != nil {
		return nil, err
	}
	if err := s.writeFrame(wire); err != nil {
		return nil, err
	}

	raw, err := s.readGetResponseRaw()
	if err != nil {
		return nil, err
	}
	return newDataStream(raw), nil
}

// readGetResponseRaw is readGetResponse's counterpart for ReadStream: same
// dispatch and block reassembly, but it returns the reassembled value
// undecoded in a ChunkedStream instead of parsing it into one axdr.Data.
func (s *Session) readGetResponseRaw() (ChunkedStream, error) {
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
	if plainTag != base.TagGetResponse {
		s.state = base.AssociationBroken
		return nil, fmt.Errorf("session: expected get-response, got tag %#x", plainTag)
	}
	if len(body) < 2 {
		s.state = base.AssociationBroken
		return nil, fmt.Errorf("session: truncated get-response")
	}
	variant := apdu.GetResponseTag(body[0])
	if err := s.checkInvokeId(body[1]); err != nil {
		s.state = base.AssociationBroken
		return nil, err
	}
	rest := bytes.NewReader(body[2:])

	switch variant {
	case apdu.GetResponseNormal:
		r, err := apdu.DecodeGetResponseNormal(rest)
		if err != nil {
			s.state = base.AssociationBroken
			return nil, wireError("decoding get-response-normal", err)
		}
		if r.Result != base.TagResultSuccess {
			return nil, dataAccessError(r.Result)
		}
		raw, err := axdr.Encode(r.Value)
		if err != nil {
			return nil, fmt.Errorf("session: re-encoding get-response-normal value for streaming: %w", err)
		}
		cs := NewChunkedStream()
		cs.Write(raw)
		return cs, nil

	case apdu.GetResponseWithDataBlock:
		return s.reassembleGetBlocksRaw(rest)

	default:
		s.state = base.AssociationBroken
		return nil, fmt.Errorf("session: unexpected get-response variant %#x", variant)
	}
}

// reassembleGetBlocksRaw is reassembleGetBlocks's counterpart for
// ReadStream: identical block continuation loop, writing into a
// ChunkedStream instead of a bytes.Buffer and skipping the final parse.
func (s *Session) reassembleGetBlocksRaw(first *bytes.Reader) (ChunkedStream, error) {
	block, err := apdu.DecodeGetResponseWithDataBlock(first)
	if err != nil {
		s.state = base.AssociationBroken
		return nil, wireError("decoding get-response-with-data-block", err)
	}
	if block.Header.BlockNum != 1 {
		s.state = base.AssociationBroken
		return nil, ErrBlockSequenceError
	}

	cs := NewChunkedStream()
	cs.Write(block.Data)
	expected := block.Header.BlockNum
	for !block.Header.LastBlock {
		invokeId := s.nextInvokeId()
		req := apdu.EncodeGetRequestNext(invokeId, expected)
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
		if plainTag != base.TagGetResponse || len(body) < 2 || apdu.GetResponseTag(body[0]) != apdu.GetResponseWithDataBlock {
			s.state = base.AssociationBroken
			return nil, fmt.Errorf("session: expected get-response-with-data-block continuation")
		}
		if err := s.checkInvokeId(body[1]); err != nil {
			s.state = base.AssociationBroken
			return nil, err
		}
		block, err = apdu.DecodeGetResponseWithDataBlock(bytes.NewReader(body[2:]))
		if err != nil {
			s.state = base.AssociationBroken
			return nil, wireError("decoding get block continuation", err)
		}
		if block.Header.BlockNum != expected+1 {
			s.state = base.AssociationBroken
			return nil, ErrBlockSequenceError
		}
		expected = block.Header.BlockNum
		cs.Write(block.Data)
	}

	return cs, nil
}

// Access carries an optional selective-access descriptor for a GET (or, for
// SET/ACTION, for an access-qualified item), per spec §3.7.
type Access struct {
	Selector byte // axdr.SelectorRange or axdr.SelectorEntry
	Data     axdr.Data
}

func (a *Access) apply(item *apdu.LNItem) {
	if a == nil {
		return
	}
	item.HasAccess = true
	item.AccessDescriptor = a.Selector
	item.AccessData = &a.Data
}

// RangeAccess builds an Access wrapping a RangeDescriptor (selector 1).
func RangeAccess(r axdr.RangeDescriptor) *Access {
	return &Access{Selector: axdr.SelectorRange, Data: r.AsData()}
}

// EntryAccess builds an Access wrapping an EntryDescriptor (selector 2).
func EntryAccess(e axdr.EntryDescriptor) *Access {
	return &Access{Selector: axdr.SelectorEntry, Data: e.AsData()}
}

// readGetResponse reads and dispatches one GET-Response, following
// GET-Response-WithDataBlock continuations to completion.
func (s *Session) readGetResponse() (axdr.Data, error) {
	frame, err := s.readResponseFrame()
	if err != nil {
		return axdr.Data{}, err
	}
	plainTag, body, err := s.unwrapIfCiphered(frame)
	if err != nil {
		return axdr.Data{}, err
	}
	if plainTag == base.TagExceptionResponse {
		return axdr.Data{}, exceptionResponseError(body)
	}
	if plainTag != base.TagGetResponse {
		s.state = base.AssociationBroken
		return axdr.Data{}, fmt.Errorf("session: expected get-response, got tag %#x", plainTag)
	}
	if len(body) < 2 {
		s.state = base.AssociationBroken
		return axdr.Data{}, fmt.Errorf("session: truncated get-response")
	}
	variant := apdu.GetResponseTag(body[0])
	if err := s.checkInvokeId(body[1]); err != nil {
		s.state = base.AssociationBroken
		return axdr.Data{}, err
	}
	rest := bytes.NewReader(body[2:])

	switch variant {
	case apdu.GetResponseNormal:
		r, err := apdu.DecodeGetResponseNormal(rest)
		if err != nil {
			s.state = base.AssociationBroken
			return axdr.Data{}, wireError("decoding get-response-normal", err)
		}
		if r.Result != base.TagResultSuccess {
			return axdr.Data{}, dataAccessError(r.Result)
		}
		return r.Value, nil

	case apdu.GetResponseWithDataBlock:
		return s.reassembleGetBlocks(rest)

	default:
		s.state = base.AssociationBroken
		return axdr.Data{}, fmt.Errorf("session: unexpected get-response variant %#x", variant)
	}
}

// reassembleGetBlocks drives GET-Request-Next continuations until the
// meter signals last_block, concatenating raw_data in ascending
// block_number order, then parses the reassembled buffer as one Data
// (spec §4.4.2 invariant 6, testable property 6).
func (s *Session) reassembleGetBlocks(first *bytes.Reader) (axdr.Data, error) {
	block, err := apdu.DecodeGetResponseWithDataBlock(first)
	if err != nil {
		s.state = base.AssociationBroken
		return axdr.Data{}, wireError("decoding get-response-with-data-block", err)
	}
	if block.Header.BlockNum != 1 {
		s.state = base.AssociationBroken
		return axdr.Data{}, ErrBlockSequenceError
	}

	var buf bytes.Buffer
	buf.Write(block.Data)
	expected := block.Header.BlockNum
	for !block.Header.LastBlock {
		invokeId := s.nextInvokeId()
		req := apdu.EncodeGetRequestNext(invokeId, expected)
		wire, err := s.cipherRequest(req)
		if err != nil {
			return axdr.Data{}, err
		}
		if err := s.writeFrame(wire); err != nil {
			return axdr.Data{}, err
		}

		frame, err := s.readResponseFrame()
		if err != nil {
			return axdr.Data{}, err
		}
		plainTag, body, err := s.unwrapIfCiphered(frame)
		if err != nil {
			return axdr.Data{}, err
		}
		if plainTag == base.TagExceptionResponse {
			return axdr.Data{}, exceptionResponseError(body)
		}
		if plainTag != base.TagGetResponse || len(body) < 2 || apdu.GetResponseTag(body[0]) != apdu.GetResponseWithDataBlock {
			s.state = base.AssociationBroken
			return axdr.Data{}, fmt.Errorf("session: expected get-response-with-data-block continuation")
		}
		if err := s.checkInvokeId(body[1]); err != nil {
			s.state = base.AssociationBroken
			return axdr.Data{}, err
		}
		block, err = apdu.DecodeGetResponseWithDataBlock(bytes.NewReader(body[2:]))
		if err != nil {
			s.state = base.AssociationBroken
			return axdr.Data{}, wireError("decoding get block continuation", err)
		}
		if block.Header.BlockNum != expected+1 {
			s.state = base.AssociationBroken
			return axdr.Data{}, ErrBlockSequenceError
		}
		expected = block.Header.BlockNum
		buf.Write(block.Data)
	}

	val, _, err := axdr.DecodeDataTag(&buf)
	if err != nil {
		s.state = base.AssociationBroken
		return axdr.Data{}, wireError("parsing reassembled get block buffer", err)
	}
	return val, nil
}
