package session

import (
	"bytes"
	"fmt"

	"github.com/metergrid/godlms/apdu"
	"github.com/metergrid/godlms/axdr"
	"github.com/metergrid/godlms/base"
)

// ReadItem addresses one attribute for ReadMultiple/ReadMultipleChunked.
type ReadItem struct {
	ClassId   uint16
	Obis      axdr.Obis
	Attribute int8
	Access    *Access
}

// ReadResult is one entry of a ReadMultiple/ReadMultipleChunked response: a
// decoded value, or — when the meter rejected that one attribute — a
// *ResultError in Err, in one-to-one order-preserving correspondence with
// the request (spec §4.4.3/§8 testable property 7).
type ReadResult struct {
	Value axdr.Data
	Err   error
}

// WriteItem addresses one attribute and its new value for WriteMultiple/
// WriteMultipleChunked.
type WriteItem struct {
	ClassId   uint16
	Obis      axdr.Obis
	Attribute int8
	Access    *Access
	Value     axdr.Data
}

// ReadMultiple issues a single GET-Request-WithList when len(items) fits
// the session's configured chunk size, per spec §4.4.3.
func (s *Session) ReadMultiple(items []ReadItem) ([]ReadResult, error) {
	return s.ReadMultipleChunked(items, s.settings.chunkSize())
}

// ReadMultipleChunked splits items into consecutive GET-Request-WithList
// requests of at most chunkSize entries, preserving request order in the
// assembled result (spec §4.4.3, testable property 7).
func (s *Session) ReadMultipleChunked(items []ReadItem, chunkSize int) ([]ReadResult, error) {
	if s.state != base.AssociationAssociated {
		return nil, ErrNotAssociated
	}
	if chunkSize < 1 {
		chunkSize = 1
	}

	results := make([]ReadResult, 0, len(items))
	for start := 0; start < len(items); start += chunkSize {
		end := min(start+chunkSize, len(items))
		batch, err := s.readListBatch(items[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, batch...)
	}
	return results, nil
}

func (s *Session) readListBatch(batch []ReadItem) ([]ReadResult, error) {
	lnItems := make([]*apdu.LNItem, len(batch))
	for i, it := range batch {
		item := &apdu.LNItem{ClassId: it.ClassId, Obis: it.Obis, Attribute: it.Attribute}
		it.Access.apply(item)
		lnItems[i] = item
	}

	invokeId := s.nextInvokeId()
	plaintext, err := apdu.EncodeGetRequestWithList(invokeId, lnItems)
	if err != nil {
		return nil, fmt.Errorf("session: building get-request-with-list: %w", err)
	}
	wire, err := s.cipherRequest(plaintext)
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
	if plainTag != base.TagGetResponse || len(body) < 2 {
		s.state = base.AssociationBroken
		return nil, fmt.Errorf("session: expected get-response-with-list, got tag %#x", plainTag)
	}
	if apdu.GetResponseTag(body[0]) != apdu.GetResponseWithList {
		s.state = base.AssociationBroken
		return nil, fmt.Errorf("session: expected get-response-with-list variant, got %#x", body[0])
	}
	if err := s.checkInvokeId(body[1]); err != nil {
		s.state = base.AssociationBroken
		return nil, err
	}

	withList, err := apdu.DecodeGetResponseWithList(bytes.NewReader(body[2:]))
	if err != nil {
		s.state = base.AssociationBroken
		return nil, wireError("decoding get-response-with-list", err)
	}
	if len(withList.Items) != len(batch) {
		s.state = base.AssociationBroken
		return nil, fmt.Errorf("session: get-response-with-list returned %d items for %d requested", len(withList.Items), len(batch))
	}

	results := make([]ReadResult, len(batch))
	for i, r := range withList.Items {
		if r.Result != base.TagResultSuccess {
			results[i] = ReadResult{Err: dataAccessError(r.Result)}
			continue
		}
		results[i] = ReadResult{Value: r.Value}
	}
	return results, nil
}

// WriteMultiple issues a single SET-Request-WithList when len(items) fits
// the session's configured chunk size, per spec §4.4.3.
func (s *Session) WriteMultiple(items []WriteItem) ([]error, error) {
	return s.WriteMultipleChunked(items, s.settings.chunkSize())
}

// WriteMultipleChunked splits items into consecutive SET-Request-WithList
// requests of at most chunkSize entries, preserving request order in the
// assembled result.
func (s *Session) WriteMultipleChunked(items []WriteItem, chunkSize int) ([]error, error) {
	if s.state != base.AssociationAssociated {
		return nil, ErrNotAssociated
	}
	if chunkSize < 1 {
		chunkSize = 1
	}

	results := make([]error, 0, len(items))
	for start := 0; start < len(items); start += chunkSize {
		end := min(start+chunkSize, len(items))
		batch, err := s.writeListBatch(items[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, batch...)
	}
	return results, nil
}

func (s *Session) writeListBatch(batch []WriteItem) ([]error, error) {
	lnItems := make([]*apdu.LNItem, len(batch))
	for i := range batch {
		it := batch[i]
		item := &apdu.LNItem{ClassId: it.ClassId, Obis: it.Obis, Attribute: it.Attribute, SetData: &batch[i].Value}
		it.Access.apply(item)
		lnItems[i] = item
	}

	invokeId := s.nextInvokeId()
	plaintext, err := apdu.EncodeSetRequestWithList(invokeId, lnItems)
	if err != nil {
		return nil, fmt.Errorf("session: building set-request-with-list: %w", err)
	}
	wire, err := s.cipherRequest(plaintext)
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
	if plainTag != base.TagSetResponse || len(body) < 2 {
		s.state = base.AssociationBroken
		return nil, fmt.Errorf("session: expected set-response-with-list, got tag %#x", plainTag)
	}
	if apdu.SetResponseTag(body[0]) != apdu.SetResponseWithList {
		s.state = base.AssociationBroken
		return nil, fmt.Errorf("session: expected set-response-with-list variant, got %#x", body[0])
	}
	if err := s.checkInvokeId(body[1]); err != nil {
		s.state = base.AssociationBroken
		return nil, err
	}

	withList, err := apdu.DecodeSetResponseWithList(bytes.NewReader(body[2:]))
	if err != nil {
		s.state = base.AssociationBroken
		return nil, wireError("decoding set-response-with-list", err)
	}
	if len(withList.Results) != len(batch) {
		s.state = base.AssociationBroken
		return nil, fmt.Errorf("session: set-response-with-list returned %d results for %d requested", len(withList.Results), len(batch))
	}

	results := make([]error, len(batch))
	for i, r := range withList.Results {
		if r != base.TagResultSuccess {
			results[i] = dataAccessError(r)
		}
	}
	return results, nil
}

// ReadLoadProfile issues a GET with a RangeDescriptor (selector 1) over a
// profile's capture-time column, returning the parsed Array of rows (spec
// §4.4.3).
func (s *Session) ReadLoadProfile(obis axdr.Obis, from, to axdr.DateTime) (axdr.Data, error) {
	restricting := axdr.CaptureObjectDefinition{ClassId: clockClassId, Obis: clockObis, AttributeIndex: clockTimeAttribute}
	rng := axdr.RangeDescriptor{
		RestrictingObject: restricting,
		FromValue:         axdr.Data{Tag: axdr.TagDateTime, Value: from},
		ToValue:           axdr.Data{Tag: axdr.TagDateTime, Value: to},
	}
	const profileBufferAttribute = 2
	return s.Read(profileClassId, obis, profileBufferAttribute, RangeAccess(rng))
}

// profileClassId is the Profile Generic IC class-id (Green Book class_id 7).
const profileClassId = 7
