package apdu

import (
	"bytes"
	"fmt"
	"io"

	"github.com/metergrid/godlms/axdr"
	"github.com/metergrid/godlms/base"
)

// EncodeGetRequestNormal builds a single-attribute GET-Request-Normal APDU,
// including the leading CosemTag.
func EncodeGetRequestNormal(invokeId byte, item *LNItem) ([]byte, error) {
	var dst bytes.Buffer
	dst.WriteByte(byte(base.TagGetRequest))
	dst.WriteByte(byte(GetRequestNormal))
	dst.WriteByte(invokeId)
	if err := EncodeGetItem(&dst, item); err != nil {
		return nil, err
	}
	return dst.Bytes(), nil
}

// EncodeGetRequestWithList builds a multi-attribute GET-Request-WithList APDU.
func EncodeGetRequestWithList(invokeId byte, items []*LNItem) ([]byte, error) {
	var dst bytes.Buffer
	dst.WriteByte(byte(base.TagGetRequest))
	dst.WriteByte(byte(GetRequestWithList))
	dst.WriteByte(invokeId)
	axdr.EncodeLength(&dst, uint(len(items)))
	for _, it := range items {
		if err := EncodeGetItem(&dst, it); err != nil {
			return nil, err
		}
	}
	return dst.Bytes(), nil
}

// EncodeGetRequestNext builds the continuation request asking the meter to
// send the next block of an in-progress GET-Response-WithDataBlock transfer.
func EncodeGetRequestNext(invokeId byte, blockNum uint32) []byte {
	var dst bytes.Buffer
	dst.WriteByte(byte(base.TagGetRequest))
	dst.WriteByte(byte(GetRequestNext))
	dst.WriteByte(invokeId)
	dst.WriteByte(byte(blockNum >> 24))
	dst.WriteByte(byte(blockNum >> 16))
	dst.WriteByte(byte(blockNum >> 8))
	dst.WriteByte(byte(blockNum))
	return dst.Bytes()
}

// GetResponseNormalBody is the decoded body of a GET-Response-Normal APDU
// (everything after the CosemTag/invoke-id, which the caller already
// consumed while dispatching on the top-level tag).
type GetResponseNormalBody struct {
	Result base.DlmsResultTag
	Value  axdr.Data
}

// DecodeGetResponseNormal reads the result choice byte: 0 = success,
// followed by the attribute value; 1 = a single DataAccessResult byte
// follows instead of a value.
func DecodeGetResponseNormal(src io.Reader) (GetResponseNormalBody, error) {
	var tmp [1]byte
	if _, err := io.ReadFull(src, tmp[:]); err != nil {
		return GetResponseNormalBody{}, err
	}
	switch tmp[0] {
	case 0:
		val, _, err := axdr.DecodeDataTag(src)
		if err != nil {
			return GetResponseNormalBody{}, fmt.Errorf("apdu: decoding get response value: %w", err)
		}
		return GetResponseNormalBody{Result: base.TagResultSuccess, Value: val}, nil
	case 1:
		if _, err := io.ReadFull(src, tmp[:]); err != nil {
			return GetResponseNormalBody{}, err
		}
		return GetResponseNormalBody{Result: base.DlmsResultTag(tmp[0])}, nil
	default:
		return GetResponseNormalBody{}, fmt.Errorf("apdu: unexpected get response choice byte %#x", tmp[0])
	}
}

// GetResponseBlock is one chunk of a GET-Response-WithDataBlock transfer:
// the 6-byte block header plus the block's raw, still-concatenated data.
type GetResponseBlock struct {
	Header GetBlockHeader
	Data   []byte
}

// DecodeGetResponseWithDataBlock reads one data-block chunk body.
func DecodeGetResponseWithDataBlock(src io.Reader) (GetResponseBlock, error) {
	h, err := DecodeGetBlockHeader(src)
	if err != nil {
		return GetResponseBlock{}, err
	}
	n, _, err := axdr.DecodeLength(src)
	if err != nil {
		return GetResponseBlock{}, fmt.Errorf("apdu: decoding get block length: %w", err)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(src, buf); err != nil {
		return GetResponseBlock{}, err
	}
	return GetResponseBlock{Header: h, Data: buf}, nil
}

// GetResponseWithListBody is the decoded body of a GET-Response-WithList APDU.
type GetResponseWithListBody struct {
	Items []GetResponseNormalBody
}

// DecodeGetResponseWithList reads the count-prefixed sequence of per-item
// results produced by a GET-Request-WithList.
func DecodeGetResponseWithList(src io.Reader) (GetResponseWithListBody, error) {
	n, _, err := axdr.DecodeLength(src)
	if err != nil {
		return GetResponseWithListBody{}, err
	}
	items := make([]GetResponseNormalBody, n)
	for i := range items {
		item, err := DecodeGetResponseNormal(src)
		if err != nil {
			return GetResponseWithListBody{}, fmt.Errorf("apdu: decoding get-with-list item %d: %w", i, err)
		}
		items[i] = item
	}
	return GetResponseWithListBody{Items: items}, nil
}
