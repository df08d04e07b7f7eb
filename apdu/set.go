package apdu

import (
	"bytes"
	"fmt"
	"io"

	"github.com/metergrid/godlms/axdr"
	"github.com/metergrid/godlms/base"
)

// EncodeSetRequestNormal builds a single-item SET-Request-Normal APDU.
func EncodeSetRequestNormal(invokeId byte, item *LNItem) ([]byte, error) {
	var dst bytes.Buffer
	dst.WriteByte(byte(base.TagSetRequest))
	dst.WriteByte(invokeId)
	dst.WriteByte(byte(SetRequestNormal))
	if err := EncodeSetItem(&dst, item); err != nil {
		return nil, err
	}
	return dst.Bytes(), nil
}

// EncodeSetRequestWithList builds a multi-item SET-Request-WithList APDU.
func EncodeSetRequestWithList(invokeId byte, items []*LNItem) ([]byte, error) {
	var dst bytes.Buffer
	dst.WriteByte(byte(base.TagSetRequest))
	dst.WriteByte(invokeId)
	dst.WriteByte(byte(SetRequestWithList))
	axdr.EncodeLength(&dst, uint(len(items)))
	for _, it := range items {
		if err := EncodeSetItem(&dst, it); err != nil {
			return nil, err
		}
	}
	return dst.Bytes(), nil
}

// SetBlockHeader is the 5-byte header preceding one chunk of a SET block
// transfer's raw_data: last-block flag and 4-byte BE block number, with no
// separate error flag (SET signals failure through the outer response tag).
type SetBlockHeader = ActionBlockHeader

func EncodeSetBlockHeader(dst *bytes.Buffer, h SetBlockHeader) {
	EncodeActionBlockHeader(dst, h)
}

func DecodeSetBlockHeader(src io.Reader) (SetBlockHeader, error) {
	return DecodeActionBlockHeader(src)
}

// SetResponseNormalResult is the decoded body of a SET-Response-Normal APDU.
type SetResponseNormalResult struct {
	Result base.DlmsResultTag
}

func DecodeSetResponseNormal(src io.Reader) (SetResponseNormalResult, error) {
	var tmp [1]byte
	if _, err := io.ReadFull(src, tmp[:]); err != nil {
		return SetResponseNormalResult{}, err
	}
	return SetResponseNormalResult{Result: base.DlmsResultTag(tmp[0])}, nil
}

// SetResponseDataBlockResult is the decoded body of a SET-Response-DataBlock
// APDU: the block number the meter is acknowledging, requesting the next one.
type SetResponseDataBlockResult struct {
	BlockNum uint32
}

func DecodeSetResponseDataBlock(src io.Reader) (SetResponseDataBlockResult, error) {
	var tmp [4]byte
	if _, err := io.ReadFull(src, tmp[:]); err != nil {
		return SetResponseDataBlockResult{}, err
	}
	return SetResponseDataBlockResult{BlockNum: uint32(tmp[0])<<24 | uint32(tmp[1])<<16 | uint32(tmp[2])<<8 | uint32(tmp[3])}, nil
}

// SetResponseLastDataBlockResult is the decoded body of a
// SET-Response-LastDataBlock APDU: the final result plus the block number
// being acknowledged.
type SetResponseLastDataBlockResult struct {
	Result   base.DlmsResultTag
	BlockNum uint32
}

func DecodeSetResponseLastDataBlock(src io.Reader) (SetResponseLastDataBlockResult, error) {
	var tmp [5]byte
	if _, err := io.ReadFull(src, tmp[:]); err != nil {
		return SetResponseLastDataBlockResult{}, err
	}
	return SetResponseLastDataBlockResult{
		Result:   base.DlmsResultTag(tmp[0]),
		BlockNum: uint32(tmp[1])<<24 | uint32(tmp[2])<<16 | uint32(tmp[3])<<8 | uint32(tmp[4]),
	}, nil
}

// SetResponseWithListResult is the decoded body of a SET-Response-WithList
// APDU: one DataAccessResult per item in request order.
type SetResponseWithListResult struct {
	Results []base.DlmsResultTag
}

func DecodeSetResponseWithList(src io.Reader) (SetResponseWithListResult, error) {
	n, _, err := axdr.DecodeLength(src)
	if err != nil {
		return SetResponseWithListResult{}, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(src, buf); err != nil {
		return SetResponseWithListResult{}, err
	}
	res := make([]base.DlmsResultTag, n)
	for i, b := range buf {
		res[i] = base.DlmsResultTag(b)
	}
	return SetResponseWithListResult{Results: res}, nil
}

// SetResponseLastDataBlockWithListResult is the decoded body of a
// SET-Response-LastDataBlockWithList APDU.
type SetResponseLastDataBlockWithListResult struct {
	Results  []base.DlmsResultTag
	BlockNum uint32
}

func DecodeSetResponseLastDataBlockWithList(src io.Reader) (SetResponseLastDataBlockWithListResult, error) {
	n, _, err := axdr.DecodeLength(src)
	if err != nil {
		return SetResponseLastDataBlockWithListResult{}, err
	}
	buf := make([]byte, n+4)
	if _, err := io.ReadFull(src, buf); err != nil {
		return SetResponseLastDataBlockWithListResult{}, err
	}
	res := make([]base.DlmsResultTag, n)
	for i := uint(0); i < n; i++ {
		res[i] = base.DlmsResultTag(buf[i])
	}
	blk := buf[n:]
	return SetResponseLastDataBlockWithListResult{
		Results:  res,
		BlockNum: uint32(blk[0])<<24 | uint32(blk[1])<<16 | uint32(blk[2])<<8 | uint32(blk[3]),
	}, nil
}

// EncodeSetRequestFirstDataBlock builds the opening APDU of a blocked SET
// transfer: item descriptor(s) followed by the first chunk header and chunk.
func EncodeSetRequestFirstDataBlock(invokeId byte, item *LNItem, chunk []byte, last bool, blockNum uint32) ([]byte, error) {
	var dst bytes.Buffer
	dst.WriteByte(byte(base.TagSetRequest))
	dst.WriteByte(invokeId)
	dst.WriteByte(byte(SetRequestWithFirstDataBlock))
	local := &LNItem{ClassId: item.ClassId, Obis: item.Obis, Attribute: item.Attribute, HasAccess: item.HasAccess, AccessDescriptor: item.AccessDescriptor, AccessData: item.AccessData}
	encodeCosemAttribute(&dst, local)
	if local.HasAccess {
		dst.WriteByte(1)
		dst.WriteByte(local.AccessDescriptor)
		enc, err := axdr.Encode(*local.AccessData)
		if err != nil {
			return nil, fmt.Errorf("apdu: encoding set selective access: %w", err)
		}
		dst.Write(enc)
	} else {
		dst.WriteByte(0)
	}
	EncodeSetBlockHeader(&dst, SetBlockHeader{LastBlock: last, BlockNum: blockNum})
	axdr.EncodeLength(&dst, uint(len(chunk)))
	dst.Write(chunk)
	return dst.Bytes(), nil
}

// EncodeSetRequestDataBlock builds a continuation chunk of a blocked SET
// transfer.
func EncodeSetRequestDataBlock(invokeId byte, chunk []byte, last bool, blockNum uint32) []byte {
	var dst bytes.Buffer
	dst.WriteByte(byte(base.TagSetRequest))
	dst.WriteByte(invokeId)
	dst.WriteByte(byte(SetRequestWithDataBlock))
	EncodeSetBlockHeader(&dst, SetBlockHeader{LastBlock: last, BlockNum: blockNum})
	axdr.EncodeLength(&dst, uint(len(chunk)))
	dst.Write(chunk)
	return dst.Bytes()
}
