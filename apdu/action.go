package apdu

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/metergrid/godlms/axdr"
	"github.com/metergrid/godlms/base"
)

// EncodeActionRequestNormal builds a single-method ACTION-Request-Normal APDU.
func EncodeActionRequestNormal(invokeId byte, item *LNItem) ([]byte, error) {
	var dst bytes.Buffer
	dst.WriteByte(byte(base.TagActionRequest))
	dst.WriteByte(byte(ActionRequestNormal))
	dst.WriteByte(invokeId)
	if err := EncodeActionItem(&dst, item); err != nil {
		return nil, err
	}
	return dst.Bytes(), nil
}

// EncodeActionRequestWithList builds a multi-method ACTION-Request-WithList
// APDU.
func EncodeActionRequestWithList(invokeId byte, items []*LNItem) ([]byte, error) {
	var dst bytes.Buffer
	dst.WriteByte(byte(base.TagActionRequest))
	dst.WriteByte(byte(ActionRequestWithList))
	dst.WriteByte(invokeId)
	axdr.EncodeLength(&dst, uint(len(items)))
	for _, it := range items {
		if err := EncodeActionItem(&dst, it); err != nil {
			return nil, err
		}
	}
	return dst.Bytes(), nil
}

// EncodeActionRequestNextPBlock builds the continuation request asking the
// meter for the next chunk of an in-progress ACTION-Response-WithPBlock.
func EncodeActionRequestNextPBlock(invokeId byte, blockNum uint32) []byte {
	var dst bytes.Buffer
	dst.WriteByte(byte(base.TagActionRequest))
	dst.WriteByte(byte(ActionRequestNextPBlock))
	dst.WriteByte(invokeId)
	dst.WriteByte(byte(blockNum >> 24))
	dst.WriteByte(byte(blockNum >> 16))
	dst.WriteByte(byte(blockNum >> 8))
	dst.WriteByte(byte(blockNum))
	return dst.Bytes()
}

// EncodeActionRequestWithFirstPBlock builds the opening APDU of a blocked
// ACTION-Request whose method argument does not fit in a single PDU: the
// method descriptor followed by the first chunk header and chunk.
func EncodeActionRequestWithFirstPBlock(invokeId byte, item *LNItem, chunk []byte, last bool, blockNum uint32) ([]byte, error) {
	if item.HasAccess {
		return nil, fmt.Errorf("apdu: action item cannot have selective access")
	}
	var dst bytes.Buffer
	dst.WriteByte(byte(base.TagActionRequest))
	dst.WriteByte(byte(ActionRequestWithFirstPBlock))
	dst.WriteByte(invokeId)
	encodeCosemAttribute(&dst, item)
	EncodeActionBlockHeader(&dst, ActionBlockHeader{LastBlock: last, BlockNum: blockNum})
	axdr.EncodeLength(&dst, uint(len(chunk)))
	dst.Write(chunk)
	return dst.Bytes(), nil
}

// EncodeActionRequestWithPBlock builds a continuation chunk of a blocked
// ACTION-Request method argument.
func EncodeActionRequestWithPBlock(invokeId byte, chunk []byte, last bool, blockNum uint32) []byte {
	var dst bytes.Buffer
	dst.WriteByte(byte(base.TagActionRequest))
	dst.WriteByte(byte(ActionRequestWithPBlock))
	dst.WriteByte(invokeId)
	EncodeActionBlockHeader(&dst, ActionBlockHeader{LastBlock: last, BlockNum: blockNum})
	axdr.EncodeLength(&dst, uint(len(chunk)))
	dst.Write(chunk)
	return dst.Bytes()
}

// ActionResponseNextPBlockResult is the decoded body of an
// ACTION-Response-NextPBlock: the server pulling the next chunk of a
// method argument the client is sending blocked.
type ActionResponseNextPBlockResult struct {
	BlockNum uint32
}

func DecodeActionResponseNextPBlock(src io.Reader) (ActionResponseNextPBlockResult, error) {
	var tmp [4]byte
	if _, err := io.ReadFull(src, tmp[:]); err != nil {
		return ActionResponseNextPBlockResult{}, err
	}
	return ActionResponseNextPBlockResult{BlockNum: binary.BigEndian.Uint32(tmp[:])}, nil
}

// ActionResponseNormalResult is the decoded body of an
// ACTION-Response-Normal APDU: the method result and, when present, a
// return value.
type ActionResponseNormalResult struct {
	Result base.ActionResult
	Value  *axdr.Data
}

// DecodeActionResponseNormal follows the donor's own field-by-field shape:
// a result byte, then an optional return-parameters choice, then an
// optional DataAccessResult-wrapped-error-or-value.
func DecodeActionResponseNormal(src io.Reader) (ActionResponseNormalResult, error) {
	var tmp [1]byte
	if _, err := io.ReadFull(src, tmp[:]); err != nil {
		return ActionResponseNormalResult{}, err
	}
	res := ActionResponseNormalResult{Result: base.ActionResult(tmp[0])}
	if res.Result != base.ActionResultSuccess {
		return res, nil
	}
	if _, err := io.ReadFull(src, tmp[:]); err != nil {
		if err == io.EOF {
			return res, nil
		}
		return res, err
	}
	if tmp[0] == 0 {
		return res, nil
	}
	if _, err := io.ReadFull(src, tmp[:]); err != nil {
		return res, err
	}
	if tmp[0] != 0 {
		if _, err := io.ReadFull(src, tmp[:]); err != nil {
			return res, err
		}
		res.Result = base.ActionResult(tmp[0])
		return res, nil
	}
	val, _, err := axdr.DecodeDataTag(src)
	if err != nil {
		return res, fmt.Errorf("apdu: decoding action response value: %w", err)
	}
	res.Value = &val
	return res, nil
}

// DecodeActionResponseWithPBlock reads one chunk header of a blocked
// ACTION-Response and the chunk's length prefix, returning the header and
// the chunk length; the chunk's raw bytes are left unread in src for the
// caller to read.
func DecodeActionResponseWithPBlock(src io.Reader) (ActionBlockHeader, uint, error) {
	h, err := DecodeActionBlockHeader(src)
	if err != nil {
		return ActionBlockHeader{}, 0, err
	}
	n, _, err := axdr.DecodeLength(src)
	if err != nil {
		return h, 0, fmt.Errorf("apdu: decoding action block length: %w", err)
	}
	return h, n, nil
}
