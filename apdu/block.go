package apdu

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/metergrid/godlms/axdr"
)

// GetBlockHeader is the 6-byte header preceding a GET-Response-WithDataBlock
// chunk's raw_data: last-block flag, 4-byte BE block number, error flag.
type GetBlockHeader struct {
	LastBlock bool
	BlockNum  uint32
	Error     byte
}

func EncodeGetBlockHeader(dst *bytes.Buffer, h GetBlockHeader) {
	if h.LastBlock {
		dst.WriteByte(1)
	} else {
		dst.WriteByte(0)
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], h.BlockNum)
	dst.Write(b[:])
	dst.WriteByte(h.Error)
}

func DecodeGetBlockHeader(src io.Reader) (GetBlockHeader, error) {
	var buf [6]byte
	if _, err := io.ReadFull(src, buf[:]); err != nil {
		return GetBlockHeader{}, err
	}
	h := GetBlockHeader{
		LastBlock: buf[0] != 0,
		BlockNum:  binary.BigEndian.Uint32(buf[1:5]),
		Error:     buf[5],
	}
	if h.Error != 0 {
		return h, fmt.Errorf("apdu: meter returned block error %d", h.Error)
	}
	return h, nil
}

// ActionBlockHeader is the 5-byte header preceding an
// ACTION-Response-WithPBlock chunk's raw_data: no separate error flag, the
// meter signals failure through the outer ACTION-Response instead.
type ActionBlockHeader struct {
	LastBlock bool
	BlockNum  uint32
}

func EncodeActionBlockHeader(dst *bytes.Buffer, h ActionBlockHeader) {
	if h.LastBlock {
		dst.WriteByte(1)
	} else {
		dst.WriteByte(0)
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], h.BlockNum)
	dst.Write(b[:])
}

func DecodeActionBlockHeader(src io.Reader) (ActionBlockHeader, error) {
	var buf [5]byte
	if _, err := io.ReadFull(src, buf[:]); err != nil {
		return ActionBlockHeader{}, err
	}
	return ActionBlockHeader{
		LastBlock: buf[0] != 0,
		BlockNum:  binary.BigEndian.Uint32(buf[1:5]),
	}, nil
}

// EncodeRawDataLength writes the A-XDR length prefix of a block's raw_data
// payload, shared by GET/SET/ACTION block-transfer encoders.
func EncodeRawDataLength(dst *bytes.Buffer, n uint) {
	axdr.EncodeLength(dst, n)
}
