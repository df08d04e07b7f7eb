package apdu

import (
	"bytes"
	"testing"

	"github.com/metergrid/godlms/axdr"
	"github.com/metergrid/godlms/base"
	"github.com/stretchr/testify/require"
)

func TestEncodeGetRequestNormal(t *testing.T) {
	// class-id 3 / OBIS 1.0.1.8.0.255 / attribute 2 / invoke-id 0xC1
	obis, err := axdr.NewObisFromSlice([]byte{1, 0, 1, 8, 0, 255})
	require.NoError(t, err)
	item := &LNItem{ClassId: 3, Obis: obis, Attribute: 2}
	enc, err := EncodeGetRequestNormal(0xC1, item)
	require.NoError(t, err)
	require.Equal(t, []byte{
		0xC0,       // GetRequest
		0x01,       // GetRequestNormal
		0xC1,       // invoke-id
		0x00, 0x03, // class-id
		0x01, 0x00, 0x01, 0x08, 0x00, 0xFF, // obis
		0x02, // attribute
		0x00, // no selective access
	}, enc)
}

func TestEncodeGetRequestWithList(t *testing.T) {
	obis, err := axdr.NewObisFromSlice([]byte{1, 0, 1, 8, 0, 255})
	require.NoError(t, err)
	items := []*LNItem{
		{ClassId: 3, Obis: obis, Attribute: 2},
		{ClassId: 3, Obis: obis, Attribute: 3},
	}
	enc, err := EncodeGetRequestWithList(0x01, items)
	require.NoError(t, err)
	require.Equal(t, byte(base.TagGetRequest), enc[0])
	require.Equal(t, byte(GetRequestWithList), enc[1])
	require.Equal(t, byte(0x01), enc[2])
	require.Equal(t, byte(2), enc[3]) // length-2 count
}

func TestDecodeGetResponseNormalSuccess(t *testing.T) {
	var body bytes.Buffer
	body.WriteByte(0) // success
	enc, err := axdr.Encode(axdr.Data{Tag: axdr.TagInteger, Value: int8(42)})
	require.NoError(t, err)
	body.Write(enc)

	got, err := DecodeGetResponseNormal(&body)
	require.NoError(t, err)
	require.Equal(t, axdr.TagInteger, got.Value.Tag)
	require.Equal(t, int8(42), got.Value.Value)
}

func TestDecodeGetResponseNormalError(t *testing.T) {
	var body bytes.Buffer
	body.WriteByte(1)
	body.WriteByte(3) // ReadWriteDenied
	got, err := DecodeGetResponseNormal(&body)
	require.NoError(t, err)
	require.Equal(t, base.TagResultReadWriteDenied, got.Result)
}

func TestGetBlockHeaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	EncodeGetBlockHeader(&buf, GetBlockHeader{LastBlock: true, BlockNum: 7})
	got, err := DecodeGetBlockHeader(&buf)
	require.NoError(t, err)
	require.True(t, got.LastBlock)
	require.Equal(t, uint32(7), got.BlockNum)
}

func TestGetBlockHeaderErrorFlag(t *testing.T) {
	var buf bytes.Buffer
	EncodeGetBlockHeader(&buf, GetBlockHeader{BlockNum: 1, Error: 5})
	_, err := DecodeGetBlockHeader(&buf)
	require.Error(t, err)
}

func TestDecodeGetResponseWithDataBlock(t *testing.T) {
	var buf bytes.Buffer
	EncodeGetBlockHeader(&buf, GetBlockHeader{LastBlock: false, BlockNum: 1})
	axdr.EncodeLength(&buf, 3)
	buf.Write([]byte{0xAA, 0xBB, 0xCC})
	got, err := DecodeGetResponseWithDataBlock(&buf)
	require.NoError(t, err)
	require.False(t, got.Header.LastBlock)
	require.Equal(t, []byte{0xAA, 0xBB, 0xCC}, got.Data)
}
