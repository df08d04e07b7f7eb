package apdu

import (
	"bytes"
	"testing"

	"github.com/metergrid/godlms/axdr"
	"github.com/metergrid/godlms/base"
	"github.com/stretchr/testify/require"
)

func TestEncodeSetRequestNormal(t *testing.T) {
	obis, err := axdr.NewObisFromSlice([]byte{0, 0, 1, 0, 0, 255})
	require.NoError(t, err)
	val := axdr.Data{Tag: axdr.TagOctetString, Value: []byte{1, 2, 3}}
	item := &LNItem{ClassId: 8, Obis: obis, Attribute: 2, SetData: &val}
	enc, err := EncodeSetRequestNormal(0x05, item)
	require.NoError(t, err)
	// tag, invoke-id, variant ordering (differs from GET/ACTION)
	require.Equal(t, byte(base.TagSetRequest), enc[0])
	require.Equal(t, byte(0x05), enc[1])
	require.Equal(t, byte(SetRequestNormal), enc[2])
}

func TestSetBlockHeaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	EncodeSetBlockHeader(&buf, SetBlockHeader{LastBlock: false, BlockNum: 9})
	got, err := DecodeSetBlockHeader(&buf)
	require.NoError(t, err)
	require.False(t, got.LastBlock)
	require.Equal(t, uint32(9), got.BlockNum)
}

func TestDecodeSetResponseLastDataBlockWithList(t *testing.T) {
	var buf bytes.Buffer
	axdr.EncodeLength(&buf, 2)
	buf.Write([]byte{0, 3})
	buf.Write([]byte{0, 0, 0, 4})
	got, err := DecodeSetResponseLastDataBlockWithList(&buf)
	require.NoError(t, err)
	require.Equal(t, []base.DlmsResultTag{base.TagResultSuccess, base.TagResultReadWriteDenied}, got.Results)
	require.Equal(t, uint32(4), got.BlockNum)
}
