package apdu

import (
	"bytes"
	"testing"

	"github.com/metergrid/godlms/axdr"
	"github.com/metergrid/godlms/base"
	"github.com/stretchr/testify/require"
)

func TestEncodeActionRequestNormal(t *testing.T) {
	obis, err := axdr.NewObisFromSlice([]byte{0, 0, 1, 0, 0, 255})
	require.NoError(t, err)
	item := &LNItem{ClassId: 8, Obis: obis, Attribute: 1}
	enc, err := EncodeActionRequestNormal(0x02, item)
	require.NoError(t, err)
	// tag, variant, invoke-id ordering (same as GET, differs from SET)
	require.Equal(t, byte(base.TagActionRequest), enc[0])
	require.Equal(t, byte(ActionRequestNormal), enc[1])
	require.Equal(t, byte(0x02), enc[2])
}

func TestEncodeActionItemRejectsSelectiveAccess(t *testing.T) {
	obis, err := axdr.NewObisFromSlice([]byte{0, 0, 1, 0, 0, 255})
	require.NoError(t, err)
	item := &LNItem{ClassId: 8, Obis: obis, Attribute: 1, HasAccess: true}
	_, err = EncodeActionRequestNormal(0x02, item)
	require.Error(t, err)
}

func TestActionBlockHeaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	EncodeActionBlockHeader(&buf, ActionBlockHeader{LastBlock: true, BlockNum: 3})
	got, err := DecodeActionBlockHeader(&buf)
	require.NoError(t, err)
	require.True(t, got.LastBlock)
	require.Equal(t, uint32(3), got.BlockNum)
}

func TestDecodeActionResponseNormalSuccessNoValue(t *testing.T) {
	var body bytes.Buffer
	body.WriteByte(byte(base.ActionResultSuccess))
	got, err := DecodeActionResponseNormal(&body)
	require.NoError(t, err)
	require.Equal(t, base.ActionResultSuccess, got.Result)
	require.Nil(t, got.Value)
}

func TestDecodeActionResponseNormalFailure(t *testing.T) {
	var body bytes.Buffer
	body.WriteByte(byte(base.ActionResultObjectUndefined))
	got, err := DecodeActionResponseNormal(&body)
	require.NoError(t, err)
	require.Equal(t, base.ActionResultObjectUndefined, got.Result)
}
