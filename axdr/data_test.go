package axdr

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, d Data) Data {
	t.Helper()
	enc, err := Encode(d)
	require.NoError(t, err)
	got, c, err := DecodeDataTag(bytes.NewReader(enc))
	require.NoError(t, err)
	require.Equal(t, len(enc), c)
	return got
}

func TestIntegerEncoding(t *testing.T) {
	// Integer(42) -> 0x0F 0x2A
	enc, err := Encode(Data{Tag: TagInteger, Value: int8(42)})
	require.NoError(t, err)
	require.Equal(t, []byte{0x0F, 0x2A}, enc)
}

func TestScalerUnitEncoding(t *testing.T) {
	// ScalerUnit(-2, WattHour=30) -> 02 02 0F FE 16 1E
	su := ScalerUnit{Scaler: -2, Unit: 30}
	enc, err := Encode(su.AsData())
	require.NoError(t, err)
	require.Equal(t, []byte{0x02, 0x02, 0x0F, 0xFE, 0x16, 0x1E}, enc)
}

func TestDataRoundTrip(t *testing.T) {
	cases := []Data{
		{Tag: TagNull},
		{Tag: TagBoolean, Value: true},
		{Tag: TagInteger, Value: int8(-5)},
		{Tag: TagLong, Value: int16(-1000)},
		{Tag: TagUnsigned, Value: uint8(200)},
		{Tag: TagLongUnsigned, Value: uint16(5000)},
		{Tag: TagDoubleLong, Value: int32(-70000)},
		{Tag: TagDoubleLongUnsigned, Value: uint32(70000)},
		{Tag: TagLong64, Value: int64(-1) << 40},
		{Tag: TagLong64Unsigned, Value: uint64(1) << 40},
		{Tag: TagFloat32, Value: float32(3.5)},
		{Tag: TagFloat64, Value: float64(3.5)},
		{Tag: TagVisibleString, Value: "hello"},
		{Tag: TagUTF8String, Value: "héllo"},
		{Tag: TagOctetString, Value: []byte{1, 2, 3}},
	}
	for _, c := range cases {
		got := roundTrip(t, c)
		require.Equal(t, c.Tag, got.Tag)
		require.Equal(t, c.Value, got.Value)
	}
}

func TestArrayStructureRoundTrip(t *testing.T) {
	d := Data{Tag: TagStructure, Value: []Data{
		{Tag: TagInteger, Value: int8(1)},
		{Tag: TagArray, Value: []Data{
			{Tag: TagLongUnsigned, Value: uint16(1)},
			{Tag: TagLongUnsigned, Value: uint16(2)},
		}},
	}}
	got := roundTrip(t, d)
	require.Equal(t, TagStructure, got.Tag)
	fields := got.Value.([]Data)
	require.Len(t, fields, 2)
	require.Equal(t, int8(1), fields[0].Value)
	inner := fields[1].Value.([]Data)
	require.Len(t, inner, 2)
}

func TestNestingDepthBound(t *testing.T) {
	var buf bytes.Buffer
	for i := 0; i < maxNestingDepth+2; i++ {
		buf.WriteByte(byte(TagArray))
		buf.WriteByte(1)
	}
	buf.WriteByte(byte(TagInteger))
	buf.WriteByte(0)
	_, _, err := DecodeDataTag(bytes.NewReader(buf.Bytes()))
	require.Error(t, err)
}

func TestBitstringPacking(t *testing.T) {
	for _, n := range []int{0, 1, 7, 8, 9} {
		bits := make([]bool, n)
		for i := range bits {
			bits[i] = i%2 == 0
		}
		d := Data{Tag: TagBitString, Value: bits}
		got := roundTrip(t, d)
		require.Equal(t, bits, got.Value)
	}
}

func TestLengthBoundaries(t *testing.T) {
	for _, n := range []int{0, 127, 128, 255, 65535} {
		payload := make([]byte, n)
		d := Data{Tag: TagOctetString, Value: payload}
		got := roundTrip(t, d)
		require.Equal(t, payload, got.Value)
	}
}

func TestDecodeLengthRejectsIndefinite(t *testing.T) {
	_, _, err := decodeLength(bytes.NewReader([]byte{0x80}), make([]byte, 8))
	require.Error(t, err)
}

func TestDecodeLengthRejectsTooManyFollowBytes(t *testing.T) {
	_, _, err := decodeLength(bytes.NewReader([]byte{0x85, 1, 2, 3, 4, 5}), make([]byte, 8))
	require.Error(t, err)
}
