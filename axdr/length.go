package axdr

import (
	"bytes"
	"fmt"
	"io"
)

// maxNestingDepth bounds recursive Structure/Array decoding so a malformed
// or hostile APDU cannot exhaust the stack.
const maxNestingDepth = 8

func codedLength(n uint) int {
	switch {
	case n < 128:
		return 1
	case n < 256:
		return 2
	case n < 65536:
		return 3
	case n < 16777216:
		return 4
	default:
		return 5
	}
}

func encodeLength(dst *bytes.Buffer, n uint) {
	switch {
	case n < 128:
		dst.WriteByte(byte(n))
	case n < 256:
		dst.WriteByte(0x81)
		dst.WriteByte(byte(n))
	case n < 65536:
		dst.WriteByte(0x82)
		dst.WriteByte(byte(n >> 8))
		dst.WriteByte(byte(n))
	case n < 16777216:
		dst.WriteByte(0x83)
		dst.WriteByte(byte(n >> 16))
		dst.WriteByte(byte(n >> 8))
		dst.WriteByte(byte(n))
	default:
		dst.WriteByte(0x84)
		dst.WriteByte(byte(n >> 24))
		dst.WriteByte(byte(n >> 16))
		dst.WriteByte(byte(n >> 8))
		dst.WriteByte(byte(n))
	}
}

func encodeLengthInto(dst []byte, n uint) int {
	var buf bytes.Buffer
	encodeLength(&buf, n)
	copy(dst, buf.Bytes())
	return buf.Len()
}

func encodeTag(dst *bytes.Buffer, tag byte, data []byte) {
	dst.WriteByte(tag)
	encodeLength(dst, uint(len(data)))
	dst.Write(data)
}

// decodeLength reads an A-XDR variable-length field. It rejects the
// reserved indefinite-length encoding (0x80) and any length whose encoding
// needs more than 4 follow bytes.
func decodeLength(src io.Reader, tmp []byte) (uint, int, error) {
	if _, err := io.ReadFull(src, tmp[:1]); err != nil {
		return 0, 0, err
	}
	b := tmp[0]
	if b < 128 {
		return uint(b), 1, nil
	}
	if b == 128 {
		return 0, 0, fmt.Errorf("axdr: indefinite length (0x80) is reserved")
	}
	c := int(b & 0x7f)
	if c > 4 {
		return 0, 0, fmt.Errorf("axdr: length needs %d follow bytes, max 4", c)
	}
	if _, err := io.ReadFull(src, tmp[:c]); err != nil {
		return 0, 0, err
	}
	var r uint
	for i := 0; i < c; i++ {
		r = (r << 8) | uint(tmp[i])
	}
	return r, c + 1, nil
}

// EncodeLength writes an A-XDR variable-length field, exported for callers
// outside this package that frame their own length-prefixed values (e.g.
// the apdu package's WithList item counts and block raw-data lengths).
func EncodeLength(dst *bytes.Buffer, n uint) {
	encodeLength(dst, n)
}

// DecodeLength reads an A-XDR variable-length field from src, returning the
// decoded value and the number of bytes consumed.
func DecodeLength(src io.Reader) (uint, int, error) {
	var tmp [4]byte
	return decodeLength(src, tmp[:])
}

func decodeTag(src []byte, tmp []byte) (tag byte, consumed int, payload []byte, err error) {
	if len(src) < 2 {
		return 0, 0, nil, fmt.Errorf("axdr: no data available")
	}
	tag = src[0]
	dlen, c, err := decodeLength(bytes.NewReader(src[1:]), tmp)
	if err != nil {
		return 0, 0, nil, err
	}
	if len(src) < c+1+int(dlen) {
		return 0, 0, nil, fmt.Errorf("axdr: declared length exceeds remaining input")
	}
	return tag, c + 1 + int(dlen), src[1+c : 1+c+int(dlen)], nil
}
