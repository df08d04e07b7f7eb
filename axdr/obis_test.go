package axdr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestObisFromStringForms(t *testing.T) {
	cases := []string{"1-0:1.8.0.255", "1.8.0", "1.8.0.255", "1.8"}
	for _, s := range cases {
		ob, err := NewObisFromString(s)
		require.NoError(t, err, s)
		require.Equal(t, byte(1), ob.C)
		require.Equal(t, byte(8), ob.D)
	}
}

func TestObisAllZerosAndAllFF(t *testing.T) {
	zero := Obis{}
	require.Equal(t, zero, mustObisFromSlice(t, zero.Bytes()))

	allFF := Obis{A: 255, B: 255, C: 255, D: 255, E: 255, F: 255}
	require.Equal(t, allFF, mustObisFromSlice(t, allFF.Bytes()))
}

func mustObisFromSlice(t *testing.T, b []byte) Obis {
	t.Helper()
	ob, err := NewObisFromSlice(b)
	require.NoError(t, err)
	return ob
}

func TestObisInvalidFormat(t *testing.T) {
	_, err := NewObisFromString("not-an-obis")
	require.Error(t, err)
}
