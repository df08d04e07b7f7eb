package axdr

import (
	"fmt"
	"regexp"
	"strconv"
)

// Obis field presence bitmask, set by NewObisFromStringComp to record which
// fields were given explicitly by a compressed string form such as "1.8.0".
const (
	ObisHasA = 0x20
	ObisHasB = 0x10
	ObisHasC = 0x08
	ObisHasD = 0x04
	ObisHasE = 0x02
	ObisHasF = 0x01
)

// Obis is a six-byte DLMS object identifier A.B.C.D.E.F (Green Book 7.3).
type Obis struct {
	A, B, C, D, E, F byte
}

func (o Obis) String() string {
	return fmt.Sprintf("%d-%d:%d.%d.%d.%d", o.A, o.B, o.C, o.D, o.E, o.F)
}

func (o Obis) Bytes() []byte {
	return []byte{o.A, o.B, o.C, o.D, o.E, o.F}
}

func (o Obis) EqualTo(o2 Obis) bool {
	return o.A == o2.A && o.B == o2.B && o.C == o2.C && o.D == o2.D && o.E == o2.E && o.F == o2.F
}

func NewObisFromSlice(src []byte) (ob Obis, err error) {
	if len(src) < 6 {
		return ob, fmt.Errorf("axdr: obis requires 6 bytes, got %d", len(src))
	}
	return Obis{A: src[0], B: src[1], C: src[2], D: src[3], E: src[4], F: src[5]}, nil
}

var obisPattern = regexp.MustCompile(`^((\d+)-(\d+):)?(\d+)\.(\d+)(\.(\d+)(\.(\d+))?)?$`)

// NewObisFromString parses both the full "A-B:C.D.E.F" form and the
// compressed forms a meter's documentation commonly uses ("C.D",
// "C.D.E", "C.D.E.F"). Missing A/B default to 0; missing E/F default to 255
// (the DLMS "not used" sentinel for those fields).
func NewObisFromString(src string) (ob Obis, err error) {
	ob, _, err = NewObisFromStringComp(src)
	return
}

// NewObisFromStringComp additionally reports, as a bitmask of ObisHasX
// flags, which fields were given explicitly in src.
func NewObisFromStringComp(src string) (ob Obis, has int, err error) {
	m := obisPattern.FindStringSubmatch(src)
	if m == nil {
		return ob, 0, fmt.Errorf("axdr: invalid obis format %q", src)
	}
	has = ObisHasC | ObisHasD
	a, b := 0, 0
	if len(m[1]) > 0 {
		a, err = strconv.Atoi(m[2])
		if err != nil {
			return ob, 0, err
		}
		b, err = strconv.Atoi(m[3])
		if err != nil {
			return ob, 0, err
		}
		has |= ObisHasA | ObisHasB
	}
	c, err := strconv.Atoi(m[4])
	if err != nil {
		return ob, 0, err
	}
	d, err := strconv.Atoi(m[5])
	if err != nil {
		return ob, 0, err
	}
	e, f := 255, 255
	if len(m[6]) > 0 {
		e, err = strconv.Atoi(m[7])
		if err != nil {
			return ob, 0, err
		}
		has |= ObisHasE
		if len(m[8]) > 0 {
			f, err = strconv.Atoi(m[9])
			if err != nil {
				return ob, 0, err
			}
			has |= ObisHasF
		}
	}
	for _, v := range []int{a, b, c, d, e, f} {
		if v > 255 {
			return ob, 0, fmt.Errorf("axdr: obis field out of range: %d", v)
		}
	}
	ob = Obis{A: byte(a), B: byte(b), C: byte(c), D: byte(d), E: byte(e), F: byte(f)}
	return ob, has, nil
}
