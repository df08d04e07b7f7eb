package session

import (
	"fmt"

	"github.com/metergrid/godlms/axdr"
)

// clockClassId and clockObis address the Clock IC's time attribute
// (Green Book class_id 8, logical name 0.0.1.0.0.255), used by the
// ReadClock/SetClock convenience methods.
const clockClassId = 8
const clockTimeAttribute = 2

var clockObis = axdr.Obis{A: 0, B: 0, C: 1, D: 0, E: 0, F: 255}

// ReadClock reads the meter's Clock object and decodes it as a DateTime
// (spec §6). A conformant meter emits the time attribute as a 12-byte
// OctetString rather than a tagged DateTime value; both forms are accepted.
func (s *Session) ReadClock() (axdr.DateTime, error) {
	val, err := s.Read(clockClassId, clockObis, clockTimeAttribute, nil)
	if err != nil {
		return axdr.DateTime{}, err
	}
	switch v := val.Value.(type) {
	case axdr.DateTime:
		return v, nil
	case []byte:
		if val.Tag == axdr.TagOctetString && len(v) == 12 {
			return axdr.NewDateTimeFromSlice(v)
		}
	}
	return axdr.DateTime{}, fmt.Errorf("session: clock attribute did not decode as a date-time (tag %v)", val.Tag)
}

// SetClock writes the meter's Clock object from a DateTime, encoded as a
// 12-byte OctetString: the wire type the Clock IC's set_attribute demands
// for its time attribute, not a tagged DateTime value.
func (s *Session) SetClock(dt axdr.DateTime) error {
	return s.Write(clockClassId, clockObis, clockTimeAttribute, nil, axdr.Data{Tag: axdr.TagOctetString, Value: dt})
}

// SetClockNow sets the meter's clock to the current time reported by the
// session's configured TimeSource.
func (s *Session) SetClockNow() error {
	if s.clock == nil {
		return fmt.Errorf("session: SetClockNow requires a time source (see SetTimeSource)")
	}
	return s.SetClock(axdr.NewDateTimeFromTime(s.clock.Now()))
}
