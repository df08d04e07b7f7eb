package axdr

import (
	"bytes"
	"fmt"
	"time"
)

// Date wildcard sentinels (Green Book 4.1.6.1).
const (
	DateYearWildcard      uint16 = 0xFFFF
	DateMonthWildcard     byte   = 0xFF
	DateMonthDST          byte   = 0xFE
	DateMonthEndDST       byte   = 0xFD
	DateDayWildcard       byte   = 0xFF
	DateDayOfWeekWildcard byte   = 0xFF
	TimeFieldWildcard     byte   = 0xFF
)

// DeviationUnspecified is the DateTime deviation sentinel meaning "no UTC
// offset given".
const DeviationUnspecified int16 = -32768

type Date struct {
	Year      uint16 // 0xFFFF = wildcard
	Month     byte   // 1-12, 0xFD/0xFE special DST markers, 0xFF wildcard
	Day       byte   // 1-31, 0xFF wildcard
	DayOfWeek byte   // 1=Mon .. 7=Sun, 0xFF wildcard
}

type Time struct {
	Hour       byte
	Minute     byte
	Second     byte
	Hundredths byte
}

type DateTime struct {
	Date      Date
	Time      Time
	Deviation int16 // minutes, DeviationUnspecified = not given
	Status    byte
}

func (t DateTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d.%02d UTC%+03d status=%02x",
		t.Date.Year, t.Date.Month, t.Date.Day,
		t.Time.Hour, t.Time.Minute, t.Time.Second, t.Time.Hundredths, t.Deviation, t.Status)
}

// ToTime converts to a time.Time, failing if any of the fields needed to
// build a concrete instant (year, month, day, hour, minute) is a wildcard.
// Second and hundredths default to 0 when wildcarded; an unspecified
// deviation is treated as UTC.
func (t DateTime) ToTime() (time.Time, error) {
	if t.Date.Year == DateYearWildcard || t.Date.Month == DateMonthWildcard || t.Date.Month == DateMonthDST || t.Date.Month == DateMonthEndDST ||
		t.Date.Day == DateDayWildcard || t.Time.Hour == TimeFieldWildcard || t.Time.Minute == TimeFieldWildcard {
		return time.Time{}, fmt.Errorf("axdr: datetime has a wildcard field, cannot convert to an instant")
	}
	second := t.Time.Second
	if second == TimeFieldWildcard {
		second = 0
	}
	ns := 0
	if t.Time.Hundredths != TimeFieldWildcard {
		ns = int(t.Time.Hundredths) * 10000000
	}
	dev := 0
	if t.Deviation != DeviationUnspecified {
		dev = int(t.Deviation)
	}
	zone := time.FixedZone("", dev*60)
	return time.Date(int(t.Date.Year), time.Month(t.Date.Month), int(t.Date.Day),
		int(t.Time.Hour), int(t.Time.Minute), int(second), ns, zone), nil
}

// ToUTCTime is ToTime with the deviation treated as 0 regardless of what was
// decoded, matching meters that stamp local wall-clock time with a status
// byte rather than a true UTC offset.
func (t DateTime) ToUTCTime() (time.Time, error) {
	t.Deviation = 0
	return t.ToTime()
}

func (t DateTime) encode(dst *bytes.Buffer) {
	dst.WriteByte(byte(t.Date.Year >> 8))
	dst.WriteByte(byte(t.Date.Year))
	dst.WriteByte(t.Date.Month)
	dst.WriteByte(t.Date.Day)
	dst.WriteByte(t.Date.DayOfWeek)
	dst.WriteByte(t.Time.Hour)
	dst.WriteByte(t.Time.Minute)
	dst.WriteByte(t.Time.Second)
	dst.WriteByte(t.Time.Hundredths)
	dst.WriteByte(byte(t.Deviation >> 8))
	dst.WriteByte(byte(t.Deviation))
	dst.WriteByte(t.Status)
}

// NewDateTimeFromTime builds a DateTime stamped with the local weekday
// (DLMS convention: 1=Monday .. 7=Sunday) and the zone's offset in minutes
// as the deviation.
func NewDateTimeFromTime(src time.Time) DateTime {
	wd := byte(src.Weekday())
	if wd == 0 {
		wd = 7
	}
	_, off := src.Zone()
	return DateTime{
		Date: Date{Year: uint16(src.Year()), Month: byte(src.Month()), Day: byte(src.Day()), DayOfWeek: wd},
		Time: Time{Hour: byte(src.Hour()), Minute: byte(src.Minute()), Second: byte(src.Second()), Hundredths: byte(src.Nanosecond() / 10000000)},
		Deviation: int16(off / 60),
		Status:    0,
	}
}

func NewDateTimeFromSlice(src []byte) (DateTime, error) {
	if len(src) < 12 {
		return DateTime{}, fmt.Errorf("axdr: datetime requires 12 bytes, got %d", len(src))
	}
	return DateTime{
		Date:      Date{Year: uint16(src[0])<<8 | uint16(src[1]), Month: src[2], Day: src[3], DayOfWeek: src[4]},
		Time:      Time{Hour: src[5], Minute: src[6], Second: src[7], Hundredths: src[8]},
		Deviation: int16(src[9])<<8 | int16(src[10]),
		Status:    src[11],
	}, nil
}
