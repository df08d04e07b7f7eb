package axdr

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDateTimeWildcardsPreserved(t *testing.T) {
	dt := DateTime{
		Date:      Date{Year: DateYearWildcard, Month: 6, Day: DateDayWildcard, DayOfWeek: DateDayOfWeekWildcard},
		Time:      Time{Hour: 12, Minute: TimeFieldWildcard, Second: 0, Hundredths: TimeFieldWildcard},
		Deviation: DeviationUnspecified,
		Status:    0,
	}
	var buf bytes.Buffer
	dt.encode(&buf)
	got, err := NewDateTimeFromSlice(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, dt, got)
}

func TestDateTimeToTimeRejectsWildcard(t *testing.T) {
	dt := DateTime{Date: Date{Year: DateYearWildcard, Month: 1, Day: 1}, Time: Time{Hour: 0, Minute: 0}}
	_, err := dt.ToTime()
	require.Error(t, err)
}

func TestDateTimeToTimeConcrete(t *testing.T) {
	dt := DateTime{
		Date:      Date{Year: 2024, Month: 3, Day: 15, DayOfWeek: 5},
		Time:      Time{Hour: 10, Minute: 30, Second: 0, Hundredths: 0},
		Deviation: 60,
	}
	tt, err := dt.ToTime()
	require.NoError(t, err)
	require.Equal(t, 2024, tt.Year())
	_, off := tt.Zone()
	require.Equal(t, 3600, off)
}
