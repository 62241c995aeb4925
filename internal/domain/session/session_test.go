package session

import (
	"testing"
	"time"
)

func easternTime(t *testing.T, hour, min int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	// A regular weekday outside DST transitions.
	return time.Date(2024, time.March, 6, hour, min, 0, 0, loc)
}

func TestInRegularSessionBoundaries(t *testing.T) {
	cases := []struct {
		hour, min int
		want      bool
	}{
		{9, 29, false},
		{9, 30, true},
		{12, 0, true},
		{15, 59, true},
		{16, 0, false},
		{20, 15, false},
	}

	for _, tc := range cases {
		got := InRegularSession(easternTime(t, tc.hour, tc.min))
		if got != tc.want {
			t.Errorf("InRegularSession(%02d:%02d ET) = %v, want %v", tc.hour, tc.min, got, tc.want)
		}
	}
}

func TestInRegularSessionConvertsZones(t *testing.T) {
	// 14:30 UTC on a March standard-time date is 09:30 ET.
	utc := time.Date(2024, time.March, 6, 14, 30, 0, 0, time.UTC)
	if !InRegularSession(utc) {
		t.Errorf("14:30 UTC should be inside the session")
	}
	if InRegularSession(utc.Add(-time.Minute)) {
		t.Errorf("14:29 UTC should be outside the session")
	}
}
