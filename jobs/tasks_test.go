package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSecondWorkingDay(t *testing.T) {
	cases := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		// June 2026 starts on a Monday: working days 1st, 2nd.
		{"weekday month start", time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC), time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC)},
		// August 2026 starts on a Saturday: working days 3rd, 4th.
		{"weekend month start", time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), time.Date(2026, 8, 4, 0, 0, 0, 0, time.UTC)},
		// May 2026 starts on a Friday: 1st then Monday the 4th.
		{"friday month start", time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, SecondWorkingDay(tc.in))
		})
	}
}
