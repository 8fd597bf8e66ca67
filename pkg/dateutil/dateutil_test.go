package dateutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_DrawWindow(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{
			name: "before boundary counts toward today",
			now:  time.Date(2024, 6, 1, 19, 59, 59, 0, time.UTC),
			want: "2024-06-01",
		},
		{
			name: "at boundary counts toward tomorrow",
			now:  time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC),
			want: "2024-06-02",
		},
		{
			name: "after boundary counts toward tomorrow",
			now:  time.Date(2024, 6, 1, 23, 30, 0, 0, time.UTC),
			want: "2024-06-02",
		},
		{
			name: "month rollover",
			now:  time.Date(2024, 6, 30, 21, 0, 0, 0, time.UTC),
			want: "2024-07-01",
		},
		{
			name: "non-utc time is normalized first",
			now:  time.Date(2024, 6, 1, 22, 0, 0, 0, time.FixedZone("UTC+3", 3*3600)),
			want: "2024-06-01",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, DrawWindow(tt.now))
		})
	}
}

func Test_NextWindowBoundary(t *testing.T) {
	morning := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC), NextWindowBoundary(morning))

	evening := time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2024, 6, 2, 20, 0, 0, 0, time.UTC), NextWindowBoundary(evening))

	// The boundary and the window must agree: an entry made now belongs to
	// the window that the next boundary closes.
	for _, now := range []time.Time{morning, evening} {
		require.Equal(t, DrawWindow(now), NextWindowBoundary(now).Format(WindowLayout))
	}
}
