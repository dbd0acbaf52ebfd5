package clock_test

import (
	"testing"
	"time"

	"github.com/artpar/nodecfg/adapters/clock"
)

func TestUTC_Now(t *testing.T) {
	before := time.Now().Add(-time.Millisecond)
	got := clock.UTC{}.Now()
	after := time.Now().Add(time.Millisecond)

	if got.Location() != time.UTC {
		t.Errorf("Location() = %v, want UTC", got.Location())
	}
	if got.Before(before) || got.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", got, before, after)
	}
	if got.Nanosecond()%1000 != 0 {
		t.Errorf("Now() = %v is not truncated to microseconds", got)
	}
}

func TestFake(t *testing.T) {
	start := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		clock *clock.Fake
		want  []time.Time
	}{
		{
			name:  "fixed",
			clock: clock.NewFake(start),
			want:  []time.Time{start, start},
		},
		{
			name:  "stepping",
			clock: clock.NewStepping(start, time.Second),
			want:  []time.Time{start, start.Add(time.Second)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i, want := range tt.want {
				if got := tt.clock.Now(); !got.Equal(want) {
					t.Errorf("Now() #%d = %v, want %v", i, got, want)
				}
			}
		})
	}
}

func TestFake_Advance(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFake(start)
	c.Advance(90 * time.Minute)

	if got, want := c.Now(), start.Add(90*time.Minute); !got.Equal(want) {
		t.Errorf("Now() = %v, want %v", got, want)
	}
}
