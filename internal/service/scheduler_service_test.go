package service

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timeline-planner/internal/config"
)

func TestBuildDailySpec(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "08:00", want: "0 0 8 * * *"},
		{in: "00:05", want: "0 5 0 * * *"},
		{in: " 23:59 ", want: "0 59 23 * * *"},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "noon", wantErr: true},
		{in: "8", wantErr: true},
		{in: "7:05", want: "0 5 7 * * *"},
		{in: "12:30:00", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := buildDailySpec(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildDailySpec_AgreesWithConfigClock(t *testing.T) {
	for _, in := range []string{"00:00", "06:45", "8am", "23:60", "off"} {
		_, clockErr := config.ParseClock(in)
		_, specErr := buildDailySpec(in)
		assert.Equal(t, clockErr == nil, specErr == nil, in)
	}
}

func TestSchedulerService_ScheduleDaily(t *testing.T) {
	s := NewSchedulerService(time.UTC, zerolog.Nop())

	_, err := s.ScheduleDaily("report", "08:00", func() {})
	require.NoError(t, err)
	_, err = s.ScheduleDaily("topup", "00:05", func() {})
	require.NoError(t, err)
	_, err = s.ScheduleDaily("broken", "8am", func() {})
	assert.Error(t, err)

	assert.Equal(t, 2, s.Entries())

	s.Start()
	s.Stop()
}
