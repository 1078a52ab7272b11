package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWindow(t *testing.T) *Window {
	t.Helper()
	w, err := ParseWindow("21:00", "06:30", "Asia/Kolkata")
	require.NoError(t, err)
	return w
}

// kolkata builds a local time in the window's timezone.
func kolkata(t *testing.T, year int, month time.Month, day, hour, minute int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	return time.Date(year, month, day, hour, minute, 0, 0, loc)
}

func TestWindow_WrapsPastMidnight(t *testing.T) {
	w := testWindow(t)

	// 2026-03-10 is a Tuesday.
	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"evening inside", kolkata(t, 2026, time.March, 10, 22, 0), true},
		{"start boundary inclusive", kolkata(t, 2026, time.March, 10, 21, 0), true},
		{"just before start", kolkata(t, 2026, time.March, 10, 20, 59), false},
		{"after midnight inside", kolkata(t, 2026, time.March, 10, 2, 15), true},
		{"end boundary inclusive", kolkata(t, 2026, time.March, 10, 6, 30), true},
		{"just past end", kolkata(t, 2026, time.March, 10, 6, 31), false},
		{"midday outside", kolkata(t, 2026, time.March, 10, 12, 0), false},
		{"saturday excluded", kolkata(t, 2026, time.March, 14, 22, 0), false},
		{"sunday excluded", kolkata(t, 2026, time.March, 15, 2, 0), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, w.Contains(tc.at))
		})
	}
}

func TestWindow_ConvertsFromOtherZones(t *testing.T) {
	w := testWindow(t)

	// 16:30 UTC Tuesday = 22:00 IST Tuesday, inside the window.
	utc := time.Date(2026, time.March, 10, 16, 30, 0, 0, time.UTC)
	assert.True(t, w.Contains(utc))
}

func TestParseWindow_Invalid(t *testing.T) {
	_, err := ParseWindow("21:00", "06:30", "Not/AZone")
	require.Error(t, err)

	_, err = ParseWindow("25:00", "06:30", "UTC")
	require.Error(t, err)

	_, err = ParseWindow("2100", "06:30", "UTC")
	require.Error(t, err)
}

func TestGuard_SingleSlot(t *testing.T) {
	var g Guard
	require.True(t, g.TryAcquire())
	assert.False(t, g.TryAcquire())
	assert.True(t, g.Running())
	g.Release()
	assert.True(t, g.TryAcquire())
}

func newTestScheduler(t *testing.T, run RunFunc) *Scheduler {
	t.Helper()
	s, err := New(Config{
		CronSpec:    "*/15 * * * 1-5",
		Timezone:    "Asia/Kolkata",
		WindowStart: "21:00",
		WindowEnd:   "06:30",
	}, nil, run)
	require.NoError(t, err)
	return s
}

func TestScheduler_TickSkipsOutsideWindow(t *testing.T) {
	ran := 0
	s := newTestScheduler(t, func(context.Context) error {
		ran++
		return nil
	})
	s.nowFunc = func() time.Time { return kolkata(t, 2026, time.March, 10, 12, 0) }

	s.tick(context.Background())
	assert.Zero(t, ran)

	s.nowFunc = func() time.Time { return kolkata(t, 2026, time.March, 10, 22, 0) }
	s.tick(context.Background())
	assert.Equal(t, 1, ran)
}

func TestScheduler_ConcurrentTicksRunOnce(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	ran := 0
	var mu sync.Mutex

	s := newTestScheduler(t, func(context.Context) error {
		mu.Lock()
		ran++
		mu.Unlock()
		close(started)
		<-release
		return nil
	})
	s.nowFunc = func() time.Time { return kolkata(t, 2026, time.March, 10, 22, 0) }

	go s.tick(context.Background())
	<-started

	// Second tick while the first pass is still running must be a no-op.
	s.tick(context.Background())
	close(release)

	assert.Eventually(t, func() bool {
		return !s.Guard().Running()
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, ran)
}

func TestScheduler_RunNowReportsBusy(t *testing.T) {
	s := newTestScheduler(t, func(context.Context) error { return nil })

	require.True(t, s.Guard().TryAcquire())
	err := s.RunNow(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyRunning))

	s.Guard().Release()
	require.NoError(t, s.RunNow(context.Background()))
	assert.False(t, s.Guard().Running())
}

func TestScheduler_RunNowIgnoresWindow(t *testing.T) {
	ran := false
	s := newTestScheduler(t, func(context.Context) error {
		ran = true
		return nil
	})
	// Midday Tuesday, well outside the window.
	s.nowFunc = func() time.Time { return kolkata(t, 2026, time.March, 10, 12, 0) }

	require.NoError(t, s.RunNow(context.Background()))
	assert.True(t, ran)
}

func TestScheduler_InvalidCronSpec(t *testing.T) {
	s := newTestScheduler(t, func(context.Context) error { return nil })
	s.spec = "not a cron spec"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.Error(t, s.Start(ctx))
}
