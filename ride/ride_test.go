package ride

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semanticallynull/bikeshare-fleet/bike"
	"github.com/semanticallynull/bikeshare-fleet/customer"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newRide(t *testing.T, start time.Time) (*Ride, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: start}
	r, err := New("RIDE-1", "RIDER-1", "BIKE-1", "ST-1", WithClock(clock.Now))
	require.NoError(t, err)
	return r, clock
}

func TestNew(t *testing.T) {
	r, _ := newRide(t, wednesdayNoon)
	assert.Equal(t, Active, r.Status())
	assert.Equal(t, wednesdayNoon, r.StartedAt())
	assert.Equal(t, "ST-1", r.StartStationID())

	for _, args := range [][4]string{
		{"", "R", "B", "S"},
		{"X", " ", "B", "S"},
		{"X", "R", "", "S"},
		{"X", "R", "B", ""},
	} {
		_, err := New(args[0], args[1], args[2], args[3])
		assert.ErrorIs(t, err, ErrInvalidArgument)
	}
}

func TestComplete_BasicOffPeak(t *testing.T) {
	r, clock := newRide(t, wednesdayNoon)
	clock.Advance(65 * time.Minute)

	require.NoError(t, r.Complete("ST-2", 0, bike.Standard, customer.Basic, 0))

	s := r.Snapshot()
	assert.Equal(t, Completed, s.Status)
	assert.Equal(t, "ST-2", s.EndStationID)
	assert.Equal(t, 65, s.ActiveMinutes)
	assert.InDelta(t, 9.75, s.Fare.Base, 1e-9)
	assert.Zero(t, s.Fare.Additional)
	assert.Zero(t, s.Fare.Discount)
	assert.Equal(t, 9.75, s.Fare.Final)
}

func TestComplete_PremiumElectricPeak(t *testing.T) {
	r, clock := newRide(t, wednesdayPeak)
	clock.Advance(130 * time.Minute)

	require.NoError(t, r.Complete("ST-2", 6, bike.Electric, customer.Premium, 0.15))

	f := r.Fare()
	assert.InDelta(t, 5.625, f.Base, 1e-9)
	assert.InDelta(t, 2.0, f.Additional, 1e-9)
	assert.Equal(t, 6.48, f.Final)
	assert.True(t, f.Peak)
}

func TestComplete_Twice(t *testing.T) {
	r, clock := newRide(t, wednesdayNoon)
	clock.Advance(65 * time.Minute)
	require.NoError(t, r.Complete("ST-2", 0, bike.Standard, customer.Basic, 0))
	first := r.Snapshot()

	clock.Advance(30 * time.Minute)
	err := r.Complete("ST-3", 5, bike.Premium, customer.VIP, 0.2)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, first, r.Snapshot())
}

func TestComplete_InvalidArguments(t *testing.T) {
	for _, tc := range []struct {
		name     string
		station  string
		distance float64
		discount float64
	}{
		{"empty station", " ", 1, 0},
		{"negative distance", "ST-2", -0.1, 0},
		{"unrealistic distance", "ST-2", 100.5, 0},
		{"negative discount", "ST-2", 1, -0.1},
		{"discount above one", "ST-2", 1, 1.1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r, clock := newRide(t, wednesdayNoon)
			clock.Advance(10 * time.Minute)

			assert.ErrorIs(t, r.CheckComplete(tc.station, tc.distance, tc.discount), ErrInvalidArgument)
			err := r.Complete(tc.station, tc.distance, bike.Standard, customer.Basic, tc.discount)
			assert.ErrorIs(t, err, ErrInvalidArgument)
			assert.Equal(t, Active, r.Status())
			assert.Zero(t, r.Fare())
		})
	}

	r, _ := newRide(t, wednesdayNoon)
	assert.ErrorIs(t, r.Complete("ST-2", 1, bike.Type(7), customer.Basic, 0), ErrInvalidArgument)
	assert.ErrorIs(t, r.Complete("ST-2", 1, bike.Standard, customer.Membership(7), 0), ErrInvalidArgument)
	assert.NoError(t, r.Complete("ST-2", 100, bike.Standard, customer.Basic, 1))
}

func TestPauseResume(t *testing.T) {
	r, clock := newRide(t, wednesdayNoon)

	assert.ErrorIs(t, r.Resume(), ErrInvalidTransition)
	clock.Advance(10 * time.Minute)
	require.NoError(t, r.Pause())
	assert.ErrorIs(t, r.Pause(), ErrInvalidTransition)

	clock.Advance(20 * time.Minute)
	assert.Equal(t, 10, r.ActiveMinutes(), "paused time does not count while paused")
	require.NoError(t, r.Resume())

	clock.Advance(5 * time.Minute)
	assert.Equal(t, 15, r.ActiveMinutes())
	assert.Equal(t, 35, r.TotalMinutes())
}

func TestComplete_WhilePaused(t *testing.T) {
	r, clock := newRide(t, wednesdayNoon)
	clock.Advance(30 * time.Minute)
	require.NoError(t, r.Pause())
	clock.Advance(40 * time.Minute)

	require.NoError(t, r.Complete("ST-2", 0, bike.Standard, customer.Basic, 0))
	s := r.Snapshot()
	assert.Equal(t, 30, s.ActiveMinutes)
	assert.Equal(t, 40, s.PausedMinutes)
	assert.Equal(t, 4.5, s.Fare.Final)
}

func TestActiveMinutes_PartialMinutesAcrossPauses(t *testing.T) {
	r, clock := newRide(t, wednesdayNoon)
	clock.Advance(90 * time.Second)
	require.NoError(t, r.Pause())
	clock.Advance(30 * time.Second)
	require.NoError(t, r.Resume())
	clock.Advance(90 * time.Second)

	// 3m30s elapsed, 30s paused.
	assert.Equal(t, 3, r.ActiveMinutes())
}

func TestCancel(t *testing.T) {
	for _, tc := range []struct {
		active  time.Duration
		wantFee float64
	}{
		{4 * time.Minute, 0},
		{5 * time.Minute, 0},
		{6 * time.Minute, 1.0},
	} {
		t.Run(tc.active.String(), func(t *testing.T) {
			r, clock := newRide(t, wednesdayNoon)
			clock.Advance(tc.active)

			require.NoError(t, r.Cancel("  flat tyre "))
			s := r.Snapshot()
			assert.Equal(t, Cancelled, s.Status)
			assert.Equal(t, "flat tyre", s.Notes)
			assert.Equal(t, tc.wantFee, s.Fare.Final)
		})
	}
}

func TestCancel_PausedTimeIsNotActive(t *testing.T) {
	r, clock := newRide(t, wednesdayNoon)
	clock.Advance(4 * time.Minute)
	require.NoError(t, r.Pause())
	clock.Advance(30 * time.Minute)

	require.NoError(t, r.Cancel(""))
	assert.Zero(t, r.Fare().Final)
	assert.Equal(t, "Cancelled", r.Snapshot().Notes)
}

func TestTerminalStates(t *testing.T) {
	r, _ := newRide(t, wednesdayNoon)
	require.NoError(t, r.Cancel("no longer needed"))

	assert.ErrorIs(t, r.Cancel("again"), ErrInvalidTransition)
	assert.ErrorIs(t, r.Pause(), ErrInvalidTransition)
	assert.ErrorIs(t, r.Resume(), ErrInvalidTransition)
	assert.ErrorIs(t, r.Complete("ST-2", 1, bike.Standard, customer.Basic, 0), ErrInvalidTransition)
	assert.Equal(t, Cancelled, r.Status())

	done, clock := newRide(t, wednesdayNoon)
	clock.Advance(time.Minute)
	require.NoError(t, done.Complete("ST-2", 0, bike.Standard, customer.Basic, 0))
	assert.ErrorIs(t, done.Cancel("late"), ErrInvalidTransition)
	assert.Equal(t, Completed, done.Status())
}

func TestSummary(t *testing.T) {
	r, clock := newRide(t, wednesdayNoon)
	clock.Advance(12 * time.Minute)
	assert.Equal(t, "Ride RIDE-1: active (12 min active)", r.Summary())

	require.NoError(t, r.Complete("ST-2", 2.5, bike.Standard, customer.Basic, 0))
	assert.Equal(t, "Ride RIDE-1: 2.5 km in 12 min - 1.80", r.Summary())
}

func TestWithTariff(t *testing.T) {
	tariff := DefaultTariff()
	tariff.BaseRate = 0.20
	tariff.FreeMinutes[customer.Basic] = 10

	clock := &fakeClock{t: wednesdayNoon}
	r, err := New("RIDE-2", "RIDER-1", "BIKE-1", "ST-1", WithClock(clock.Now), WithTariff(tariff))
	require.NoError(t, err)
	clock.Advance(20 * time.Minute)

	require.NoError(t, r.Complete("ST-1", 0, bike.Standard, customer.Basic, 0))
	assert.Equal(t, 2.0, r.Fare().Final)
}
