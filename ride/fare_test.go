package ride

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semanticallynull/bikeshare-fleet/bike"
	"github.com/semanticallynull/bikeshare-fleet/customer"
)

var (
	wednesdayNoon = time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)
	wednesdayPeak = time.Date(2025, 3, 5, 8, 0, 0, 0, time.UTC)
	saturdayPeak  = time.Date(2025, 3, 8, 8, 0, 0, 0, time.UTC)
)

func TestFare(t *testing.T) {
	tariff := DefaultTariff()

	for _, tc := range []struct {
		name           string
		in             FareInput
		wantBase       float64
		wantAdditional float64
		wantFinal      float64
		wantFree       bool
		wantPeak       bool
	}{
		{
			name:      "basic standard off-peak",
			in:        FareInput{Start: wednesdayNoon, ActiveMinutes: 65, BikeType: bike.Standard, Membership: customer.Basic},
			wantBase:  9.75,
			wantFinal: 9.75,
		},
		{
			name: "premium electric peak with discount",
			in: FareInput{
				Start: wednesdayPeak, ActiveMinutes: 130, Distance: 6,
				BikeType: bike.Electric, Membership: customer.Premium, Discount: 0.15,
			},
			wantBase:       5.625,
			wantAdditional: 2.0,
			wantFinal:      6.48,
			wantFree:       true,
			wantPeak:       true,
		},
		{
			name:     "exactly free minutes costs nothing",
			in:       FareInput{Start: wednesdayPeak, ActiveMinutes: 45, BikeType: bike.Premium, Membership: customer.Student},
			wantFree: true,
		},
		{
			name:      "one minute over free allotment",
			in:        FareInput{Start: wednesdayNoon, ActiveMinutes: 46, BikeType: bike.Premium, Membership: customer.Student},
			wantBase:  0.45,
			wantFinal: 0.45,
			wantFree:  true,
		},
		{
			name:      "weekend has no peak",
			in:        FareInput{Start: saturdayPeak, ActiveMinutes: 10, BikeType: bike.Standard, Membership: customer.Basic},
			wantBase:  1.5,
			wantFinal: 1.5,
		},
		{
			name:           "long ride surcharge",
			in:             FareInput{Start: wednesdayNoon, ActiveMinutes: 130, BikeType: bike.Standard, Membership: customer.Basic},
			wantBase:       19.5,
			wantAdditional: 2.5,
			wantFinal:      22.0,
		},
		{
			// Billable minutes, not ride length, decide the long-ride surcharge.
			name:      "premium 150 minutes has no long-ride surcharge",
			in:        FareInput{Start: wednesdayNoon, ActiveMinutes: 150, BikeType: bike.Standard, Membership: customer.Premium},
			wantBase:  4.5,
			wantFinal: 4.5,
			wantFree:  true,
		},
		{
			name:           "basic 150 minutes",
			in:             FareInput{Start: wednesdayNoon, ActiveMinutes: 150, BikeType: bike.Standard, Membership: customer.Basic},
			wantBase:       22.5,
			wantAdditional: 7.5,
			wantFinal:      30.0,
		},
		{
			name:      "corporate allotment",
			in:        FareInput{Start: wednesdayNoon, ActiveMinutes: 100, BikeType: bike.Standard, Membership: customer.Corporate},
			wantBase:  1.5,
			wantFinal: 1.5,
			wantFree:  true,
		},
		{
			name:           "distance surcharge",
			in:             FareInput{Start: wednesdayNoon, ActiveMinutes: 0, Distance: 14, BikeType: bike.Standard, Membership: customer.Basic},
			wantAdditional: 2.0,
			wantFinal:      2.0,
			wantFree:       true,
		},
		{
			name:           "electric fee needs more than five units",
			in:             FareInput{Start: wednesdayNoon, ActiveMinutes: 0, Distance: 5, BikeType: bike.Electric, Membership: customer.Basic},
			wantAdditional: 0,
			wantFree:       true,
		},
		{
			name:      "full discount",
			in:        FareInput{Start: wednesdayNoon, ActiveMinutes: 20, BikeType: bike.Standard, Membership: customer.Basic, Discount: 1},
			wantBase:  3.0,
			wantFinal: 0,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := tariff.Fare(tc.in)
			assert.InDelta(t, tc.wantBase, got.Base, 1e-9)
			assert.InDelta(t, tc.wantAdditional, got.Additional, 1e-9)
			assert.Equal(t, tc.wantFinal, got.Final)
			assert.Equal(t, tc.wantFree, got.FreeMinutesUsed)
			assert.Equal(t, tc.wantPeak, got.Peak)
			assert.GreaterOrEqual(t, got.Final, 0.0)
		})
	}
}

func TestIsPeak(t *testing.T) {
	tariff := DefaultTariff()

	for _, tc := range []struct {
		at   time.Time
		want bool
	}{
		{time.Date(2025, 3, 3, 6, 59, 0, 0, time.UTC), false},
		{time.Date(2025, 3, 3, 7, 0, 0, 0, time.UTC), true},
		{time.Date(2025, 3, 3, 8, 59, 0, 0, time.UTC), true},
		{time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC), false},
		{time.Date(2025, 3, 7, 17, 30, 0, 0, time.UTC), true},
		{time.Date(2025, 3, 7, 19, 0, 0, 0, time.UTC), false},
		{time.Date(2025, 3, 9, 17, 30, 0, 0, time.UTC), false},
	} {
		t.Run(tc.at.Format(time.RFC3339), func(t *testing.T) {
			assert.Equal(t, tc.want, tariff.IsPeak(tc.at))
		})
	}
}

func TestIsPeak_UsesTariffLocation(t *testing.T) {
	tariff := DefaultTariff()
	tariff.Location = time.FixedZone("UTC+2", 2*60*60)

	// 06:30 UTC is 08:30 two hours east.
	start := time.Date(2025, 3, 5, 6, 30, 0, 0, time.UTC)
	assert.True(t, tariff.IsPeak(start))
	assert.False(t, DefaultTariff().IsPeak(start))
}

func TestCancellationFee(t *testing.T) {
	tariff := DefaultTariff()
	assert.Zero(t, tariff.CancellationFee(4))
	assert.Zero(t, tariff.CancellationFee(5))
	assert.Equal(t, 1.0, tariff.CancellationFee(6))
}

func TestTariffValidate(t *testing.T) {
	require.NoError(t, DefaultTariff().Validate())

	for _, tc := range []struct {
		name   string
		mutate func(*Tariff)
	}{
		{"negative base rate", func(t *Tariff) { t.BaseRate = -0.1 }},
		{"peak below one", func(t *Tariff) { t.PeakMultiplier = 0.5 }},
		{"zero max distance", func(t *Tariff) { t.MaxDistance = 0 }},
		{"inverted window", func(t *Tariff) { t.PeakWindows = []Window{{From: 9, To: 7}} }},
		{"negative free minutes", func(t *Tariff) { t.FreeMinutes[customer.VIP] = -1 }},
		{"no location", func(t *Tariff) { t.Location = nil }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tariff := DefaultTariff()
			tc.mutate(&tariff)
			assert.ErrorIs(t, tariff.Validate(), ErrInvalidArgument)
		})
	}
}

func TestMultiplier(t *testing.T) {
	tariff := DefaultTariff()
	assert.Equal(t, 0.0, tariff.Multiplier(bike.Standard))
	assert.Equal(t, 1.5, tariff.Multiplier(bike.Electric))
	assert.Equal(t, 2.0, tariff.Multiplier(bike.Premium))
}
