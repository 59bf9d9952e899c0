package ride

import (
	"fmt"
	"math"
	"time"

	"github.com/semanticallynull/bikeshare-fleet/bike"
	"github.com/semanticallynull/bikeshare-fleet/customer"
)

// Window is a half-open [From, To) band of hours in the tariff's location.
type Window struct {
	From int `json:"from"`
	To   int `json:"to"`
}

func (w Window) contains(hour int) bool {
	return hour >= w.From && hour < w.To
}

// Multipliers are the per-type rate premiums added on top of the base rate.
type Multipliers struct {
	Standard float64 `json:"standard"`
	Electric float64 `json:"electric"`
	Premium  float64 `json:"premium"`
}

// Tariff holds every pricing constant. The zero value is not usable; start
// from DefaultTariff.
type Tariff struct {
	BaseRate       float64     `json:"baseRate"`
	Multipliers    Multipliers `json:"multipliers"`
	PeakMultiplier float64     `json:"peakMultiplier"`
	PeakWindows    []Window    `json:"peakWindows"`

	LongRideMinutes     int     `json:"longRideMinutes"`
	LongRideRate        float64 `json:"longRideRate"`
	LongDistance        float64 `json:"longDistance"`
	LongDistanceRate    float64 `json:"longDistanceRate"`
	ElectricFeeDistance float64 `json:"electricFeeDistance"`
	ElectricFee         float64 `json:"electricFee"`
	MaxDistance         float64 `json:"maxDistance"`

	CancelGraceMinutes int     `json:"cancelGraceMinutes"`
	CancelFee          float64 `json:"cancelFee"`

	// FreeMinutes is the per-ride allotment billed at zero base rate.
	FreeMinutes map[customer.Membership]int `json:"-"`
	// MinimumRideBalance is the balance a rider needs to start a ride.
	MinimumRideBalance float64 `json:"minimumRideBalance"`

	// Location is the calendar peak windows are evaluated in.
	Location *time.Location `json:"-"`
}

func DefaultTariff() Tariff {
	return Tariff{
		BaseRate: 0.15,
		Multipliers: Multipliers{
			Standard: 0.0,
			Electric: 1.5,
			Premium:  2.0,
		},
		PeakMultiplier:      1.5,
		PeakWindows:         []Window{{From: 7, To: 9}, {From: 17, To: 19}},
		LongRideMinutes:     120,
		LongRideRate:        0.25,
		LongDistance:        10,
		LongDistanceRate:    0.50,
		ElectricFeeDistance: 5,
		ElectricFee:         2.0,
		MaxDistance:         100,
		CancelGraceMinutes:  5,
		CancelFee:           1.0,
		FreeMinutes: map[customer.Membership]int{
			customer.Basic:     0,
			customer.Premium:   120,
			customer.Student:   45,
			customer.Corporate: 90,
			customer.VIP:       120,
		},
		MinimumRideBalance: 5.0,
		Location:           time.UTC,
	}
}

func (t Tariff) Validate() error {
	for name, v := range map[string]float64{
		"base rate":             t.BaseRate,
		"standard multiplier":   t.Multipliers.Standard,
		"electric multiplier":   t.Multipliers.Electric,
		"premium multiplier":    t.Multipliers.Premium,
		"long ride rate":        t.LongRideRate,
		"long distance":         t.LongDistance,
		"long distance rate":    t.LongDistanceRate,
		"electric fee distance": t.ElectricFeeDistance,
		"electric fee":          t.ElectricFee,
		"cancel fee":            t.CancelFee,
		"minimum ride balance":  t.MinimumRideBalance,
	} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("%w: %s cannot be negative", ErrInvalidArgument, name)
		}
	}
	if t.PeakMultiplier < 1 {
		return fmt.Errorf("%w: peak multiplier must be at least 1", ErrInvalidArgument)
	}
	if t.MaxDistance <= 0 {
		return fmt.Errorf("%w: max distance must be positive", ErrInvalidArgument)
	}
	if t.LongRideMinutes < 0 || t.CancelGraceMinutes < 0 {
		return fmt.Errorf("%w: minute thresholds cannot be negative", ErrInvalidArgument)
	}
	for _, w := range t.PeakWindows {
		if w.From < 0 || w.To > 24 || w.From >= w.To {
			return fmt.Errorf("%w: bad peak window %d-%d", ErrInvalidArgument, w.From, w.To)
		}
	}
	for m, n := range t.FreeMinutes {
		if !m.Valid() || n < 0 {
			return fmt.Errorf("%w: bad free minutes %d for %s", ErrInvalidArgument, n, m)
		}
	}
	if t.Location == nil {
		return fmt.Errorf("%w: tariff location is required", ErrInvalidArgument)
	}
	return nil
}

// Multiplier returns the rate premium for a bike type.
func (t Tariff) Multiplier(bt bike.Type) float64 {
	switch bt {
	case bike.Standard:
		return t.Multipliers.Standard
	case bike.Electric:
		return t.Multipliers.Electric
	case bike.Premium:
		return t.Multipliers.Premium
	}
	return 0
}

func (t Tariff) FreeMinutesFor(m customer.Membership) int {
	return t.FreeMinutes[m]
}

// IsPeak reports whether start falls on a weekday inside a peak window, using
// the tariff's calendar.
func (t Tariff) IsPeak(start time.Time) bool {
	loc := t.Location
	if loc == nil {
		loc = time.UTC
	}
	local := start.In(loc)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	case time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday:
	}
	for _, w := range t.PeakWindows {
		if w.contains(local.Hour()) {
			return true
		}
	}
	return false
}

// FareInput is everything the fare depends on.
type FareInput struct {
	Start         time.Time
	ActiveMinutes int
	Distance      float64
	BikeType      bike.Type
	Membership    customer.Membership
	Discount      float64
}

type Fare struct {
	Base            float64 `json:"base"`
	Additional      float64 `json:"additional"`
	Discount        float64 `json:"discount"`
	Final           float64 `json:"final"`
	FreeMinutesUsed bool    `json:"freeMinutesUsed"`
	Peak            bool    `json:"peak"`
}

// Fare prices a completed ride. The long-ride surcharge applies to billable
// minutes beyond LongRideMinutes. Only the final amount is rounded.
func (t Tariff) Fare(in FareInput) Fare {
	f := Fare{Discount: in.Discount}
	free := t.FreeMinutesFor(in.Membership)
	billable := max(0, in.ActiveMinutes-free)

	if billable == 0 {
		f.FreeMinutesUsed = true
	} else {
		f.FreeMinutesUsed = free > 0
		rate := t.BaseRate * (1 + t.Multiplier(in.BikeType))
		if t.IsPeak(in.Start) {
			f.Peak = true
			rate *= t.PeakMultiplier
		}
		f.Base = float64(billable) * rate
	}

	if billable > t.LongRideMinutes {
		f.Additional += float64(billable-t.LongRideMinutes) * t.LongRideRate
	}
	if in.Distance > t.LongDistance {
		f.Additional += (in.Distance - t.LongDistance) * t.LongDistanceRate
	}
	if in.BikeType == bike.Electric && in.Distance > t.ElectricFeeDistance {
		f.Additional += t.ElectricFee
	}

	f.Final = roundCents(max(0, (f.Base+f.Additional)*(1-in.Discount)))
	return f
}

// CancellationFee is charged when a ride is cancelled after the grace period.
func (t Tariff) CancellationFee(activeMinutes int) float64 {
	if activeMinutes > t.CancelGraceMinutes {
		return t.CancelFee
	}
	return 0
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
