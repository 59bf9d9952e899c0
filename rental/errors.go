package rental

import (
	"errors"
	"fmt"

	"github.com/semanticallynull/bikeshare-fleet/bike"
	"github.com/semanticallynull/bikeshare-fleet/customer"
	"github.com/semanticallynull/bikeshare-fleet/station"
)

var (
	ErrBikeNotFound        = errors.New("bike not found")
	ErrStationNotFound     = errors.New("station not found")
	ErrRideNotFound        = errors.New("ride not found")
	ErrRiderNotFound       = errors.New("rider not found")
	ErrRiderNotEligible    = errors.New("rider not eligible to ride")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBikeNotAvailable    = errors.New("bike not available")
	ErrActiveRideExists    = errors.New("rider already has an active ride")
	ErrDuplicate           = errors.New("already registered")
)

// Steps of a rental workflow, reported in StepError.
const (
	StepLookup  = "lookup"
	StepRider   = "rider"
	StepDepart  = "depart"
	StepArrive  = "arrive"
	StepCancel  = "cancel"
	StepReserve = "reserve"
	StepService = "service"
)

// StepError records which step of a rental operation failed. Nothing is
// mutated by a failed step, and earlier steps are undone before it is
// returned.
type StepError struct {
	Op   string
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed at %s: %v", e.Op, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// FailedStep reports the step at which err was produced, if any.
func FailedStep(err error) (string, bool) {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step, true
	}
	return "", false
}

func stepErr(op, step string, err error) error {
	return &StepError{Op: op, Step: step, Err: err}
}

// riderErr maps account failures to the rental taxonomy while keeping the
// original cause matchable.
func riderErr(err error) error {
	switch {
	case errors.Is(err, customer.ErrNotEligible):
		return fmt.Errorf("%w: %w", ErrRiderNotEligible, err)
	case errors.Is(err, customer.ErrActiveRide):
		return fmt.Errorf("%w: %w", ErrActiveRideExists, err)
	case errors.Is(err, customer.ErrInsufficientBalance):
		return fmt.Errorf("%w: %w", ErrInsufficientBalance, err)
	}
	return err
}

// departErr maps failures from taking a bike off a dock.
func departErr(err error) error {
	switch {
	case errors.Is(err, station.ErrNotDocked),
		errors.Is(err, station.ErrReserved),
		errors.Is(err, station.ErrNotReserved),
		errors.Is(err, station.ErrInvalidState),
		errors.Is(err, bike.ErrInvalidTransition),
		errors.Is(err, bike.ErrBatteryTooLow):
		return fmt.Errorf("%w: %w", ErrBikeNotAvailable, err)
	}
	return err
}
