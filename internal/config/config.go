// Package config loads the tariff and the initial fleet from a YAML or JSON
// file, with BIKESHARE_ environment overrides.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/semanticallynull/bikeshare-fleet/bike"
	"github.com/semanticallynull/bikeshare-fleet/customer"
	"github.com/semanticallynull/bikeshare-fleet/ride"
)

const EnvPrefix = "BIKESHARE_"

var ErrInvalid = errors.New("invalid config")

type Config struct {
	TimeZone string        `koanf:"time_zone"`
	Currency string        `koanf:"currency"`
	Tariff   TariffConfig  `koanf:"tariff"`
	Bike     BikeConfig    `koanf:"bike"`
	Notify   NotifyConfig  `koanf:"notify"`
	Payment  PaymentConfig `koanf:"payment"`

	Stations []StationSeed `koanf:"stations"`
	Bikes    []BikeSeed    `koanf:"bikes"`
	Riders   []RiderSeed   `koanf:"riders"`
}

type TariffConfig struct {
	BaseRate            float64        `koanf:"base_rate"`
	StandardMultiplier  float64        `koanf:"standard_multiplier"`
	ElectricMultiplier  float64        `koanf:"electric_multiplier"`
	PremiumMultiplier   float64        `koanf:"premium_multiplier"`
	PeakMultiplier      float64        `koanf:"peak_multiplier"`
	PeakWindows         []WindowConfig `koanf:"peak_windows"`
	LongRideMinutes     int            `koanf:"long_ride_minutes"`
	LongRideRate        float64        `koanf:"long_ride_rate"`
	LongDistance        float64        `koanf:"long_distance"`
	LongDistanceRate    float64        `koanf:"long_distance_rate"`
	ElectricFeeDistance float64        `koanf:"electric_fee_distance"`
	ElectricFee         float64        `koanf:"electric_fee"`
	MaxDistance         float64        `koanf:"max_distance"`
	CancelGraceMinutes  int            `koanf:"cancel_grace_minutes"`
	CancelFee           float64        `koanf:"cancel_fee"`
	FreeMinutes         map[string]int `koanf:"free_minutes"`
	MinimumRideBalance  float64        `koanf:"minimum_ride_balance"`
}

type WindowConfig struct {
	From int `koanf:"from"`
	To   int `koanf:"to"`
}

type BikeConfig struct {
	MinStartCharge    float64 `koanf:"min_start_charge"`
	DrainPerUnit      float64 `koanf:"drain_per_unit"`
	ServiceEveryRides int     `koanf:"service_every_rides"`
	ServiceDistance   float64 `koanf:"service_distance"`
	LowCharge         float64 `koanf:"low_charge"`
}

type NotifyConfig struct {
	NATSURL       string `koanf:"nats_url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

type PaymentConfig struct {
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`
}

type StationSeed struct {
	ID           string  `koanf:"id"`
	Name         string  `koanf:"name"`
	Address      string  `koanf:"address"`
	Latitude     float64 `koanf:"latitude"`
	Longitude    float64 `koanf:"longitude"`
	Capacity     int     `koanf:"capacity"`
	ChargingRate float64 `koanf:"charging_rate"`
}

type BikeSeed struct {
	ID      string `koanf:"id"`
	Type    string `koanf:"type"`
	Station string `koanf:"station"`
}

type RiderSeed struct {
	ID         string  `koanf:"id"`
	Name       string  `koanf:"name"`
	Membership string  `koanf:"membership"`
	Balance    float64 `koanf:"balance"`
	StripeID   string  `koanf:"stripe_id"`
	Pending    bool    `koanf:"pending"`
}

// Default returns the configuration used when no file is given: the standard
// tariff in UTC and an empty fleet.
func Default() Config {
	t := ride.DefaultTariff()
	p := bike.DefaultPolicy()

	free := make(map[string]int, len(t.FreeMinutes))
	for m, v := range t.FreeMinutes {
		free[m.String()] = v
	}

	return Config{
		TimeZone: "UTC",
		Currency: "eur",
		Tariff: TariffConfig{
			BaseRate:            t.BaseRate,
			StandardMultiplier:  t.Multipliers.Standard,
			ElectricMultiplier:  t.Multipliers.Electric,
			PremiumMultiplier:   t.Multipliers.Premium,
			PeakMultiplier:      t.PeakMultiplier,
			LongRideMinutes:     t.LongRideMinutes,
			LongRideRate:        t.LongRideRate,
			LongDistance:        t.LongDistance,
			LongDistanceRate:    t.LongDistanceRate,
			ElectricFeeDistance: t.ElectricFeeDistance,
			ElectricFee:         t.ElectricFee,
			MaxDistance:         t.MaxDistance,
			CancelGraceMinutes:  t.CancelGraceMinutes,
			CancelFee:           t.CancelFee,
			FreeMinutes:         free,
			MinimumRideBalance:  t.MinimumRideBalance,
		},
		Bike: BikeConfig{
			MinStartCharge:    p.MinStartCharge,
			DrainPerUnit:      p.DrainPerUnit,
			ServiceEveryRides: p.ServiceEveryRides,
			ServiceDistance:   p.ServiceDistance,
			LowCharge:         p.LowCharge,
		},
		Notify: NotifyConfig{SubjectPrefix: "bikeshare"},
		Payment: PaymentConfig{
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
	}
}

// Load reads path (optional) over the defaults and then applies environment
// overrides such as BIKESHARE_TARIFF__BASE_RATE=0.2.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		var parser koanf.Parser
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}
	// Slices are not merged over defaults, so windows are filled in afterwards.
	if len(cfg.Tariff.PeakWindows) == 0 && !k.Exists("tariff.peak_windows") {
		for _, w := range ride.DefaultTariff().PeakWindows {
			cfg.Tariff.PeakWindows = append(cfg.Tariff.PeakWindows, WindowConfig{From: w.From, To: w.To})
		}
	}

	if _, err := cfg.ToTariff(); err != nil {
		return nil, err
	}
	if err := cfg.Policy().Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return &cfg, nil
}

func (c Config) Location() (*time.Location, error) {
	if c.TimeZone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("%w: time zone %q: %w", ErrInvalid, c.TimeZone, err)
	}
	return loc, nil
}

// ToTariff builds the validated ride tariff.
func (c Config) ToTariff() (ride.Tariff, error) {
	loc, err := c.Location()
	if err != nil {
		return ride.Tariff{}, err
	}

	tc := c.Tariff
	t := ride.Tariff{
		BaseRate: tc.BaseRate,
		Multipliers: ride.Multipliers{
			Standard: tc.StandardMultiplier,
			Electric: tc.ElectricMultiplier,
			Premium:  tc.PremiumMultiplier,
		},
		PeakMultiplier:      tc.PeakMultiplier,
		LongRideMinutes:     tc.LongRideMinutes,
		LongRideRate:        tc.LongRideRate,
		LongDistance:        tc.LongDistance,
		LongDistanceRate:    tc.LongDistanceRate,
		ElectricFeeDistance: tc.ElectricFeeDistance,
		ElectricFee:         tc.ElectricFee,
		MaxDistance:         tc.MaxDistance,
		CancelGraceMinutes:  tc.CancelGraceMinutes,
		CancelFee:           tc.CancelFee,
		FreeMinutes:         make(map[customer.Membership]int, len(tc.FreeMinutes)),
		MinimumRideBalance:  tc.MinimumRideBalance,
		Location:            loc,
	}
	for _, w := range tc.PeakWindows {
		t.PeakWindows = append(t.PeakWindows, ride.Window{From: w.From, To: w.To})
	}
	for name, minutes := range tc.FreeMinutes {
		m, err := customer.ParseMembership(name)
		if err != nil {
			return ride.Tariff{}, fmt.Errorf("%w: free minutes: %w", ErrInvalid, err)
		}
		t.FreeMinutes[m] = minutes
	}

	if err := t.Validate(); err != nil {
		return ride.Tariff{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return t, nil
}

func (c Config) Policy() bike.Policy {
	return bike.Policy{
		MinStartCharge:    c.Bike.MinStartCharge,
		DrainPerUnit:      c.Bike.DrainPerUnit,
		ServiceEveryRides: c.Bike.ServiceEveryRides,
		ServiceDistance:   c.Bike.ServiceDistance,
		LowCharge:         c.Bike.LowCharge,
	}
}
