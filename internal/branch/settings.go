package branch

import (
	"context"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Settings is the read path of the branch settings collaborator.
type Settings interface {
	Policy(ctx context.Context, branchID string) (Policy, error)
}

// StaticSettings serves a default policy with per-branch overrides.
type StaticSettings struct {
	Default  Policy
	Branches map[string]Policy
}

func NewStaticSettings(def Policy) *StaticSettings {
	return &StaticSettings{Default: def, Branches: make(map[string]Policy)}
}

// Set stores the policy for one branch.
func (s *StaticSettings) Set(p Policy) {
	s.Branches[p.BranchID] = p
}

func (s *StaticSettings) Policy(_ context.Context, branchID string) (Policy, error) {
	if p, ok := s.Branches[branchID]; ok {
		return p, nil
	}
	p := s.Default
	p.BranchID = branchID
	return p, nil
}

// SettingsFile is the parsed content of a TOML settings file.
type SettingsFile struct {
	*StaticSettings
	Holidays   *HolidaySet
	Promotions map[string]int
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// policyDoc mirrors Policy with optional fields so branch tables only override
// what they set.
type policyDoc struct {
	CancelFeeBeforePct *int      `toml:"cancel_fee_before_pct"`
	CancelFeeWithinPct *int      `toml:"cancel_fee_within_pct"`
	NoShowFeePct       *int      `toml:"no_show_fee_pct"`
	NightStartHour     *int      `toml:"night_start_hour"`
	NightEndHour       *int      `toml:"night_end_hour"`
	NightSurcharge     *int64    `toml:"night_surcharge"`
	WeekendSurcharge   *int64    `toml:"weekend_surcharge"`
	HolidaySurcharge   *int64    `toml:"holiday_surcharge"`
	LoyaltyPointRate   *int64    `toml:"loyalty_point_rate"`
	HoldTimeout        *duration `toml:"hold_timeout"`
}

func (d policyDoc) apply(p Policy) Policy {
	if d.CancelFeeBeforePct != nil {
		p.CancelFeeBeforePct = *d.CancelFeeBeforePct
	}
	if d.CancelFeeWithinPct != nil {
		p.CancelFeeWithinPct = *d.CancelFeeWithinPct
	}
	if d.NoShowFeePct != nil {
		p.NoShowFeePct = *d.NoShowFeePct
	}
	if d.NightStartHour != nil {
		p.NightStartHour = *d.NightStartHour
	}
	if d.NightEndHour != nil {
		p.NightEndHour = *d.NightEndHour
	}
	if d.NightSurcharge != nil {
		p.NightSurcharge = *d.NightSurcharge
	}
	if d.WeekendSurcharge != nil {
		p.WeekendSurcharge = *d.WeekendSurcharge
	}
	if d.HolidaySurcharge != nil {
		p.HolidaySurcharge = *d.HolidaySurcharge
	}
	if d.LoyaltyPointRate != nil {
		p.LoyaltyPointRate = *d.LoyaltyPointRate
	}
	if d.HoldTimeout != nil {
		p.HoldTimeout = d.HoldTimeout.Duration
	}
	return p
}

type settingsDoc struct {
	Holidays   []string             `toml:"holidays"`
	Defaults   policyDoc            `toml:"defaults"`
	Branches   map[string]policyDoc `toml:"branches"`
	Promotions map[string]int       `toml:"promotions"`
}

// LoadSettingsFile reads branch policies, holidays and promotions from a TOML
// file. holdTimeout replaces the built-in default before the file is applied.
func LoadSettingsFile(path string, holdTimeout time.Duration) (*SettingsFile, error) {
	var doc settingsDoc
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, fmt.Errorf("decode settings file %s: %w", path, err)
	}
	return buildSettings(doc, holdTimeout)
}

// ParseSettings is LoadSettingsFile for in-memory content.
func ParseSettings(data string, holdTimeout time.Duration) (*SettingsFile, error) {
	var doc settingsDoc
	if _, err := toml.Decode(data, &doc); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return buildSettings(doc, holdTimeout)
}

func buildSettings(doc settingsDoc, holdTimeout time.Duration) (*SettingsFile, error) {
	base := DefaultPolicy()
	if holdTimeout > 0 {
		base.HoldTimeout = holdTimeout
	}
	def := doc.Defaults.apply(base)
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("defaults: %w", err)
	}

	static := NewStaticSettings(def)
	for id, override := range doc.Branches {
		p := override.apply(def)
		p.BranchID = id
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("branch %s: %w", id, err)
		}
		static.Set(p)
	}

	holidays, err := NewHolidaySet(doc.Holidays...)
	if err != nil {
		return nil, err
	}

	promotions := make(map[string]int, len(doc.Promotions))
	for code, pct := range doc.Promotions {
		if pct < 0 || pct > 100 {
			return nil, fmt.Errorf("promotion %s: percent must be within 0..100", code)
		}
		promotions[code] = pct
	}

	return &SettingsFile{
		StaticSettings: static,
		Holidays:       holidays,
		Promotions:     promotions,
	}, nil
}
