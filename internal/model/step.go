package model

import (
	"fmt"
	"strings"
)

// StepSensors carries the external inputs collected over one control
// interval. Ephemeral: only derived results are persisted.
type StepSensors struct {
	TC         float64  `json:"T_C"`         // air temperature [degC]
	RHPct      float64  `json:"RH_pct"`      // relative humidity [%]
	RsMJm2h    float64  `json:"Rs_MJ_m2_h"`  // shortwave radiation [MJ m^-2 h^-1]
	U2MS       *float64 `json:"u2_ms"`       // wind speed at 2 m [m s^-1]
	Theta      *float64 `json:"theta"`       // measured volumetric water content [m^3/m^3]
	InflowML   float64  `json:"inflow_mL"`   // measured inflow volume [mL]
	DrainML    float64  `json:"drain_mL"`    // measured drainage volume [mL]
	DStorageML *float64 `json:"dStorage_mL"` // measured storage change [mL]
	ACOn       bool     `json:"AC_on"`       // indoor climate control active
}

// Ke model selectors.
const (
	KeModeREW = "rew"
	KeModeExp = "exp"
)

// StepConfig holds the controller tunables for one pot. Versionable,
// persisted as a JSON blob.
type StepConfig struct {
	DtH                    float64    `json:"dt_h"`
	U2DefaultMS            float64    `json:"u2_default_ms"`
	KcbBounds              [2]float64 `json:"Kcb_bounds"`
	AlphaKcb               float64    `json:"alpha_Kcb"`
	BetaCAero              float64    `json:"beta_c_aero"`
	KeMode                 string     `json:"Ke_mode"`
	KcmaxBase              float64    `json:"Kcmax_base"`
	LearnWhenKeLt          float64    `json:"learn_when_Ke_lt"`
	LearnWhenKsGt          float64    `json:"learn_when_Ks_gt"`
	ET0MinLearnMMPH        float64    `json:"ET0_min_learn_mmph"`
	PRaw                   float64    `json:"p_RAW"`
	AllowableDepletionFrac float64    `json:"allowable_depletion_frac"`
	AutoMode               bool       `json:"auto_mode"`
	MaxAutoIrrigationMM    float64    `json:"max_auto_irrigation_mm"`
}

// DefaultStepConfig returns the controller defaults.
func DefaultStepConfig() StepConfig {
	return StepConfig{
		DtH:                    1.0,
		U2DefaultMS:            0.25,
		KcbBounds:              [2]float64{0.05, 1.5},
		AlphaKcb:               0.1,
		BetaCAero:              0.1,
		KeMode:                 KeModeREW,
		KcmaxBase:              1.05,
		LearnWhenKeLt:          0.05,
		LearnWhenKsGt:          0.95,
		ET0MinLearnMMPH:        0.05,
		PRaw:                   0.5,
		AllowableDepletionFrac: 0.5,
		AutoMode:               false,
		MaxAutoIrrigationMM:    5.0,
	}
}

// Validate reports configuration errors. These signal caller bugs and are
// never recovered downstream.
func (c StepConfig) Validate() error {
	if c.DtH <= 0 {
		return fmt.Errorf("step config: dt_h must be positive, got %g", c.DtH)
	}
	if c.KcbBounds[0] > c.KcbBounds[1] {
		return fmt.Errorf("step config: Kcb bounds invalid, lower %g > upper %g", c.KcbBounds[0], c.KcbBounds[1])
	}
	return nil
}

// UsesExpKe reports whether the exponential Ke decay model is selected.
func (c StepConfig) UsesExpKe() bool {
	return strings.EqualFold(c.KeMode, KeModeExp)
}
