package model

import "strings"

// PotStatic holds the physical constants of a container. Created once at pot
// registration and never mutated afterwards.
type PotStatic struct {
	PotAreaM2 float64 `json:"area_m2"`  // opening surface area [m^2]
	DepthM    float64 `json:"depth_m"`  // effective rooting depth [m]
	ThetaFC   float64 `json:"theta_fc"` // volumetric water content at field capacity [m^3/m^3]
	ThetaWP   float64 `json:"theta_wp"` // volumetric water content at wilting point [m^3/m^3]
	ClassName string  `json:"class_name"`
}

// PotState is the adaptive per-pot state. It is a value type: every update
// builds a new instance, the previous one stays valid for audit/undo.
type PotState struct {
	KcbStruct        float64  `json:"Kcb_struct"` // structural basal crop coefficient [-]
	CAero            float64  `json:"c_aero"`     // aerodynamic enhancement term [-]
	CAC              float64  `json:"c_AC"`       // indoor climate-control adjustment term [-]
	DeMM             float64  `json:"De_mm"`      // surface layer depletion [mm]
	DrMM             float64  `json:"Dr_mm"`      // root-zone depletion [mm]
	REWMM            float64  `json:"REW_mm"`     // readily evaporable water threshold [mm]
	TauEH            float64  `json:"tau_e_h"`    // evaporation e-folding time constant [h]
	KePrev           float64  `json:"Ke_prev"`    // previous soil evaporation coefficient [-]
	LastIrrigationTS *float64 `json:"last_irrigation_ts"` // hours since last irrigation, nil if unknown
}

var statePresets = map[string]PotState{
	"succulent": {KcbStruct: 0.35, CAero: 0.0, CAC: 0.0, REWMM: 2.5, TauEH: 24.0},
	"herb":      {KcbStruct: 0.8, CAero: 0.05, CAC: 0.0, REWMM: 4.5, TauEH: 10.0},
	"woody":     {KcbStruct: 0.6, CAero: 0.02, CAC: 0.0, REWMM: 5.0, TauEH: 12.0},
	"tropical":  {KcbStruct: 1.0, CAero: 0.1, CAC: 0.05, REWMM: 6.0, TauEH: 8.0},
}

// DefaultStateFor returns the preset state for a horticultural class.
// Unknown classes fall back to the woody preset.
func DefaultStateFor(className string) PotState {
	if s, ok := statePresets[strings.ToLower(className)]; ok {
		return s
	}
	return statePresets["woody"]
}

// PotStatePatch is a partial PotState update. Only non-nil fields are
// applied; the merge result replaces the stored record as a whole.
type PotStatePatch struct {
	KcbStruct        *float64 `json:"Kcb_struct,omitempty"`
	CAero            *float64 `json:"c_aero,omitempty"`
	CAC              *float64 `json:"c_AC,omitempty"`
	DeMM             *float64 `json:"De_mm,omitempty"`
	DrMM             *float64 `json:"Dr_mm,omitempty"`
	REWMM            *float64 `json:"REW_mm,omitempty"`
	TauEH            *float64 `json:"tau_e_h,omitempty"`
	KePrev           *float64 `json:"Ke_prev,omitempty"`
	LastIrrigationTS *float64 `json:"last_irrigation_ts,omitempty"`
}

// Apply merges the patch onto state and returns the merged copy.
func (p PotStatePatch) Apply(state PotState) PotState {
	out := state
	if p.KcbStruct != nil {
		out.KcbStruct = *p.KcbStruct
	}
	if p.CAero != nil {
		out.CAero = *p.CAero
	}
	if p.CAC != nil {
		out.CAC = *p.CAC
	}
	if p.DeMM != nil {
		out.DeMM = *p.DeMM
	}
	if p.DrMM != nil {
		out.DrMM = *p.DrMM
	}
	if p.REWMM != nil {
		out.REWMM = *p.REWMM
	}
	if p.TauEH != nil {
		out.TauEH = *p.TauEH
	}
	if p.KePrev != nil {
		out.KePrev = *p.KePrev
	}
	if p.LastIrrigationTS != nil {
		ts := *p.LastIrrigationTS
		out.LastIrrigationTS = &ts
	}
	return out
}
