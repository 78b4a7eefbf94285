package model

import "time"

// StepResult summarizes one control step. Append-only once persisted.
type StepResult struct {
	ET0MM       float64           `json:"ET0_mm"`
	ETcModelMM  float64           `json:"ETc_model_mm"`
	ETcObsMM    *float64          `json:"ETc_obs_mm"` // nil when not derivable this step
	KcbStruct   float64           `json:"Kcb_struct"`
	KcbEff      float64           `json:"Kcb_eff"`
	CAero       float64           `json:"c_aero"`
	Ke          float64           `json:"Ke"`
	Ks          float64           `json:"Ks"`
	DeMM        float64           `json:"De_mm"`
	DrMM        float64           `json:"Dr_mm"`
	REWMM       float64           `json:"REW_mm"`
	TauEH       float64           `json:"tau_e_h"`
	NeedIrrig   bool              `json:"need_irrigation"`
	RecommendMM float64           `json:"recommend_mm"`
	Meta        map[string]string `json:"meta,omitempty"` // input provenance tags
}

// MetricRecord is one persisted step outcome, ordered by time per plant.
type MetricRecord struct {
	Timestamp time.Time  `json:"ts"`
	PlantID   string     `json:"plant_id"`
	Result    StepResult `json:"result"`
}
