package recorder

import (
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/projectplant/etkc/internal/model"
)

// Measurement name for step outcomes.
const measurement = "et_step"

// ResultPoint maps one step result to an InfluxDB point. The plant id and
// the resolved environment source become tags; the numeric outcome fields
// become point fields.
func ResultPoint(plantID string, ts time.Time, res model.StepResult) *write.Point {
	tags := map[string]string{"plant_id": plantID}
	if src := res.Meta["env_source"]; src != "" {
		tags["env_source"] = src
	}
	fields := map[string]any{
		"ET0_mm":       res.ET0MM,
		"ETc_model_mm": res.ETcModelMM,
		"Kcb_struct":   res.KcbStruct,
		"Kcb_eff":      res.KcbEff,
		"c_aero":       res.CAero,
		"Ke":           res.Ke,
		"Ks":           res.Ks,
		"De_mm":        res.DeMM,
		"Dr_mm":        res.DrMM,
		"tau_e_h":      res.TauEH,
		"recommend_mm": res.RecommendMM,
		"need_irrigation": func() int {
			if res.NeedIrrig {
				return 1
			}
			return 0
		}(),
	}
	if res.ETcObsMM != nil {
		fields["ETc_obs_mm"] = *res.ETcObsMM
	}
	return influxdb2.NewPoint(measurement, tags, fields, ts)
}
