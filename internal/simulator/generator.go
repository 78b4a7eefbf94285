// Package simulator produces synthetic plant telemetry: a diurnal weather
// cycle plus a pot moisture state that responds to irrigation commands. It
// feeds the live pipeline end to end without hardware.
package simulator

import (
	"math"
	"sync"
	"time"

	"github.com/projectplant/etkc/internal/etkc"
	"github.com/projectplant/etkc/internal/model"
)

// Telemetry is the payload shape published on plant/{id}/telemetry.
type Telemetry struct {
	TC          float64 `json:"T_C"`
	RHPct       float64 `json:"RH_pct"`
	RsMJm2h     float64 `json:"Rs_MJ_m2_h"`
	U2MS        float64 `json:"u2_ms"`
	Theta       float64 `json:"theta"`
	InflowML    float64 `json:"inflow_mL"`
	DrainML     float64 `json:"drain_mL"`
	Source      string  `json:"source"`
	TimestampMs int64   `json:"timestampMs"`
}

const (
	// Moisture draw-down toward wilting point while nothing is applied.
	thetaDecayPerHour = 0.004
	simSource         = "simulated sensor"
)

// Generator keeps the evolving pot state between ticks.
type Generator struct {
	mu            sync.Mutex
	static        model.PotStatic
	theta         float64
	last          time.Time
	pendingDoseML float64
}

func NewGenerator(static model.PotStatic, theta0 float64) *Generator {
	if theta0 <= 0 {
		theta0 = (static.ThetaFC + static.ThetaWP) / 2
	}
	return &Generator{static: static, theta: theta0}
}

// ApplyIrrigation queues a dose to appear as inflow on the next tick.
func (g *Generator) ApplyIrrigation(doseML float64) {
	if doseML <= 0 {
		return
	}
	g.mu.Lock()
	g.pendingDoseML += doseML
	g.mu.Unlock()
}

// Theta returns the current volumetric water content.
func (g *Generator) Theta() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.theta
}

// Next advances the pot state to now and returns one telemetry sample.
func (g *Generator) Next(now time.Time) Telemetry {
	g.mu.Lock()
	defer g.mu.Unlock()

	dtH := 0.0
	if !g.last.IsZero() {
		dtH = math.Max(now.Sub(g.last).Hours(), 0)
	}
	g.last = now

	inflowML := g.pendingDoseML
	g.pendingDoseML = 0

	// Inflow wets the root zone; everything above field capacity drains.
	doseMM := etkc.MLToMM(inflowML, g.static.PotAreaM2)
	g.theta += doseMM / (g.static.DepthM * 1000.0)
	drainML := 0.0
	if g.theta > g.static.ThetaFC {
		excessMM := (g.theta - g.static.ThetaFC) * g.static.DepthM * 1000.0
		drainML = etkc.MMToML(excessMM, g.static.PotAreaM2)
		g.theta = g.static.ThetaFC
	}
	g.theta = math.Max(g.theta-thetaDecayPerHour*dtH, g.static.ThetaWP)

	hour := float64(now.Hour()) + float64(now.Minute())/60.0
	return Telemetry{
		TC:          22.0 + 6.0*math.Sin((hour-9.0)*math.Pi/12.0),
		RHPct:       55.0 - 15.0*math.Sin((hour-9.0)*math.Pi/12.0),
		RsMJm2h:     math.Max(0, 2.2*math.Sin((hour-6.0)*math.Pi/12.0)),
		U2MS:        0.3,
		Theta:       g.theta,
		InflowML:    inflowML,
		DrainML:     drainML,
		Source:      simSource,
		TimestampMs: now.UnixMilli(),
	}
}
