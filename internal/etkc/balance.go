package etkc

import (
	"math"

	"github.com/projectplant/etkc/internal/model"
)

// WaterBalance does the two-layer depletion bookkeeping of one pot. It never
// reads sensor fields directly: the caller converts measured volumes first.
type WaterBalance struct {
	TAW float64 // total available water in the root zone [mm]
	TEW float64 // total evaporable water in the surface layer [mm]
}

// NewWaterBalance derives the layer capacities from the pot constants.
func NewWaterBalance(static model.PotStatic) WaterBalance {
	return WaterBalance{
		TAW: TAWmm(static.ThetaFC, static.ThetaWP, static.DepthM),
		TEW: TEWmm(static.ThetaFC, static.ThetaWP),
	}
}

// MLToMM converts a volume [mL] over areaM2 to a depth [mm].
func MLToMM(volumeML, areaM2 float64) float64 {
	if areaM2 <= 0 || volumeML <= 0 {
		return 0
	}
	return volumeML / (areaM2 * 1000.0)
}

// MMToML converts a depth [mm] over areaM2 to a volume [mL].
func MMToML(depthMM, areaM2 float64) float64 {
	if areaM2 <= 0 || depthMM <= 0 {
		return 0
	}
	return depthMM * areaM2 * 1000.0
}

// NetInflowMM returns inflow minus drainage as a depth [mm].
func NetInflowMM(inflowML, drainML, areaM2 float64) float64 {
	return MLToMM(inflowML, areaM2) - MLToMM(drainML, areaM2)
}

// RechargeSurface applies the positive part of the net inflow to the surface
// depletion, floored at zero.
func (b WaterBalance) RechargeSurface(deMM, netInflowMM float64) float64 {
	recharge := math.Max(netInflowMM, 0)
	return math.Max(deMM-recharge, 0)
}

// ModeledETMM returns the crop ET depth for the step, floored at zero.
func ModeledETMM(et0MM, kcbEff, ks, ke float64) float64 {
	return math.Max(et0MM*((kcbEff*ks)+ke), 0)
}

// AdvanceRootZone updates the root-zone depletion with the step's modeled ET
// and net inflow, clamped to [0, TAW].
func (b WaterBalance) AdvanceRootZone(drMM, etcModelMM, netInflowMM float64) float64 {
	return clamp(drMM+etcModelMM-netInflowMM, 0, b.TAW)
}

// IrrigationNeed evaluates the allowable-depletion rule: irrigation is due
// once the depletion reaches allowFrac*TAW, and the recommended depth is the
// excess above that threshold.
func (b WaterBalance) IrrigationNeed(drMM, allowFrac float64) (bool, float64) {
	threshold := allowFrac * b.TAW
	need := drMM >= threshold
	return need, math.Max(drMM-threshold, 0)
}
