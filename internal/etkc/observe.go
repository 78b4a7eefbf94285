package etkc

import (
	"github.com/projectplant/etkc/internal/model"
)

// ObservedETMM reconstructs the observed evapotranspiration depth [mm] from
// a volumetric mass balance: (inflow - drain - dStorage) / (area * 1000).
// Returns nil when the storage change was not measured or the area is
// degenerate.
func ObservedETMM(inflowML, drainML float64, dStorageML *float64, areaM2 float64) *float64 {
	if areaM2 <= 0 || dStorageML == nil {
		return nil
	}
	depth := (inflowML - drainML - *dStorageML) / (areaM2 * 1000.0)
	return &depth
}

// ObservedETFromTheta approximates observed ET from the drop in measured
// volumetric water content over the step.
func ObservedETFromTheta(thetaNow, thetaPrev *float64, depthM float64) *float64 {
	if thetaNow == nil || thetaPrev == nil || depthM <= 0 {
		return nil
	}
	depth := (*thetaPrev - *thetaNow) * depthM * 1000.0
	return &depth
}

// ThetaFromDepletion back-computes the water content implied by the tracked
// root-zone depletion, clamped between wilting point and field capacity.
func ThetaFromDepletion(static model.PotStatic, drMM float64) *float64 {
	if static.DepthM <= 0 {
		return nil
	}
	theta := clamp(static.ThetaFC-(drMM/1000.0)/static.DepthM, static.ThetaWP, static.ThetaFC)
	return &theta
}
