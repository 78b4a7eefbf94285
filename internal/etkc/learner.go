package etkc

import (
	"math"
)

// Default bounds for the learned coefficients.
var (
	cAeroBounds = [2]float64{-0.5, 0.8}
	tauEBounds  = [2]float64{3.0, 72.0}
)

// The learner corrects three coefficients by bounded exponential smoothing:
// new = (1-rate)*old + rate*target, clamped. Invalid targets, zero rates or
// degenerate ratios always degrade to the clamped previous value; updating
// never errors so the control loop cannot be destabilized by bad data.

// UpdateKcbStruct blends the structural basal coefficient toward kcbHat.
func UpdateKcbStruct(kcbStruct, kcbHat, alpha float64, bounds [2]float64) float64 {
	if !isFinite(kcbHat) || alpha <= 0 {
		return clamp(kcbStruct, bounds[0], bounds[1])
	}
	target := clamp(kcbHat, bounds[0], bounds[1])
	return clamp((1.0-alpha)*kcbStruct+alpha*target, bounds[0], bounds[1])
}

// UpdateCAero moves the aerodynamic term toward the residual between the
// observed effective coefficient and the (newly learned) structural one.
func UpdateCAero(cAero, kcbEffHat, kcbStruct, beta float64) float64 {
	if beta <= 0 || !isFinite(kcbEffHat) {
		return clamp(cAero, cAeroBounds[0], cAeroBounds[1])
	}
	desired := kcbEffHat - kcbStruct
	return clamp(cAero+beta*(desired-cAero), cAeroBounds[0], cAeroBounds[1])
}

// UpdateTauE re-estimates the evaporation time constant by an inverse
// exponential-decay fit between consecutive Ke values. The fit only holds
// for a strictly decaying positive pair; a ratio of 1 or a non-positive
// coefficient keeps the prior value (stability guard, not a defect). The
// returned second value is the Ke to remember for the next step.
func UpdateTauE(tauEH, keObs, kePrev, dtH, beta float64) (float64, float64) {
	tau := clamp(tauEH, tauEBounds[0], tauEBounds[1])
	keNext := math.Max(keObs, 0)

	if beta <= 0 || dtH <= 0 {
		return tau, keNext
	}
	if keObs <= 0 || kePrev <= 0 || keObs >= kePrev {
		return tau, keNext
	}

	ratio := keObs / kePrev
	logRatio := math.Log(ratio)
	if logRatio == 0 {
		return tau, keNext
	}
	tauHat := -dtH / logRatio
	if !isFinite(tauHat) || tauHat <= 0 {
		return tau, keNext
	}

	updated := clamp((1.0-beta)*tau+beta*tauHat, tauEBounds[0], tauEBounds[1])
	return updated, keNext
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
