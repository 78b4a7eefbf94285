package etkc

import (
	"math"

	"github.com/projectplant/etkc/internal/model"
)

const minFraction = 1.0e-6

// Surface evaporation layer thickness used to derive the total evaporable
// water of a container (FAO-56 Ze for fine substrates).
const evapLayerDepthM = 0.10

// Ke stages reported by the REW-depletion model.
const (
	StageREW       = "rew"
	StageDepletion = "depletion"
	StageDry       = "dry"
)

// EvapCoefficients bundles the soil evaporation outcome of one step.
type EvapCoefficients struct {
	Ke    float64 // soil evaporation coefficient [-]
	Kr    float64 // evaporation reduction factor [-]
	Stage string
}

// Kcmax returns the maximum crop coefficient from the FAO-56 empirical
// climate adjustment around base. rhMinPct < 0 means "not measured" and
// falls back to 60%.
func Kcmax(u2MS, rhMinPct, base float64) float64 {
	u2 := math.Max(u2MS, 0)
	rhMin := 60.0
	if rhMinPct >= 0 {
		rhMin = math.Min(rhMinPct, 100)
	}
	adjustment := math.Max(0.04*(u2-0.3)-0.004*(rhMin-45.0), 0)
	return math.Max(math.Max(base, base+adjustment), 0)
}

// EffectiveKcb composes the learned structural coefficient with the
// aerodynamic and climate-control terms, clamped to [0, kcMax].
func EffectiveKcb(kcbStruct, cAero, acTerm, kcMax float64) float64 {
	eff := kcbStruct * (1.0 + cAero + acTerm)
	return clamp(eff, 0, kcMax)
}

// KeCap returns the evaporation headroom left above the basal coefficient.
func KeCap(kcMax, kcbEff float64) float64 {
	return math.Max(kcMax-kcbEff, 0)
}

// TAWmm returns total available water in the root zone [mm].
func TAWmm(thetaFC, thetaWP, depthM float64) float64 {
	if depthM <= 0 {
		return 0
	}
	return math.Max(thetaFC-thetaWP, 0) * depthM * 1000.0
}

// TEWmm returns total evaporable water of the surface layer [mm].
func TEWmm(thetaFC, thetaWP float64) float64 {
	return math.Max(thetaFC-0.5*thetaWP, 0) * evapLayerDepthM * 1000.0
}

// KeREW evaluates the REW-depletion evaporation model and advances the
// surface depletion by the evaporated depth. Kr is 1 while the depletion
// stays within the readily evaporable water, then decays linearly to 0 as
// the depletion approaches the total evaporable water.
func KeREW(et0MM, kcbEff, deMM, rewMM, tewMM, few, kcMax float64) (EvapCoefficients, float64) {
	if few <= minFraction || kcMax <= kcbEff {
		return EvapCoefficients{Ke: 0, Kr: 0, Stage: StageDry}, math.Max(deMM, 0)
	}

	tew := math.Max(tewMM, 0)
	rew := math.Min(math.Max(rewMM, 0), tew)
	depletion := clamp(deMM, 0, tew)

	var kr float64
	stage := StageREW
	if depletion <= rew {
		kr = 1.0
	} else {
		kr = clamp((tew-depletion)/math.Max(tew-rew, minFraction), 0, 1)
		stage = StageDepletion
	}

	cap := KeCap(kcMax, kcbEff)
	ke := clamp(math.Min(kr*cap, few*kcMax), 0, cap)

	evaporated := math.Max(et0MM, 0) * ke
	dePost := clamp(depletion+evaporated, 0, tew)
	return EvapCoefficients{Ke: ke, Kr: kr, Stage: stage}, dePost
}

// KeExp returns the exponential time-decay evaporation coefficient: the cap
// decays with an e-folding constant tauEH over the hours since last wetting.
// A non-positive tau degenerates to the cap itself.
func KeExp(tSinceWetH, kcbEff, tauEH, kcMax float64) float64 {
	cap := KeCap(kcMax, kcbEff)
	if tauEH <= 0 {
		return cap
	}
	decay := math.Exp(-math.Max(tSinceWetH, 0) / math.Max(tauEH, minFraction))
	return clamp(cap*decay, 0, cap)
}

// KsFromTheta returns the water stress coefficient from a direct soil
// moisture measurement: 0 at wilting point, 1 at field capacity.
func KsFromTheta(theta, thetaFC, thetaWP float64) float64 {
	if theta <= thetaWP {
		return 0
	}
	if theta >= thetaFC {
		return 1
	}
	return (theta - thetaWP) / math.Max(thetaFC-thetaWP, minFraction)
}

// KsFromDepletion returns the stress coefficient from root-zone depletion:
// 1 while Dr is within the readily available water, then linear to 0 at TAW.
func KsFromDepletion(drMM, tawMM, pRAW float64) float64 {
	taw := math.Max(tawMM, minFraction)
	raw := clamp(pRAW*taw, 0, taw)
	depletion := math.Max(drMM, 0)
	if depletion <= raw {
		return 1
	}
	ks := (taw - depletion) / math.Max(taw-raw, minFraction)
	return clamp(ks, 0, 1)
}

// ChooseKs prefers the measured theta when present, else depletion tracking.
func ChooseKs(theta *float64, drMM, tawMM, pRAW float64, static model.PotStatic) float64 {
	if theta != nil {
		return KsFromTheta(*theta, static.ThetaFC, static.ThetaWP)
	}
	return KsFromDepletion(drMM, tawMM, pRAW)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
