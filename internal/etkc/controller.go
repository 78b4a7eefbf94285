package etkc

import (
	"math"

	"github.com/projectplant/etkc/internal/model"
)

const epsilon = 1.0e-6

// Soil surface of a container is treated as fully wetted and exposed.
const containerFew = 1.0

// Step executes one ET control step as a pure transition: immutable
// snapshots in, a fresh state snapshot and a result out. It fails only on a
// broken configuration; every irregular sensor input is absorbed by
// clamping.
func Step(static model.PotStatic, state model.PotState, sensors model.StepSensors, cfg model.StepConfig) (model.PotState, model.StepResult, error) {
	if err := cfg.Validate(); err != nil {
		return model.PotState{}, model.StepResult{}, err
	}

	area := static.PotAreaM2
	u2 := cfg.U2DefaultMS
	if sensors.U2MS != nil {
		u2 = *sensors.U2MS
	}

	et0Rate, err := FAO56PMHourly(sensors.TC, sensors.RHPct, sensors.RsMJm2h, u2, DefaultPressKPa, DefaultAlbedo)
	if err != nil {
		return model.PotState{}, model.StepResult{}, err
	}
	et0MM := math.Max(et0Rate*cfg.DtH, 0)

	balance := NewWaterBalance(static)
	ks := clamp(ChooseKs(sensors.Theta, state.DrMM, balance.TAW, cfg.PRaw, static), 0, 1)

	acTerm := 0.0
	if sensors.ACOn {
		acTerm = state.CAC
	}
	kcMax := Kcmax(u2, sensors.RHPct, cfg.KcmaxBase)
	kcbEffModel := EffectiveKcb(state.KcbStruct, state.CAero, acTerm, kcMax)

	netInflowMM := NetInflowMM(sensors.InflowML, sensors.DrainML, area)
	dePre := balance.RechargeSurface(state.DeMM, netInflowMM)

	var (
		ke     float64
		dePost = dePre
		tauEH  = state.TauEH
		kePrev = state.KePrev
	)

	if cfg.UsesExpKe() {
		cap := KeCap(kcMax, kcbEffModel)
		if sensors.InflowML > 0 {
			// Any measured wetting resets evaporation to its cap.
			ke = cap
		} else {
			ke = KeExp(cfg.DtH, kcbEffModel, state.TauEH, kcMax)
		}
		ke = clamp(ke, 0, cap)
		tauEH, kePrev = UpdateTauE(state.TauEH, ke, state.KePrev, cfg.DtH, cfg.BetaCAero)
	} else {
		var evap EvapCoefficients
		evap, dePost = KeREW(et0MM, kcbEffModel, dePre, state.REWMM, balance.TEW, containerFew, kcMax)
		ke = evap.Ke
		kePrev = ke
	}

	etcModelMM := ModeledETMM(et0MM, kcbEffModel, ks, ke)

	// Observed ET: prefer the volumetric mass balance, fall back to the
	// change in measured water content.
	etObs := ObservedETMM(sensors.InflowML, sensors.DrainML, sensors.DStorageML, area)
	obsSource := "balance"
	if etObs == nil {
		thetaPrev := ThetaFromDepletion(static, state.DrMM)
		etObs = ObservedETFromTheta(sensors.Theta, thetaPrev, static.DepthM)
		obsSource = "theta"
	}
	var etcObsMM *float64
	if etObs != nil {
		v := math.Max(*etObs, 0)
		etcObsMM = &v
	}

	canLearn := etcObsMM != nil &&
		ke < cfg.LearnWhenKeLt &&
		ks > cfg.LearnWhenKsGt &&
		et0Rate > cfg.ET0MinLearnMMPH &&
		et0MM > 0

	newKcbStruct := state.KcbStruct
	newCAero := state.CAero

	if canLearn {
		kcObs := *etcObsMM / math.Max(et0MM, epsilon)
		kcbEffTimesKs := math.Max(kcObs-ke, 0)
		kcbEffHat := kcbEffModel
		if ks > epsilon {
			kcbEffHat = kcbEffTimesKs / ks
		}
		kcbStructHat := state.KcbStruct
		if denom := 1.0 + state.CAero + acTerm; denom > epsilon {
			kcbStructHat = kcbEffHat / denom
		}

		newKcbStruct = UpdateKcbStruct(state.KcbStruct, kcbStructHat, cfg.AlphaKcb, cfg.KcbBounds)
		newCAero = UpdateCAero(state.CAero, kcbEffHat, newKcbStruct, cfg.BetaCAero)

		if cfg.UsesExpKe() {
			keObs := math.Max(kcObs-kcbEffTimesKs, 0)
			tauEH, kePrev = UpdateTauE(tauEH, keObs, kePrev, cfg.DtH, cfg.BetaCAero)
		}
	}

	drNext := balance.AdvanceRootZone(state.DrMM, etcModelMM, netInflowMM)
	needIrrigation, recommendMM := balance.IrrigationNeed(drNext, cfg.AllowableDepletionFrac)

	var lastIrrigation *float64
	if sensors.InflowML > 0 {
		zero := 0.0
		lastIrrigation = &zero
	} else if state.LastIrrigationTS != nil {
		advanced := *state.LastIrrigationTS + cfg.DtH
		lastIrrigation = &advanced
	}

	newState := state
	newState.KcbStruct = newKcbStruct
	newState.CAero = newCAero
	newState.DeMM = dePost
	newState.DrMM = drNext
	newState.TauEH = tauEH
	newState.KePrev = kePrev
	newState.LastIrrigationTS = lastIrrigation

	kcbEffUpdated := EffectiveKcb(newKcbStruct, newCAero, acTerm, kcMax)

	var meta map[string]string
	if etcObsMM != nil {
		meta = map[string]string{"etc_obs_source": obsSource}
	}

	result := model.StepResult{
		ET0MM:       et0MM,
		ETcModelMM:  etcModelMM,
		ETcObsMM:    etcObsMM,
		KcbStruct:   newKcbStruct,
		KcbEff:      kcbEffUpdated,
		CAero:       newCAero,
		Ke:          ke,
		Ks:          ks,
		DeMM:        dePost,
		DrMM:        drNext,
		REWMM:       newState.REWMM,
		TauEH:       tauEH,
		NeedIrrig:   needIrrigation,
		RecommendMM: recommendMM,
		Meta:        meta,
	}

	return newState, result, nil
}
