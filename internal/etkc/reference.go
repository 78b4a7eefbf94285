// Package etkc implements the adaptive ET/Kc control loop for container
// plants: FAO-56 reference evapotranspiration, crop/soil coefficient
// decomposition, a two-layer water balance and an online coefficient learner.
package etkc

import (
	"errors"
	"math"
)

// FAO-56 constants (SI units).
const (
	epsilonMolar    = 0.622     // molecular weight ratio water vapor / dry air
	cpAir           = 1013.0    // specific heat of air [J kg^-1 K^-1]
	latentHeatVap   = 2450000.0 // latent heat of vaporization [J kg^-1]
	minRHPct        = 0.1
	maxRHPct        = 99.9
	DefaultWindMS   = 0.25
	DefaultPressKPa = 101.3
	DefaultAlbedo   = 0.23
)

// Domain errors: these signal degenerate meteorology supplied by the caller
// and are never clamped away.
var (
	ErrSingularVaporSlope = errors.New("temperature of -237.3 degC yields a singular saturation vapor pressure slope")
	ErrDegenerateMeteo    = errors.New("meteorological combination yields a non-positive denominator")
	ErrNonPositivePress   = errors.New("atmospheric pressure must be positive")
)

// SatVaporPressureKPa returns saturation vapor pressure at tC [kPa].
func SatVaporPressureKPa(tC float64) (float64, error) {
	denom := tC + 237.3
	if denom == 0 {
		return 0, ErrSingularVaporSlope
	}
	return 0.6108 * math.Exp((17.27*tC)/denom), nil
}

// SlopeDeltaKPaPerC returns the slope of the saturation vapor pressure curve
// at tC [kPa degC^-1].
func SlopeDeltaKPaPerC(tC float64) (float64, error) {
	denom := (tC + 237.3) * (tC + 237.3)
	if denom == 0 {
		return 0, ErrSingularVaporSlope
	}
	es, err := SatVaporPressureKPa(tC)
	if err != nil {
		return 0, err
	}
	return 4098.0 * es / denom, nil
}

// PsychrometricKPaPerC returns gamma for atmospheric pressure pKPa
// [kPa degC^-1].
func PsychrometricKPaPerC(pKPa float64) (float64, error) {
	if pKPa <= 0 {
		return 0, ErrNonPositivePress
	}
	gammaPaPerC := (cpAir * pKPa * 1000.0) / (epsilonMolar * latentHeatVap)
	return gammaPaPerC / 1000.0, nil
}

// VPDKPa returns the vapor pressure deficit for tC and rhPct [kPa]. RH is
// clamped into [0.1%, 99.9%] so the deficit never fully collapses.
func VPDKPa(tC, rhPct float64) (float64, error) {
	rh := math.Max(minRHPct, math.Min(maxRHPct, rhPct))
	es, err := SatVaporPressureKPa(tC)
	if err != nil {
		return 0, err
	}
	ea := es * (rh / 100.0)
	return math.Max(es-ea, 0), nil
}

// FAO56PMHourly returns the hourly Penman-Monteith reference ET0 rate
// [mm h^-1] for temperature tC [degC], relative humidity rhPct [%],
// shortwave radiation rs [MJ m^-2 h^-1], wind u2 [m s^-1], pressure pKPa
// [kPa] and surface albedo. Pass DefaultWindMS/DefaultPressKPa/DefaultAlbedo
// when no measurement is available.
func FAO56PMHourly(tC, rhPct, rs, u2, pKPa, albedo float64) (float64, error) {
	wind := math.Max(u2, 0)
	netRadiation := math.Max(0, 1.0-math.Max(math.Min(albedo, 1), 0)) * math.Max(rs, 0)

	delta, err := SlopeDeltaKPaPerC(tC)
	if err != nil {
		return 0, err
	}
	gamma, err := PsychrometricKPaPerC(pKPa)
	if err != nil {
		return 0, err
	}
	vpd, err := VPDKPa(tC, rhPct)
	if err != nil {
		return 0, err
	}

	tempK := tC + 273.15
	if tempK <= 0 {
		return 0, ErrDegenerateMeteo
	}

	radiationTerm := 0.408 * delta * netRadiation
	aerodynamicTerm := gamma * (37.0 / tempK) * wind * vpd
	denom := delta + gamma*(1.0+0.34*wind)
	if denom <= 0 {
		return 0, ErrDegenerateMeteo
	}

	return math.Max((radiationTerm+aerodynamicTerm)/denom, 0), nil
}
