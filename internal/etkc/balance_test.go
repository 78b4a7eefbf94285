package etkc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/projectplant/etkc/internal/model"
)

var testPot = model.PotStatic{
	PotAreaM2: 0.0314,
	DepthM:    0.25,
	ThetaFC:   0.32,
	ThetaWP:   0.12,
	ClassName: "herb",
}

func TestVolumeDepthConversions(t *testing.T) {
	assert.InDelta(t, 1.0, MLToMM(31.4, 0.0314), 1e-9)
	assert.InDelta(t, 31.4, MMToML(1.0, 0.0314), 1e-9)
	assert.Equal(t, 0.0, MLToMM(100.0, 0.0), "degenerate area yields zero depth")
	assert.Equal(t, 0.0, MMToML(-2.0, 0.0314))
}

func TestRechargeSurface(t *testing.T) {
	b := NewWaterBalance(testPot)
	assert.Equal(t, 2.0, b.RechargeSurface(5.0, 3.0))
	assert.Equal(t, 0.0, b.RechargeSurface(2.0, 10.0), "recharge floors at zero")
	assert.Equal(t, 5.0, b.RechargeSurface(5.0, -4.0), "net drainage does not recharge")
}

func TestAdvanceRootZoneClamps(t *testing.T) {
	b := NewWaterBalance(testPot)
	assert.Equal(t, b.TAW, b.AdvanceRootZone(b.TAW, 100.0, 0.0))
	assert.Equal(t, 0.0, b.AdvanceRootZone(1.0, 0.0, 50.0))
}

func TestZeroFluxStepIsFixedPoint(t *testing.T) {
	b := NewWaterBalance(testPot)
	dr := 12.5
	de := 3.25
	for i := 0; i < 1000; i++ {
		dr = b.AdvanceRootZone(dr, 0.0, 0.0)
		de = b.RechargeSurface(de, 0.0)
	}
	assert.Equal(t, 12.5, dr)
	assert.Equal(t, 3.25, de)
}

func TestModeledETFloor(t *testing.T) {
	assert.Equal(t, 0.0, ModeledETMM(-1.0, 0.8, 1.0, 0.2))
	assert.InDelta(t, 0.5*(0.8*0.9+0.2), ModeledETMM(0.5, 0.8, 0.9, 0.2), 1e-12)
}

func TestIrrigationNeed(t *testing.T) {
	b := NewWaterBalance(testPot) // TAW = 50 mm
	need, rec := b.IrrigationNeed(30.0, 0.5)
	assert.True(t, need)
	assert.InDelta(t, 5.0, rec, 1e-9)

	need, rec = b.IrrigationNeed(10.0, 0.5)
	assert.False(t, need)
	assert.Equal(t, 0.0, rec)
}

func TestObservedET(t *testing.T) {
	dStorage := -31.4
	obs := ObservedETMM(0, 0, &dStorage, 0.0314)
	assert.NotNil(t, obs)
	assert.InDelta(t, 1.0, *obs, 1e-9)

	assert.Nil(t, ObservedETMM(10, 0, nil, 0.0314), "storage change required")
	assert.Nil(t, ObservedETMM(10, 0, &dStorage, 0.0), "area required")
}

func TestObservedETFromTheta(t *testing.T) {
	now, prev := 0.20, 0.22
	obs := ObservedETFromTheta(&now, &prev, 0.25)
	assert.NotNil(t, obs)
	assert.InDelta(t, 5.0, *obs, 1e-9)

	assert.Nil(t, ObservedETFromTheta(nil, &prev, 0.25))
	assert.Nil(t, ObservedETFromTheta(&now, &prev, 0.0))
}

func TestThetaFromDepletion(t *testing.T) {
	theta := ThetaFromDepletion(testPot, 25.0)
	assert.NotNil(t, theta)
	assert.InDelta(t, 0.22, *theta, 1e-9)

	saturated := ThetaFromDepletion(testPot, -10.0)
	assert.Equal(t, testPot.ThetaFC, *saturated)

	depleted := ThetaFromDepletion(testPot, 500.0)
	assert.Equal(t, testPot.ThetaWP, *depleted)
}
