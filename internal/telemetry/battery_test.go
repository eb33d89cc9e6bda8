package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coldtrace/coldtrace-server/internal/models"
)

func TestBatteryPercentClamps(t *testing.T) {
	assert.Equal(t, 0, BatteryPercent(1.0, models.ChemistryLiSOCl2Single))
	assert.Equal(t, 0, BatteryPercent(2.50, models.ChemistryLiSOCl2Single))
	assert.Equal(t, 100, BatteryPercent(3.60, models.ChemistryLiSOCl2Single))
	assert.Equal(t, 100, BatteryPercent(9.99, models.ChemistryLiSOCl2Single))
}

func TestBatteryPercentInterpolates(t *testing.T) {
	// Midpoint between the 6.20V/35% and 6.50V/55% anchors.
	assert.Equal(t, 45, BatteryPercent(6.35, models.ChemistryLiSOCl2Pack))

	// Exact anchor values.
	assert.Equal(t, 55, BatteryPercent(6.50, models.ChemistryLiSOCl2Pack))
	assert.Equal(t, 25, BatteryPercent(2.40, models.ChemistryAlkalinePack))
}

func TestBatteryPercentMonotonic(t *testing.T) {
	chemistries := []models.BatteryChemistry{
		models.ChemistryLiSOCl2Single,
		models.ChemistryLiSOCl2Pack,
		models.ChemistryAlkalinePack,
		models.ChemistryLiMnO2,
	}

	for _, chem := range chemistries {
		prev := -1
		for v := 1.0; v <= 8.0; v += 0.01 {
			pct := BatteryPercent(v, chem)
			assert.GreaterOrEqual(t, pct, prev, "chemistry %s at %.2fV", chem, v)
			assert.GreaterOrEqual(t, pct, 0)
			assert.LessOrEqual(t, pct, 100)
			prev = pct
		}
	}
}

func TestBatteryPercentUnknownChemistryFallsBack(t *testing.T) {
	for v := 4.5; v <= 7.5; v += 0.25 {
		assert.Equal(t,
			BatteryPercent(v, models.ChemistryLiSOCl2Pack),
			BatteryPercent(v, models.BatteryChemistry("mystery")))
	}
}
