package telemetry

import (
	"math"

	"github.com/coldtrace/coldtrace-server/internal/models"
)

// curvePoint is one (voltage, percent) anchor on a discharge curve.
// Points are ordered by ascending voltage.
type curvePoint struct {
	voltage float64
	percent float64
}

// Discharge curves per chemistry. Values between anchors are linearly
// interpolated; outside the curve the percentage clamps to 0 or 100.
var dischargeCurves = map[models.BatteryChemistry][]curvePoint{
	models.ChemistryLiSOCl2Single: {
		{2.50, 0}, {2.80, 5}, {3.00, 15}, {3.20, 35},
		{3.30, 55}, {3.40, 75}, {3.50, 90}, {3.60, 100},
	},
	models.ChemistryLiSOCl2Pack: {
		{5.00, 0}, {5.40, 5}, {5.80, 15}, {6.20, 35},
		{6.50, 55}, {6.80, 75}, {7.00, 90}, {7.20, 100},
	},
	models.ChemistryAlkalinePack: {
		{2.00, 0}, {2.20, 10}, {2.40, 25}, {2.60, 45},
		{2.80, 65}, {3.00, 85}, {3.20, 100},
	},
	models.ChemistryLiMnO2: {
		{2.20, 0}, {2.40, 5}, {2.60, 20}, {2.70, 40},
		{2.80, 60}, {2.90, 80}, {3.00, 100},
	},
}

// BatteryPercent converts a pack voltage to an integer percentage using the
// chemistry's discharge curve. Unrecognized chemistries fall back to the
// two-cell lithium curve, the most common pack in the fleet. The conversion
// is deterministic and side-effect free.
func BatteryPercent(voltage float64, chemistry models.BatteryChemistry) int {
	curve, ok := dischargeCurves[chemistry]
	if !ok {
		curve = dischargeCurves[models.ChemistryLiSOCl2Pack]
	}

	if voltage <= curve[0].voltage {
		return 0
	}
	if voltage >= curve[len(curve)-1].voltage {
		return 100
	}

	for i := 1; i < len(curve); i++ {
		lo, hi := curve[i-1], curve[i]
		if voltage <= hi.voltage {
			frac := (voltage - lo.voltage) / (hi.voltage - lo.voltage)
			pct := lo.percent + frac*(hi.percent-lo.percent)
			return int(math.Round(pct))
		}
	}

	return 100
}
