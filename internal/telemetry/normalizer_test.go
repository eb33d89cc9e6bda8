package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldtrace/coldtrace-server/internal/models"
)

func TestNormalizeAliases(t *testing.T) {
	fields := Normalize(map[string]interface{}{
		"TempC_SHT": 22.5,
		"Hum_SHT":   61.0,
	}, Options{})

	assert.Equal(t, 22.5, fields[FieldTemperature])
	assert.Equal(t, 61.0, fields[FieldHumidity])

	// Originals survive for audit.
	assert.Equal(t, 22.5, fields["TempC_SHT"])
}

func TestNormalizeCanonicalFieldWins(t *testing.T) {
	fields := Normalize(map[string]interface{}{
		"temperature": 20.0,
		"TempC_DS":    -99.0,
	}, Options{})

	assert.Equal(t, 20.0, fields[FieldTemperature])
}

func TestNormalizeFahrenheitConversion(t *testing.T) {
	fields := Normalize(map[string]interface{}{
		"temperature": 32.0,
	}, Options{TemperatureUnit: "F"})

	assert.InDelta(t, 0.0, fields[FieldTemperature].(float64), 1e-9)

	fields = Normalize(map[string]interface{}{
		"temp": 212.0,
	}, Options{TemperatureUnit: "F"})

	assert.InDelta(t, 100.0, fields[FieldTemperature].(float64), 1e-9)
}

func TestNormalizeVoltageAlwaysRecomputesBattery(t *testing.T) {
	// A vendor "battery" status code must not survive when a voltage is
	// present; the percentage is recomputed from the discharge curve.
	fields := Normalize(map[string]interface{}{
		"battery": 3.0,
		"BatV":    7.20,
	}, Options{Chemistry: models.ChemistryLiSOCl2Pack})

	assert.Equal(t, 100, fields[FieldBattery])
	assert.Equal(t, 7.20, fields[FieldBatteryVoltage])
}

func TestNormalizeBatteryPctAliasWithoutVoltage(t *testing.T) {
	fields := Normalize(map[string]interface{}{
		"battery_level": 87.0,
	}, Options{})

	assert.Equal(t, 87, fields[FieldBattery])
	_, hasVoltage := fields[FieldBatteryVoltage]
	assert.False(t, hasVoltage)
}

func TestNormalizeStringNumbers(t *testing.T) {
	fields := Normalize(map[string]interface{}{
		"temperature": "23.5",
	}, Options{})

	v, ok := NumericField(fields, FieldTemperature)
	require.True(t, ok)
	assert.Equal(t, 23.5, v)
}

func TestNormalizeNilMap(t *testing.T) {
	assert.Nil(t, Normalize(nil, Options{}))
}

func TestNormalizeAliasMatchingIsCaseSensitive(t *testing.T) {
	fields := Normalize(map[string]interface{}{
		"Temperature": 25.0,
	}, Options{})

	_, ok := fields[FieldTemperature]
	assert.False(t, ok)
}

func TestNumericField(t *testing.T) {
	fields := map[string]interface{}{
		"a": 1.5,
		"b": "not a number",
	}

	v, ok := NumericField(fields, "a")
	assert.True(t, ok)
	assert.Equal(t, 1.5, v)

	_, ok = NumericField(fields, "b")
	assert.False(t, ok)

	_, ok = NumericField(fields, "missing")
	assert.False(t, ok)
}
