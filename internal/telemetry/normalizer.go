package telemetry

import (
	"strconv"

	"github.com/coldtrace/coldtrace-server/internal/models"
)

// Canonical field names added by the normalizer.
const (
	FieldTemperature    = "temperature"
	FieldHumidity       = "humidity"
	FieldBattery        = "battery"
	FieldBatteryVoltage = "battery_voltage"
)

// Vendor alias lists in priority order; the first alias present wins.
// Matching is exact and case-sensitive: vendor field names are contracts.
var (
	temperatureAliases = []string{
		"temperature",
		"temp",
		"TempC_SHT",
		"TempC_DS",
		"temperature_c",
		"air_temperature",
		"tempc",
	}

	humidityAliases = []string{
		"humidity",
		"hum",
		"Hum_SHT",
		"relative_humidity",
		"rh",
	}

	voltageAliases = []string{
		"battery_voltage",
		"BatV",
		"bat_v",
		"voltage",
		"vdd",
		"battery_v",
	}

	batteryPctAliases = []string{
		"battery_level",
		"battery_pct",
		"bat",
	}
)

// Options carries per-model normalization context from the catalog entry.
type Options struct {
	// TemperatureUnit is the unit the device reports natively; "F" triggers
	// conversion to Celsius. Empty or "C" leaves values untouched.
	TemperatureUnit string

	Chemistry models.BatteryChemistry
}

// Normalize adds canonical fields to the decoded field map wherever a
// recognized vendor alias is found and the canonical key is absent. The input
// map is mutated and returned.
//
// Battery is special: once any voltage alias is present, the canonical
// battery percentage is always recomputed from voltage and chemistry, even
// when the payload already carries a "battery" field. Some vendor decoders
// reuse that name for an enumerated status code, so voltage is the only
// trustworthy signal.
func Normalize(fields map[string]interface{}, opts Options) map[string]interface{} {
	if fields == nil {
		return nil
	}

	if _, ok := fields[FieldTemperature]; !ok {
		if v, found := firstNumeric(fields, temperatureAliases); found {
			if opts.TemperatureUnit == "F" {
				v = (v - 32) * 5 / 9
			}
			fields[FieldTemperature] = v
		}
	} else if opts.TemperatureUnit == "F" {
		if v, ok := numericValue(fields[FieldTemperature]); ok {
			fields[FieldTemperature] = (v - 32) * 5 / 9
		}
	}

	if _, ok := fields[FieldHumidity]; !ok {
		if v, found := firstNumeric(fields, humidityAliases); found {
			fields[FieldHumidity] = v
		}
	}

	if voltage, found := firstNumeric(fields, voltageAliases); found {
		fields[FieldBatteryVoltage] = voltage
		fields[FieldBattery] = BatteryPercent(voltage, opts.Chemistry)
	} else if _, ok := fields[FieldBattery]; !ok {
		if pct, found := firstNumeric(fields, batteryPctAliases); found {
			fields[FieldBattery] = int(pct)
		}
	}

	return fields
}

// firstNumeric returns the first alias present with a usable numeric value.
func firstNumeric(fields map[string]interface{}, aliases []string) (float64, bool) {
	for _, alias := range aliases {
		raw, ok := fields[alias]
		if !ok {
			continue
		}
		if v, ok := numericValue(raw); ok {
			return v, true
		}
	}
	return 0, false
}

// NumericField returns the coerced numeric value of a canonical field.
func NumericField(fields map[string]interface{}, key string) (float64, bool) {
	raw, ok := fields[key]
	if !ok {
		return 0, false
	}
	return numericValue(raw)
}

// numericValue coerces JSON scalars to float64. Some vendor decoders emit
// numbers as strings, so parseable strings are accepted.
func numericValue(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
