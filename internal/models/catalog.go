package models

// DecodeMode governs which decode source is authoritative for a device model.
type DecodeMode string

const (
	// DecodeModeTTN trusts the network-supplied decode only.
	DecodeModeTTN DecodeMode = "ttn"
	// DecodeModeApp trusts the local catalog decoder only.
	DecodeModeApp DecodeMode = "app"
	// DecodeModeTrust runs the local decoder and compares it against the
	// network decode; the network decode stays authoritative.
	DecodeModeTrust DecodeMode = "trust"
	// DecodeModeOff disables decoding entirely.
	DecodeModeOff DecodeMode = "off"
)

// Valid reports whether m is a known decode mode.
func (m DecodeMode) Valid() bool {
	switch m {
	case DecodeModeTTN, DecodeModeApp, DecodeModeTrust, DecodeModeOff:
		return true
	}
	return false
}

// BatteryChemistry identifies a pack chemistry with a known discharge curve.
type BatteryChemistry string

const (
	// ChemistryLiSOCl2Single is a single 3.6V lithium thionyl chloride cell.
	ChemistryLiSOCl2Single BatteryChemistry = "li_socl2_1"
	// ChemistryLiSOCl2Pack is a two-cell 7.2V lithium pack, the fleet default.
	ChemistryLiSOCl2Pack BatteryChemistry = "li_socl2_2"
	// ChemistryAlkalinePack is a two-cell 3V alkaline pack.
	ChemistryAlkalinePack BatteryChemistry = "alkaline_2"
	// ChemistryLiMnO2 is a single 3.0V lithium manganese industrial cell.
	ChemistryLiMnO2 BatteryChemistry = "li_mno2"
)

// CatalogEntry describes a device model's decoding behavior. Catalog entries
// are shared across tenants.
type CatalogEntry struct {
	BaseModel

	Vendor string `json:"vendor" db:"vendor"`
	Model  string `json:"model" db:"model"`

	DecodeMode    DecodeMode `json:"decodeMode" db:"decode_mode"`
	DecoderScript string     `json:"decoderScript" db:"decoder_script"`

	// TemperatureUnit is the unit the model reports natively ("C" or "F").
	TemperatureUnit string `json:"temperatureUnit" db:"temperature_unit"`

	BatteryChemistry BatteryChemistry `json:"batteryChemistry" db:"battery_chemistry"`

	// Revision increases on every script change and invalidates cached
	// decoder instances.
	Revision int `json:"revision" db:"revision"`
}
