package classify

import (
	"fmt"
	"sort"

	"github.com/coldtrace/coldtrace-server/internal/models"
)

// Payload types produced by the classifier.
const (
	PayloadDoorV1        = "door_v1"
	PayloadLeakV1        = "leak_v1"
	PayloadMotionV1      = "motion_v1"
	PayloadAirQualityV1  = "airq_v1"
	PayloadGPSV1         = "gps_v1"
	PayloadTempV1        = "temp_v1"
	PayloadTempHumV1     = "temp_hum_v1"
	PayloadMeteringV1    = "meter_v1"
	PayloadMultiSensorV1 = "multi_v1"
	PayloadUnclassified  = "unclassified"
)

// Reason codes for edge cases.
const (
	ReasonInvalidPayload       = "invalid_payload"
	ReasonEmptyPayload         = "empty_payload"
	ReasonNoDiscriminatorMatch = "no_discriminator_match"
	ReasonLowConfidence        = "low_confidence"
	ReasonMultiSensor          = "multi_sensor_fingerprint"
)

// maxPriority normalizes discriminator priorities into [0,1] confidence.
const maxPriority = 10

// corroborationBonus and disagreementPenalty adjust the top match's
// normalized priority. ambiguityMargin is the priority distance under which
// two distinct candidate types are flagged ambiguous.
const (
	corroborationBonus  = 0.05
	disagreementPenalty = 0.15
	ambiguityMargin     = 2
)

// discriminator maps a trigger field (or a required field combination) to a
// payload type. Higher priority means more distinctive evidence: door, leak
// and motion fields outrank generic temperature.
type discriminator struct {
	name        string
	fields      []string // all must be present
	payloadType string
	sensorType  models.SensorType
	modelHints  []string
	priority    int
}

// The discriminator table. Field matching is exact and case-sensitive:
// vendor field names are contracts, and a differently-cased key must not
// match. Order in this table is fixed so repeated classification of the same
// input is byte-for-byte identical.
var discriminators = []discriminator{
	{name: "door_status", fields: []string{"door_status"}, payloadType: PayloadDoorV1, sensorType: models.SensorTypeDoor, modelHints: []string{"LDS02"}, priority: 10},
	{name: "door_open", fields: []string{"door_open"}, payloadType: PayloadDoorV1, sensorType: models.SensorTypeDoor, modelHints: []string{"LDS02"}, priority: 10},
	{name: "contact", fields: []string{"contact"}, payloadType: PayloadDoorV1, sensorType: models.SensorTypeDoor, modelHints: []string{"EM300-MCS"}, priority: 9},
	{name: "magnet_status", fields: []string{"magnet_status"}, payloadType: PayloadDoorV1, sensorType: models.SensorTypeDoor, modelHints: []string{"WS301"}, priority: 9},
	{name: "water_leak", fields: []string{"water_leak"}, payloadType: PayloadLeakV1, sensorType: models.SensorTypeLeak, modelHints: []string{"EM300-SLD"}, priority: 10},
	{name: "leak_status", fields: []string{"leak_status"}, payloadType: PayloadLeakV1, sensorType: models.SensorTypeLeak, modelHints: []string{"LWL02"}, priority: 10},
	{name: "pir_status", fields: []string{"pir_status"}, payloadType: PayloadMotionV1, sensorType: models.SensorTypeMotion, modelHints: []string{"WS202"}, priority: 9},
	{name: "occupancy", fields: []string{"occupancy"}, payloadType: PayloadMotionV1, sensorType: models.SensorTypeMotion, modelHints: []string{"AM103"}, priority: 9},
	{name: "motion", fields: []string{"motion"}, payloadType: PayloadMotionV1, sensorType: models.SensorTypeMotion, priority: 8},
	{name: "co2", fields: []string{"co2"}, payloadType: PayloadAirQualityV1, sensorType: models.SensorTypeAirQuality, modelHints: []string{"AM103", "ERS-CO2"}, priority: 8},
	{name: "tvoc", fields: []string{"tvoc"}, payloadType: PayloadAirQualityV1, sensorType: models.SensorTypeAirQuality, modelHints: []string{"AM319"}, priority: 8},
	{name: "pm2_5", fields: []string{"pm2_5"}, payloadType: PayloadAirQualityV1, sensorType: models.SensorTypeAirQuality, modelHints: []string{"AM319"}, priority: 8},
	{name: "gps_fix", fields: []string{"latitude", "longitude"}, payloadType: PayloadGPSV1, sensorType: models.SensorTypeGPS, modelHints: []string{"LGT92"}, priority: 9},
	{name: "pulse_count", fields: []string{"pulse_count"}, payloadType: PayloadMeteringV1, sensorType: models.SensorTypeMetering, modelHints: []string{"SW3L"}, priority: 8},
	{name: "meter_reading", fields: []string{"meter_reading"}, payloadType: PayloadMeteringV1, sensorType: models.SensorTypeMetering, priority: 8},
	{name: "sht_pair", fields: []string{"TempC_SHT", "Hum_SHT"}, payloadType: PayloadTempHumV1, sensorType: models.SensorTypeTemperatureHumidity, modelHints: []string{"LHT65"}, priority: 8},
	{name: "temp_hum_pair", fields: []string{"temperature", "humidity"}, payloadType: PayloadTempHumV1, sensorType: models.SensorTypeTemperatureHumidity, priority: 7},
	{name: "ds_probe", fields: []string{"TempC_DS"}, payloadType: PayloadTempV1, sensorType: models.SensorTypeTemperature, modelHints: []string{"LHT65"}, priority: 7},
	{name: "humidity", fields: []string{"humidity"}, payloadType: PayloadTempHumV1, sensorType: models.SensorTypeTemperatureHumidity, priority: 5},
	{name: "temperature", fields: []string{"temperature"}, payloadType: PayloadTempV1, sensorType: models.SensorTypeTemperature, priority: 5},
}

// Field groups for the multi-sensor fingerprint. A payload carrying
// temperature, humidity and a door field together is a combo device, not an
// ambiguous mix of competing single-sensor types.
var (
	fingerprintTemps = []string{"temperature", "temp", "TempC_SHT"}
	fingerprintHums  = []string{"humidity", "hum", "Hum_SHT"}
	fingerprintDoors = []string{"door_status", "door_open", "door", "contact", "magnet_status"}
)

// Classification is the classifier's result.
type Classification struct {
	PayloadType   string            `json:"payloadType"`
	SensorType    models.SensorType `json:"sensorType"`
	InferredModel *string           `json:"inferredModel,omitempty"`
	Confidence    float64           `json:"confidence"`
	Reasons       []string          `json:"reasons"`
	Ambiguous     bool              `json:"ambiguous"`
	Alternates    []string          `json:"alternates,omitempty"`
}

// Classifier runs the discriminator matrix against decoded field maps.
type Classifier struct {
	confidenceFloor float64
}

// New creates a classifier with the given confidence floor. Classifications
// scoring below the floor are forced to unclassified.
func New(confidenceFloor float64) *Classifier {
	return &Classifier{confidenceFloor: confidenceFloor}
}

// Classify produces a deterministic classification of the decoded field map.
// Identical input always yields identical type, confidence and reasons.
func (c *Classifier) Classify(fields map[string]interface{}) Classification {
	if fields == nil {
		return unclassified(0, ReasonInvalidPayload)
	}
	if len(fields) == 0 {
		return unclassified(0, ReasonEmptyPayload)
	}

	if hasAnyField(fields, fingerprintTemps) &&
		hasAnyField(fields, fingerprintHums) &&
		hasAnyField(fields, fingerprintDoors) {
		model := "LHT65-DOOR"
		return Classification{
			PayloadType:   PayloadMultiSensorV1,
			SensorType:    models.SensorTypeCombo,
			InferredModel: &model,
			Confidence:    0.95,
			Reasons:       []string{ReasonMultiSensor},
		}
	}

	matched := matchDiscriminators(fields)
	if len(matched) == 0 {
		return unclassified(0, ReasonNoDiscriminatorMatch)
	}

	top := matched[0]
	confidence := float64(top.priority) / maxPriority

	reasons := make([]string, 0, len(matched)+2)
	reasons = append(reasons, "matched:"+top.name)

	disagreement := false
	for _, d := range matched[1:] {
		confidence += corroborationBonus
		reasons = append(reasons, "corroborated:"+d.name)
		if d.payloadType != top.payloadType {
			disagreement = true
		}
	}
	if disagreement {
		confidence -= disagreementPenalty
	}
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}

	ambiguous, alternates := findAlternates(matched)
	for _, alt := range alternates {
		reasons = append(reasons, "ambiguous_with:"+alt)
	}

	if confidence < c.confidenceFloor {
		reasons = append(reasons, ReasonLowConfidence)
		return Classification{
			PayloadType: PayloadUnclassified,
			SensorType:  models.SensorTypeUnknown,
			Confidence:  confidence,
			Reasons:     reasons,
			Ambiguous:   ambiguous,
			Alternates:  alternates,
		}
	}

	result := Classification{
		PayloadType: top.payloadType,
		SensorType:  top.sensorType,
		Confidence:  confidence,
		Reasons:     reasons,
		Ambiguous:   ambiguous,
		Alternates:  alternates,
	}
	if len(top.modelHints) > 0 {
		model := top.modelHints[0]
		result.InferredModel = &model
	}
	return result
}

// matchDiscriminators collects every discriminator whose trigger fields are
// all present, sorted by priority descending with name as a stable tiebreak.
func matchDiscriminators(fields map[string]interface{}) []discriminator {
	var matched []discriminator
	for _, d := range discriminators {
		ok := true
		for _, f := range d.fields {
			if _, present := fields[f]; !present {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, d)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].priority != matched[j].priority {
			return matched[i].priority > matched[j].priority
		}
		return matched[i].name < matched[j].name
	})

	return matched
}

// findAlternates flags ambiguity when the highest-ranked discriminator of a
// different payload type sits within the priority margin of the top match.
// The lower-ranked type is reported as an alternate, not discarded.
func findAlternates(matched []discriminator) (bool, []string) {
	top := matched[0]
	for _, d := range matched[1:] {
		if d.payloadType == top.payloadType {
			continue
		}
		if top.priority-d.priority < ambiguityMargin {
			return true, []string{d.payloadType}
		}
		// matched is priority-sorted, nothing closer follows
		break
	}
	return false, nil
}

func hasAnyField(fields map[string]interface{}, names []string) bool {
	for _, n := range names {
		if _, ok := fields[n]; ok {
			return true
		}
	}
	return false
}

func unclassified(confidence float64, reason string) Classification {
	return Classification{
		PayloadType: PayloadUnclassified,
		SensorType:  models.SensorTypeUnknown,
		Confidence:  confidence,
		Reasons:     []string{reason},
	}
}

// String implements fmt.Stringer for log events.
func (c Classification) String() string {
	return fmt.Sprintf("%s/%s conf=%.2f", c.PayloadType, c.SensorType, c.Confidence)
}
