package models

import (
	"time"

	"github.com/google/uuid"
)

// BindingStatus tags how a sensor's payload binding was established.
type BindingStatus string

const (
	// BindingStatusPending means no classification has been confirmed yet.
	BindingStatusPending BindingStatus = "pending"
	// BindingStatusActive means the binding tracks automatic classification.
	BindingStatusActive BindingStatus = "active"
	// BindingStatusReviewRequired flags an unreliable binding (mismatch rate
	// above threshold) for operator attention.
	BindingStatusReviewRequired BindingStatus = "review_required"
	// BindingStatusOverridden means an operator fixed the binding manually.
	// Automatic correction never touches an overridden binding.
	BindingStatusOverridden BindingStatus = "overridden"
)

// PayloadBinding records the last classification persisted for a sensor,
// one row per sensor.
type PayloadBinding struct {
	ID       uuid.UUID `json:"id" db:"id"`
	SensorID uuid.UUID `json:"sensorId" db:"sensor_id"`

	PayloadType   string   `json:"payloadType" db:"payload_type"`
	InferredModel *string  `json:"inferredModel,omitempty" db:"inferred_model"`
	Confidence    float64  `json:"confidence" db:"confidence"`

	Status BindingStatus `json:"status" db:"status"`

	// Running counters used to flag unreliable bindings.
	MatchCount    int `json:"matchCount" db:"match_count"`
	MismatchCount int `json:"mismatchCount" db:"mismatch_count"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// bindingReviewMinSamples and bindingReviewRate define when a binding is
// considered unreliable: mismatch rate above 10% over at least 5 samples.
const (
	bindingReviewMinSamples = 5
	bindingReviewRate       = 0.10
)

// NeedsReview reports whether the running counters cross the unreliability
// threshold.
func (b *PayloadBinding) NeedsReview() bool {
	total := b.MatchCount + b.MismatchCount
	if total < bindingReviewMinSamples {
		return false
	}
	return float64(b.MismatchCount)/float64(total) > bindingReviewRate
}
