package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type sampleRequest struct {
	Email string `validate:"required,email"`
	Name  string `validate:"required,min=2,max=10"`
	Mode  string `validate:"oneof=ttn|app|trust|off"`
	Limit int    `validate:"min=1,max=500"`
}

func valid() sampleRequest {
	return sampleRequest{Email: "ops@example.com", Name: "alpha", Mode: "app", Limit: 20}
}

func TestValidate(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.Validate(valid()))

	tests := []struct {
		name   string
		mutate func(*sampleRequest)
	}{
		{"missing required", func(r *sampleRequest) { r.Email = "" }},
		{"bad email", func(r *sampleRequest) { r.Email = "not-an-email" }},
		{"leading at", func(r *sampleRequest) { r.Email = "@example.com" }},
		{"too short", func(r *sampleRequest) { r.Name = "a" }},
		{"too long", func(r *sampleRequest) { r.Name = "abcdefghijk" }},
		{"not in set", func(r *sampleRequest) { r.Mode = "raw" }},
		{"below minimum", func(r *sampleRequest) { r.Limit = 0 }},
		{"above maximum", func(r *sampleRequest) { r.Limit = 501 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid()
			tt.mutate(&r)
			assert.Error(t, v.Validate(r))
		})
	}
}

func TestValidatePointerAndEmptyOneof(t *testing.T) {
	v := NewValidator()

	r := valid()
	assert.NoError(t, v.Validate(&r))

	// oneof skips the empty string so the rule composes with optional fields.
	r.Mode = ""
	assert.NoError(t, v.Validate(&r))

	assert.Error(t, v.Validate("not a struct"))
}
