package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDoorState(t *testing.T) {
	cases := []struct {
		name   string
		fields map[string]interface{}
		want   DoorState
	}{
		{"absent", map[string]interface{}{"temperature": 20.0}, DoorAbsent},
		{"bool open", map[string]interface{}{"door_open": true}, DoorOpen},
		{"bool closed", map[string]interface{}{"door_open": false}, DoorClosed},
		{"numeric one", map[string]interface{}{"door_status": 1.0}, DoorOpen},
		{"numeric zero", map[string]interface{}{"door_status": 0.0}, DoorClosed},
		{"numeric other", map[string]interface{}{"door_status": 2.0}, DoorAbsent},
		{"string open", map[string]interface{}{"contact": "OPEN"}, DoorOpen},
		{"string closed", map[string]interface{}{"contact": " closed "}, DoorClosed},
		{"string true", map[string]interface{}{"magnet_status": "true"}, DoorOpen},
		{"string junk", map[string]interface{}{"door": "ajar"}, DoorAbsent},
		{"alias priority", map[string]interface{}{"door_open": false, "contact": "open"}, DoorClosed},
		{"case sensitive alias", map[string]interface{}{"Door_Open": true}, DoorAbsent},
		{"nil fields", nil, DoorAbsent},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, NormalizeDoorState(c.fields))
		})
	}
}

func TestDoorStatePredicates(t *testing.T) {
	assert.False(t, DoorAbsent.Present())
	assert.False(t, DoorAbsent.Open())
	assert.True(t, DoorClosed.Present())
	assert.False(t, DoorClosed.Open())
	assert.True(t, DoorOpen.Present())
	assert.True(t, DoorOpen.Open())
}
