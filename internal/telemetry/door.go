package telemetry

import "strings"

// DoorState is a three-valued door observation. Absent means the payload
// carried no door information at all, which callers must distinguish from
// "closed" to avoid overwriting a unit's door state from a payload that
// never mentioned the door.
type DoorState int

const (
	DoorAbsent DoorState = iota
	DoorClosed
	DoorOpen
)

// Open reports whether the state is an actual "open" observation.
func (d DoorState) Open() bool { return d == DoorOpen }

// Present reports whether the payload carried any door information.
func (d DoorState) Present() bool { return d != DoorAbsent }

// doorAliases lists door-related field names in priority order. The first
// alias present in the payload wins.
var doorAliases = []string{
	"door_open",
	"door_status",
	"door_state",
	"door",
	"doorOpen",
	"contact",
	"contact_state",
	"magnet_status",
	"hall_state",
}

// NormalizeDoorState scans the decoded fields for a door observation and
// coerces it to a DoorState. Field-name matching is exact and case-sensitive.
func NormalizeDoorState(fields map[string]interface{}) DoorState {
	for _, alias := range doorAliases {
		raw, ok := fields[alias]
		if !ok {
			continue
		}
		if state, ok := coerceDoorValue(raw); ok {
			return state
		}
	}
	return DoorAbsent
}

// coerceDoorValue applies type-specific rules: booleans pass through,
// numeric 1/0 map to open/closed, and a small set of string forms is matched
// case-insensitively. Unrecognized values are treated as absent rather than
// guessed.
func coerceDoorValue(raw interface{}) (DoorState, bool) {
	switch v := raw.(type) {
	case bool:
		if v {
			return DoorOpen, true
		}
		return DoorClosed, true
	case float64:
		if v == 1 {
			return DoorOpen, true
		}
		if v == 0 {
			return DoorClosed, true
		}
	case int:
		if v == 1 {
			return DoorOpen, true
		}
		if v == 0 {
			return DoorClosed, true
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "open", "true", "1":
			return DoorOpen, true
		case "closed", "false", "0":
			return DoorClosed, true
		}
	}
	return DoorAbsent, false
}
