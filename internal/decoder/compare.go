package decoder

import (
	"math"
	"reflect"
	"sort"
)

// numericTolerance absorbs floating-point drift between two decoders of the
// same frame.
const numericTolerance = 0.01

// Comparison is the outcome of cross-validating a local decode against the
// network-supplied decode.
type Comparison struct {
	Match bool

	// MismatchedFields names the differing keys, sorted, for audit.
	MismatchedFields []string
}

// Compare deep-compares the local decoder output against the network decode.
// Numeric values match within a small absolute tolerance; booleans and
// strings compare exactly; anything else falls back to structural equality.
// Keys present on only one side count as mismatches.
func Compare(local, network map[string]interface{}) Comparison {
	keys := make(map[string]struct{}, len(local)+len(network))
	for k := range local {
		keys[k] = struct{}{}
	}
	for k := range network {
		keys[k] = struct{}{}
	}

	var mismatched []string
	for k := range keys {
		lv, lok := local[k]
		nv, nok := network[k]
		if !lok || !nok || !valuesMatch(lv, nv) {
			mismatched = append(mismatched, k)
		}
	}
	sort.Strings(mismatched)

	return Comparison{
		Match:            len(mismatched) == 0,
		MismatchedFields: mismatched,
	}
}

func valuesMatch(a, b interface{}) bool {
	if af, aok := asFloat(a); aok {
		bf, bok := asFloat(b)
		return bok && math.Abs(af-bf) <= numericTolerance
	}

	switch av := a.(type) {
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	}

	return reflect.DeepEqual(a, b)
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	}
	return 0, false
}
