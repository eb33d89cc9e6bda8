package ingest

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedEUI is returned when a device EUI cannot be canonicalized.
var ErrMalformedEUI = errors.New("malformed device EUI")

// NormalizeEUI canonicalizes a device EUI to lowercase hex without
// separators. It accepts colon, dash and space separated forms in either
// case and rejects anything that is not 16 hex digits.
func NormalizeEUI(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer(":", "", "-", "", " ", "").Replace(s)

	if len(s) != 16 {
		return "", fmt.Errorf("%w: bad length %q", ErrMalformedEUI, raw)
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("%w: bad character in %q", ErrMalformedEUI, raw)
		}
	}

	return s, nil
}

// EUIVariants returns the four formatting variants upstream systems use for
// the same physical EUI: lowercase and uppercase without separators, and
// colon-separated in both cases. The input must already be normalized.
func EUIVariants(normalized string) []string {
	upper := strings.ToUpper(normalized)
	return []string{
		normalized,
		upper,
		colonSeparated(upper),
		colonSeparated(normalized),
	}
}

func colonSeparated(eui string) string {
	var b strings.Builder
	for i := 0; i < len(eui); i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(eui[i : i+2])
	}
	return b.String()
}
