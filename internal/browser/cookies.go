package browser

import (
	"fmt"
	"strings"
)

// cookiePair is one name/value pair parsed out of a credential cookie blob.
type cookiePair struct {
	Name  string
	Value string
}

// parseCookieBlob splits a "name=value; name2=value2" blob into pairs. Values
// may themselves contain '='; only the first one per pair separates name from
// value.
func parseCookieBlob(blob string) ([]cookiePair, error) {
	parts := strings.Split(blob, "; ")
	pairs := make([]cookiePair, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, found := strings.Cut(part, "=")
		if !found || name == "" {
			return nil, fmt.Errorf("malformed cookie pair %q", part)
		}
		pairs = append(pairs, cookiePair{Name: name, Value: value})
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("cookie blob contains no pairs")
	}
	return pairs, nil
}
