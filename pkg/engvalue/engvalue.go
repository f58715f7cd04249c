// Package engvalue parses engineering-notation value strings using the
// suffix dialect described in spec §3: T, G, MEG, M, K, k, m, u, µ, n, p, f.
// Capital M means mega in this dialect, not milli — diverging from the
// lowercase-SPICE convention where M is milli. This is deliberate (see
// DESIGN.md, Open Question #2) and is never silently reinterpreted.
package engvalue

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aaasdream/akingspice/pkg/simerr"
)

// suffixes, longest-match first so "MEG" is tried before "M".
var suffixOrder = []string{"MEG", "T", "G", "M", "K", "k", "m", "u", "µ", "n", "p", "f"}

var multiplier = map[string]float64{
	"T":   1e12,
	"G":   1e9,
	"MEG": 1e6,
	"M":   1e6, // capital M is mega in this dialect, not milli
	"K":   1e3,
	"k":   1e3,
	"m":   1e-3,
	"u":   1e-6,
	"µ":   1e-6,
	"n":   1e-9,
	"p":   1e-12,
	"f":   1e-15,
}

var numberRe = regexp.MustCompile(`^[-+]?\d*\.?\d+(?:[eE][-+]?\d+)?`)

// Parse converts a value string such as "1k", "2.2u", "3.3m", "1MEG",
// "1M", "10V", or a bare "10" into its float64 magnitude. A trailing unit
// letter (V, A, F, H, Ohm, ...) after the suffix is ignored.
func Parse(s string) (float64, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty value", simerr.ErrParse)
	}

	loc := numberRe.FindStringIndex(trimmed)
	if loc == nil {
		return 0, fmt.Errorf("%w: invalid value format %q", simerr.ErrParse, s)
	}

	num, err := strconv.ParseFloat(trimmed[loc[0]:loc[1]], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid numeric part in %q: %v", simerr.ErrParse, s, err)
	}

	rest := trimmed[loc[1]:]
	for _, suf := range suffixOrder {
		if strings.HasPrefix(rest, suf) {
			return num * multiplier[suf], nil
		}
	}

	// No recognized suffix: trailing letters (e.g. "V", "Ohm") are a bare
	// unit annotation, not a multiplier.
	return num, nil
}

// MustParse is Parse but panics on error; intended for literal constants
// in test setup and programmatic circuit construction, never for values
// derived from user input.
func MustParse(s string) float64 {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}
