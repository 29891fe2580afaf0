package preset

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// Px2Vw converts pixel magnitude to the percentage of the design width and
// returns it with "vw" suffix. No rounding is performed.
func Px2Vw(px, designWidth float64) string {
	return formatNumber(px*100.0/designWidth) + "vw"
}

// Px2Vh converts pixel magnitude to the percentage of the design height and
// returns it with "vh" suffix. No rounding is performed.
func Px2Vh(px, designHeight float64) string {
	return formatNumber(px*100.0/designHeight) + "vh"
}

// formatNumber produces the shortest decimal string which round-trips to the
// same float64. Layout follows the usual script engine conventions so output
// could be compared with what browsers tooling produces: plain notation for
// magnitudes in [1e-6, 1e21), exponent otherwise, no negative zero.
func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}

	if abs := math.Abs(f); abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}

	// strconv gives "1.5e+21" or "1e-07", exponent must not be zero padded
	mant, exp, _ := strings.Cut(strconv.FormatFloat(f, 'e', -1, 64), "e")
	digits := strings.TrimLeft(exp[1:], "0")
	if digits == "" {
		digits = "0"
	}
	return mant + "e" + exp[:1] + digits
}

// parseMagnitude converts captured pixel magnitude to a number. Captures like
// "1.2.3" or "." are not numbers and result in NaN, overly long digit runs
// saturate to infinity.
func parseMagnitude(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return math.NaN()
	}
	return v
}
