/**
 * Text Normalizer
 *
 * Canonicalizes OCR strings for three purposes: unit detection, value-type
 * classification, and the OCR-canonical equivalence used by the identifier
 * reconciler.
 */

package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

// unitPattern pairs a compiled regex with the canonical (lower-case) unit
// string it should report on match. Order is the fixed priority list from
// the spec: first match wins.
type unitPattern struct {
	re   *regexp.Regexp
	unit string
}

var unitPatterns = buildUnitPatterns()

func buildUnitPatterns() []unitPattern {
	mk := func(pattern, unit string) unitPattern {
		return unitPattern{re: regexp.MustCompile(`(?i)` + pattern), unit: unit}
	}
	return []unitPattern{
		// Temperature
		mk(`°\s*c\b`, "°c"),
		mk(`°\s*f\b`, "°f"),
		// Pressure
		mk(`\bpsi\b`, "psi"),
		mk(`\bbar\b`, "bar"),
		mk(`\bkpa\b`, "kpa"),
		mk(`\bmbar\b`, "mbar"),
		// Volume
		mk(`\bml\b`, "ml"),
		mk(`\bliter(s)?\b`, "l"),
		mk(`\bl\b`, "l"),
		// Mass
		mk(`\bkg\b`, "kg"),
		mk(`\bmg\b`, "mg"),
		mk(`\bkilogram(s)?\b`, "kg"),
		mk(`\bgram(s)?\b`, "g"),
		mk(`\bg\b`, "g"),
		// Time
		mk(`\bhr(s)?\b`, "hr"),
		mk(`\bhour(s)?\b`, "hr"),
		mk(`\bminute(s)?\b|\bmin\b`, "min"),
		mk(`\bsec(ond)?(s)?\b`, "sec"),
		// Flow
		mk(`\bml/min\b`, "ml/min"),
		mk(`\bl/min\b`, "l/min"),
		mk(`\bgpm\b`, "gpm"),
		// Percent
		mk(`%`, "%"),
	}
}

// ExtractUnit scans text in the fixed priority order (temperature,
// pressure, volume, mass, time, flow, percent) and returns the lower-cased
// unit of the first pattern that matches. ok is false when nothing matches.
func ExtractUnit(text string) (unit string, ok bool) {
	for _, p := range unitPatterns {
		if p.re.MatchString(text) {
			return p.unit, true
		}
	}
	return "", false
}

var (
	dateRe    = regexp.MustCompile(`\d{2}[/-]\d{2}[/-]\d{2,4}`)
	timeRe    = regexp.MustCompile(`(?i)\d{1,2}:\d{2}(:\d{2})?(\s?(am|pm))?`)
	decimalRe = regexp.MustCompile(`[+-]?\d+(\.\d+)?`)
)

var booleanWords = map[string]bool{
	"yes": true, "no": true, "true": true, "false": true,
	"pass": true, "fail": true, "y": true, "n": true,
}

// DetermineValueType classifies a raw OCR token per §4.1's fixed
// precedence: date/datetime, then time, then boolean, then numeric, else
// text.
func DetermineValueType(text string) string {
	trimmed := strings.TrimSpace(text)

	if dateRe.MatchString(trimmed) {
		if timeRe.MatchString(trimmed) {
			return "datetime"
		}
		return "date"
	}

	if timeRe.MatchString(trimmed) {
		return "time"
	}

	if booleanWords[strings.ToLower(trimmed)] {
		return "boolean"
	}

	if decimalRe.MatchString(trimmed) {
		return "numeric"
	}

	return "text"
}

// ExtractNumeric returns the first signed/unsigned decimal literal found in
// text, or ok=false if none is present.
func ExtractNumeric(text string) (value float64, ok bool) {
	match := decimalRe.FindString(text)
	if match == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// NormalizeSerialIdentifier produces the OCR-canonical form used as the
// equivalence key for identifier comparison, alongside the untouched
// original. Canonicalization: upper-case, strip all whitespace, a leading
// '(' becomes 'C', every 'I' becomes '1', every 'O' becomes '0'.
func NormalizeSerialIdentifier(value string) (canonical string, original string) {
	original = value
	stripped := strings.ToUpper(stripWhitespace(value))

	if strings.HasPrefix(stripped, "(") {
		stripped = "C" + stripped[1:]
	}

	stripped = strings.ReplaceAll(stripped, "I", "1")
	stripped = strings.ReplaceAll(stripped, "O", "0")

	return stripped, original
}

func stripWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
