package avr

import (
	"strconv"
	"strings"
)

// Apply interprets one trimmed response token and writes any matching
// field updates into s. It is pure protocol interpretation: no I/O, no
// locking. The caller is responsible for holding the state lock and for
// advancing LastUpdated.
//
// Returns true if any rule matched and wrote a field (even if the value
// was unchanged, mirroring the receiver's own idempotent reporting).
// Unrecognised tokens write nothing and return false.
//
// Rules are checked in a fixed order and are not mutually exclusive: a
// token may satisfy several rules, and each matching rule writes its
// field independently. The only explicit precedence is zone 2 mute
// before zone 2 volume.
func Apply(s *State, token string) bool {
	matched := false

	// Main zone power.
	switch token {
	case "PWON":
		s.Power = boolPtr(true)
		matched = true
	case "PWSTANDBY":
		s.Power = boolPtr(false)
		matched = true
	}

	// Main zone volume: MV followed by two digits at positions 2-3.
	// Both characters must be digits; MVMAX and MV9X-style tokens are
	// skipped rather than half-parsed.
	if strings.HasPrefix(token, "MV") && len(token) >= 4 {
		if v, ok := parseTwoDigits(token[2:4]); ok {
			s.Volume = intPtr(v)
			matched = true
		}
	}

	// Main zone mute.
	switch token {
	case "MUON":
		s.Muted = boolPtr(true)
		matched = true
	case "MUOFF":
		s.Muted = boolPtr(false)
		matched = true
	}

	// Input source: any SI suffix, including empty.
	if strings.HasPrefix(token, "SI") {
		s.InputSource = stringPtr(token[2:])
		matched = true
	}

	// Surround mode: any MS suffix.
	if strings.HasPrefix(token, "MS") {
		s.SurroundMode = stringPtr(token[2:])
		matched = true
	}

	// Zone 2 power.
	switch token {
	case "Z2ON":
		s.Zone2Power = boolPtr(true)
		matched = true
	case "Z2OFF":
		s.Zone2Power = boolPtr(false)
		matched = true
	}

	// Zone 2 mute. Checked before zone 2 volume so the MU suffix is
	// never misread as a volume level.
	switch token {
	case "Z2MUON":
		s.Zone2Muted = boolPtr(true)
		matched = true
	case "Z2MUOFF":
		s.Zone2Muted = boolPtr(false)
		matched = true
	default:
		// Zone 2 volume: Z2 followed by two digits at positions 2-3.
		if strings.HasPrefix(token, "Z2") && len(token) >= 4 {
			if v, ok := parseTwoDigits(token[2:4]); ok {
				s.Zone2Volume = intPtr(v)
				matched = true
			}
		}
	}

	return matched
}

// parseTwoDigits parses a two-character string as an integer, requiring
// both characters to be ASCII digits.
func parseTwoDigits(s string) (int, bool) {
	if len(s) != 2 || !isDigit(s[0]) || !isDigit(s[1]) {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
