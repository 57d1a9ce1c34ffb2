package sensor

import "strconv"

// wattsFromVars derives instantaneous power draw from a NUT variable map.
// Preference order: ups.realpower (direct watts), then ups.load percent
// scaled by ups.realpower.nominal. Returns false when neither is usable.
func wattsFromVars(vars map[string]string) (float64, bool) {
	if w, ok := parseFloat(vars["ups.realpower"]); ok {
		return w, true
	}
	load, ok := parseFloat(vars["ups.load"])
	if !ok {
		return 0, false
	}
	nominal, ok := parseFloat(vars["ups.realpower.nominal"])
	if !ok {
		return 0, false
	}
	return load / 100 * nominal, true
}

// parseFloat converts a NUT value string to float64.
// Returns (0, false) for empty or unparseable strings.
func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
