package domain

// Truncate returns s cut to at most maxRunes runes.
// A non-positive maxRunes leaves s untouched.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 || len(s) <= maxRunes {
		return s
	}
	count := 0
	for i := range s {
		if count == maxRunes {
			return s[:i]
		}
		count++
	}
	return s
}
