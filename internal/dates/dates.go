// Package dates normalizes the two date layouts the roster accepts and
// performs year-agnostic fragment matching against stored date strings.
package dates

import "strings"

// DayMonth is a normalized, zero-padded calendar day within a year.
type DayMonth struct {
	Month string // "01".."12"
	Day   string // "01".."31"
}

// Parse extracts the (month, day) pair from a date written either as
// "DD.MM[.YYYY]" or as "YYYY-MM-DD". The year, when present, is ignored.
// A value with neither separator, or with missing fragments, yields ok=false;
// malformed input is recovered as an empty match set, never an error.
func Parse(date string) (DayMonth, bool) {
	switch {
	case strings.Contains(date, "."):
		parts := strings.Split(date, ".")
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return DayMonth{}, false
		}
		return DayMonth{Month: pad2(parts[1]), Day: pad2(parts[0])}, true
	case strings.Contains(date, "-"):
		parts := strings.Split(date, "-")
		if len(parts) < 3 || parts[1] == "" || parts[2] == "" {
			return DayMonth{}, false
		}
		return DayMonth{Month: pad2(parts[1]), Day: pad2(parts[2])}, true
	default:
		return DayMonth{}, false
	}
}

// MatchesStored reports whether a stored date matches this day and month.
// Stored values are either full "YYYY-MM-DD" dates (month and day live at
// positions 6-7 and 9-10) or year-independent "MM-DD" pairs. The stored year
// is never compared. Non-dash layouts never match, mirroring Parse's
// strictness.
func (dm DayMonth) MatchesStored(stored string) bool {
	switch len(stored) {
	case 10: // YYYY-MM-DD
		return stored[4] == '-' && stored[7] == '-' &&
			stored[5:7] == dm.Month && stored[8:10] == dm.Day
	case 5: // MM-DD
		return stored[2] == '-' &&
			stored[0:2] == dm.Month && stored[3:5] == dm.Day
	default:
		return false
	}
}

// DottedUpon renders the pair in the DD.MM.YYYY presentation layout used by
// the content pipeline, borrowing the year from the supplied full date.
func (dm DayMonth) DottedUpon(year string) string {
	return dm.Day + "." + dm.Month + "." + year
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
