package dates

import "testing"

func TestParse_FormatInvariance(t *testing.T) {
	// Every layout spelling the same calendar day must normalize identically.
	tests := []struct {
		name  string
		input string
		month string
		day   string
	}{
		{"dotted day.month", "08.03", "03", "08"},
		{"dotted with year", "08.03.2024", "03", "08"},
		{"dotted unpadded", "8.3", "03", "08"},
		{"iso full date", "2024-03-08", "03", "08"},
		{"iso другой год", "1985-03-08", "03", "08"},
		{"dotted december", "31.12.1999", "12", "31"},
		{"iso december", "2001-12-31", "12", "31"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dm, ok := Parse(tt.input)
			if !ok {
				t.Fatalf("Parse(%q) ok=false, want true", tt.input)
			}
			if dm.Month != tt.month || dm.Day != tt.day {
				t.Errorf("Parse(%q) = (%s, %s), want (%s, %s)",
					tt.input, dm.Month, dm.Day, tt.month, tt.day)
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	for _, input := range []string{"", "today", "08032024", "march 8", ".", "-"} {
		if _, ok := Parse(input); ok {
			t.Errorf("Parse(%q) ok=true, want false", input)
		}
	}
}

func TestMatchesStored_YearIgnored(t *testing.T) {
	dm, ok := Parse("08.03")
	if !ok {
		t.Fatal("Parse failed")
	}

	// A birth year of 1990 and 2005 both match the same month/day query.
	for _, stored := range []string{"1990-03-08", "2005-03-08", "1985-03-08"} {
		if !dm.MatchesStored(stored) {
			t.Errorf("MatchesStored(%q) = false, want true", stored)
		}
	}
	for _, stored := range []string{"1990-03-09", "1990-04-08", "", "03/08", "1990.03.08", "1990/03-08"} {
		if dm.MatchesStored(stored) {
			t.Errorf("MatchesStored(%q) = true, want false", stored)
		}
	}
}

func TestMatchesStored_MonthDayOnly(t *testing.T) {
	dm, _ := Parse("2024-01-01")
	if !dm.MatchesStored("01-01") {
		t.Error("MM-DD stored value should match")
	}
	if dm.MatchesStored("02-01") {
		t.Error("wrong month should not match")
	}
	if dm.MatchesStored("01/01") {
		t.Error("wrong separator should not match")
	}
}

func TestDottedUpon(t *testing.T) {
	dm, _ := Parse("2025-03-08")
	if got := dm.DottedUpon("2025"); got != "08.03.2025" {
		t.Errorf("DottedUpon = %q, want 08.03.2025", got)
	}
}
