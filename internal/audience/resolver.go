// Package audience maps a holiday's free-text description to the subset of
// the roster that should receive it.
//
// The cascading keyword checks are kept as an explicit ordered rule table so
// the first-match-wins semantics are visible and extensible rather than
// buried in a switch.
package audience

import (
	"strings"

	"github.com/atlasbank/greeting-engine/internal/domain"
)

// rule pairs a marker predicate over the holiday with a person filter.
// Rules are evaluated in declaration order; the first whose predicate fires
// selects the recipients.
type rule struct {
	name    string
	matches func(descLower, nameLower string) bool
	selects func(domain.Person) bool
}

var itInterestMarkers = []string{"кибербезопасность", "технологии", "гаджеты"}

var rules = []rule{
	{
		name:    "everyone",
		matches: func(d, _ string) bool { return strings.Contains(d, "для всех") },
		selects: func(domain.Person) bool { return true },
	},
	{
		name:    "men",
		matches: func(d, _ string) bool { return strings.Contains(d, "для мужчин") },
		selects: func(p domain.Person) bool { return p.Gender == domain.GenderMale },
	},
	{
		name:    "women",
		matches: func(d, _ string) bool { return strings.Contains(d, "для женщин") },
		selects: func(p domain.Person) bool { return p.Gender == domain.GenderFemale },
	},
	{
		name:    "employees",
		matches: func(d, _ string) bool { return strings.Contains(d, "для сотрудников") },
		selects: func(p domain.Person) bool { return p.Role == domain.RoleEmployee },
	},
	{
		name:    "clients",
		matches: func(d, _ string) bool { return strings.Contains(d, "для клиентов") },
		selects: func(p domain.Person) bool { return p.Role == domain.RoleClient },
	},
	{
		name: "it",
		matches: func(d, n string) bool {
			return strings.Contains(d, "it") ||
				strings.Contains(d, "технолог") ||
				strings.Contains(d, "кибербезопасност") ||
				strings.Contains(d, "гаджет") ||
				strings.Contains(n, "кибербезопасност")
		},
		selects: hasITInterests,
	},
}

func hasITInterests(p domain.Person) bool {
	if strings.Contains(strings.ToUpper(p.Interests), "IT") {
		return true
	}
	lower := strings.ToLower(p.Interests)
	for _, marker := range itInterestMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Resolve returns the holiday's recipients drawn from the given roster.
//
// People without a bound chat id are never eligible, whatever the rule says.
// When no rule matches the description the result is empty: a holiday whose
// audience cannot be determined is skipped rather than broadcast.
// Each holiday is resolved independently of any other on the same date.
func Resolve(h domain.Holiday, roster []domain.Person) []domain.Person {
	descLower := strings.ToLower(h.Description)
	nameLower := strings.ToLower(h.Name)

	for _, r := range rules {
		if !r.matches(descLower, nameLower) {
			continue
		}
		var out []domain.Person
		for _, p := range roster {
			if p.Activated() && r.selects(p) {
				out = append(out, p)
			}
		}
		return out
	}
	return nil
}
