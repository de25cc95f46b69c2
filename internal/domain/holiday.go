package domain

// Holiday is a recurring, year-independent calendar event.
//
// DateFixed is stored either as "MM-DD" or as a full "YYYY-MM-DD"; matching
// always resolves it to exactly one (month, day) pair and ignores any stored
// year. Description is free text encoding the audience rule ("для всех",
// "для женщин", ...), evaluated by the audience resolver.
type Holiday struct {
	ID          int64  `json:"id" db:"id"`
	Name        string `json:"holiday_name" db:"holiday_name"`
	DateFixed   string `json:"date_fixed" db:"date_fixed"`
	Description string `json:"description" db:"description"`
}
