package domain

// EventKind discriminates the two recurring event sources.
type EventKind string

const (
	EventBirthday EventKind = "birthday"
	EventHoliday  EventKind = "holiday"
)

// Event is one occurrence of a recurring calendar event on a concrete date.
type Event struct {
	Kind  EventKind `json:"kind"`
	Label string    `json:"label"` // free-form event type, e.g. "день рождения", "новый год"
	Date  string    `json:"date"`  // DD.MM.YYYY presentation date
	// HolidayID is set for holiday events only.
	HolidayID int64 `json:"holiday_id,omitempty"`
}

// GenerationRequest carries everything the content pipeline needs for one
// (person, event) pair. It is assembled at dispatch time and never persisted.
type GenerationRequest struct {
	EventDate   string   `json:"event_date"` // DD.MM.YYYY
	EventType   string   `json:"event_type"`
	ClientName  string   `json:"client_name,omitempty"`
	CompanyName string   `json:"company_name,omitempty"`
	Position    string   `json:"position,omitempty"`
	Segment     Segment  `json:"client_segment"`
	Tone        Tone     `json:"tone"`
	Preferences []string `json:"preferences,omitempty"`
	LastTopic   string   `json:"last_topic,omitempty"` // topic of the most recent interaction
}

// QualityScore holds the four sincerity-rubric dimensions, each in [0,1].
type QualityScore struct {
	Sincerity       float64 `json:"sincerity_score"`
	Warmth          float64 `json:"warmth_score"`
	Personalization float64 `json:"personalization_score"`
	Authenticity    float64 `json:"authenticity_score"`
}

// Composite reduces the four dimensions to the weighted acceptance score.
// Sincerity dominates at 0.4; the remaining dimensions weigh 0.2 each.
func (q QualityScore) Composite() float64 {
	return q.Sincerity*0.4 + q.Warmth*0.2 + q.Personalization*0.2 + q.Authenticity*0.2
}

// Passes reports whether the composite score meets the given threshold.
func (q QualityScore) Passes(threshold float64) bool {
	return q.Composite() >= threshold
}

// NeutralScore is returned when scoring fails entirely; scoring failure must
// never block delivery, so all dimensions default to the midpoint.
func NeutralScore() QualityScore {
	return QualityScore{Sincerity: 0.5, Warmth: 0.5, Personalization: 0.5, Authenticity: 0.5}
}

// Greeting is the finished output of the content pipeline for one pair.
type Greeting struct {
	PersonID int64         `json:"person_id"`
	ChatID   string        `json:"chat_id"`
	Event    Event         `json:"event"`
	Text     string        `json:"text"`
	Image    []byte        `json:"-"`
	Score    *QualityScore `json:"score,omitempty"` // nil when evaluation was disabled
}
