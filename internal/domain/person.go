package domain

// Role enumerates the roster membership types.
type Role string

const (
	RoleEmployee Role = "employee"
	RoleClient   Role = "client"
)

// Gender values as stored in the roster.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// Person is a single roster member eligible to receive greetings.
//
// BirthDate and StartDate are stored as YYYY-MM-DD strings; matching against
// a calendar day compares only the month and day fragments (positions 6-7
// and 9-10), never the year. ChatID is empty until the person activates via
// their referral code, and is never rebound afterwards. ReferralCode is
// unique across the whole roster at all times.
type Person struct {
	ID                 int64  `json:"id" db:"id"`
	Name               string `json:"name" db:"name"`
	Role               Role   `json:"user_type" db:"user_type"`
	Gender             Gender `json:"gender" db:"gender"`
	Age                int    `json:"age" db:"age"`
	Interests          string `json:"interests" db:"interests"`
	BirthDate          string `json:"birth_date" db:"birth_date"`
	StartDate          string `json:"start_date_bank" db:"start_date_bank"`
	YearsCollaboration int    `json:"years_collaboration" db:"years_collaboration"`
	ChatID             string `json:"telegram_chat_id" db:"telegram_chat_id"`
	ReferralCode       string `json:"referral_code" db:"referral_code"`

	// Optional CRM enrichment used only by the content pipeline.
	CompanyName string   `json:"company_name,omitempty" db:"company_name"`
	Position    string   `json:"position,omitempty" db:"position"`
	Segment     Segment  `json:"segment,omitempty" db:"segment"`
	Preferences []string `json:"preferences,omitempty" db:"-"`
	LastTopic   string   `json:"last_topic,omitempty" db:"last_topic"`
}

// Activated reports whether the person has a bound messaging identity.
// Only activated people are eligible greeting recipients.
func (p Person) Activated() bool { return p.ChatID != "" }

// Segment is the coarse customer-value tier influencing prompt phrasing.
type Segment string

const (
	SegmentVIP      Segment = "VIP"
	SegmentNew      Segment = "новый"
	SegmentLoyal    Segment = "лояльный"
	SegmentStandard Segment = "стандартный"
)

// Tone selects the register of the generated greeting.
type Tone string

const (
	ToneFormal   Tone = "официальный"
	ToneFriendly Tone = "дружеский"
	ToneCreative Tone = "креативный"
)
