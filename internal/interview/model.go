package interview

import (
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

const (
	PriorityHigh   = "High"
	PriorityMedium = "Medium"
	PriorityLow    = "Low"
)

// Interview is a scheduled interview owned by a user identity.
// Done only ever moves false -> true.
type Interview struct {
	ID         uint64 `gorm:"primaryKey" bson:"_id" json:"id"`
	OwnerID    string `gorm:"type:text;index;not null" bson:"owner_id" json:"owner_id"`
	OwnerEmail string `gorm:"type:text;index;not null" bson:"owner_email" json:"owner_email"`
	OwnerName  string `gorm:"type:text;not null;default:''" bson:"owner_name" json:"owner_name"`

	Company       string    `gorm:"type:text;not null" bson:"company" json:"company"`
	JobRole       string    `gorm:"type:text;not null" bson:"job_role" json:"job_role"`
	ScheduledDate time.Time `gorm:"type:date;not null" bson:"scheduled_date" json:"scheduled_date"`
	ScheduledTime string    `gorm:"type:text;not null" bson:"scheduled_time" json:"scheduled_time"` // "HH:MM", local
	Location      string    `gorm:"type:text;not null;default:''" bson:"location" json:"location"`
	JobLink       string    `gorm:"type:text;not null;default:''" bson:"job_link" json:"job_link"`
	Priority      string    `gorm:"type:text;not null;default:'Medium'" bson:"priority" json:"priority"`
	Done          bool      `gorm:"not null;default:false" bson:"done" json:"done"`

	// CallID is the active voice session for this interview, if any.
	CallID *string `gorm:"type:text;index" bson:"call_id,omitempty" json:"call_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" bson:"updated_at" json:"updated_at"`
}

// StartsAt combines the stored date and wall-clock time in loc.
func (iv Interview) StartsAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	clock, err := parseClock(iv.ScheduledTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("interview %d: %w", iv.ID, err)
	}
	y, m, d := iv.ScheduledDate.Date()
	return time.Date(y, m, d, clock.Hour(), clock.Minute(), clock.Second(), 0, loc), nil
}

func parseClock(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04", "15:04:05", "3:04 PM", "3:04PM"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid scheduled time %q", s)
}

// NormalizePriority maps free-form input onto High/Medium/Low.
func NormalizePriority(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityMedium
	}
}

const (
	PhasePlaceholder = "placeholder"
	PhaseProvider    = "provider"
)

// Result is the normalized outcome of one voice session. One row per call id.
type Result struct {
	ID          uint64  `gorm:"primaryKey" bson:"-" json:"-"`
	CallID      string  `gorm:"type:text;uniqueIndex;not null" bson:"call_id" json:"call_id"`
	OwnerID     string  `gorm:"type:text;index;not null;default:''" bson:"owner_id" json:"owner_id,omitempty"`
	InterviewID *uint64 `gorm:"index" bson:"interview_id,omitempty" json:"interview_id,omitempty"`
	Phase       string  `gorm:"type:text;not null;default:'provider'" bson:"phase" json:"phase"`

	Summary       string         `gorm:"type:text;not null;default:''" bson:"summary" json:"summary"`
	Sentiment     string         `gorm:"type:text;not null;default:''" bson:"sentiment" json:"sentiment"`
	Transcript    string         `gorm:"type:text;not null;default:''" bson:"transcript" json:"transcript"`
	RecordingRef  string         `gorm:"type:text;not null;default:''" bson:"recording_ref" json:"recording_ref"`
	ExtractedInfo datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'::jsonb" bson:"extracted_info" json:"extracted_info"`
	Session       datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'::jsonb" bson:"session" json:"session,omitempty"`
	RawPayload    datatypes.JSON `gorm:"type:jsonb" bson:"raw_payload,omitempty" json:"-"`

	// PreviousCallIDs records placeholders rewritten into this row. Never a lookup key.
	PreviousCallIDs pq.StringArray `gorm:"type:text[];not null;default:'{}'" bson:"previous_call_ids" json:"previous_call_ids,omitempty"`

	ResultTimestamp time.Time `gorm:"type:timestamptz;not null;default:now()" bson:"result_timestamp" json:"result_timestamp"`
	CreatedAt       time.Time `gorm:"not null;default:now()" bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time `gorm:"index;not null;default:now()" bson:"updated_at" json:"updated_at"`
}

// SessionMetadata is what the client supplies when a voice session begins.
type SessionMetadata struct {
	InterviewID *uint64 `json:"interview_id,omitempty"`
	Name        string  `json:"name,omitempty"`
	Education   string  `json:"education,omitempty"`
	Experience  string  `json:"experience,omitempty"`
	JobRole     string  `json:"job_role,omitempty"`
	CompanyName string  `json:"company_name,omitempty"`
}

// Owner is the identity the auth layer hands us for a request.
type Owner struct {
	ID    string
	Email string
	Name  string
}

func (Result) TableName() string { return "interview_results" }
