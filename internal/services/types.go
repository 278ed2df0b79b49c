package services

import "time"

type Role string

const (
	RoleApplicant Role = "applicant"
	RoleReviewer  Role = "reviewer"
)

// Principal is the authenticated caller of a service operation.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

func (p Principal) IsReviewer() bool { return p.Role == RoleReviewer }

// Cycle is a time-boxed recruitment period. Start and end are inclusive.
type Cycle struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
}

func (c *Cycle) IsActive(now time.Time) bool {
	return !now.Before(c.StartTime) && !now.After(c.EndTime)
}

type Question struct {
	ID          string       `json:"id"`
	CycleID     string       `json:"cycle_id"`
	DisplayName string       `json:"display_name"`
	Description string       `json:"description,omitempty"`
	Type        QuestionType `json:"type"`
	Required    bool         `json:"required"`
	Order       int          `json:"order"`
	Placeholder string       `json:"placeholder,omitempty"`
	Options     []string     `json:"options,omitempty"`
	MinLength   *int         `json:"min_length,omitempty"`
	MaxLength   *int         `json:"max_length,omitempty"`
}

func (q *Question) OrderKey() string { return q.ID }

type Phase struct {
	ID          string `json:"id"`
	CycleID     string `json:"cycle_id"`
	DisplayName string `json:"display_name"`
	Order       int    `json:"order"`
}

func (p *Phase) OrderKey() string { return p.ID }

// Application is one applicant's submission for a cycle. An empty PhaseID means unphased.
type Application struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	CycleID     string     `json:"cycle_id"`
	Submitted   bool       `json:"submitted"`
	PhaseID     string     `json:"phase_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}

// Response values are always strings: "true"/"false" for booleans, the encoded
// selection for checkboxes and the stored object key for file uploads.
type Response struct {
	ID            string    `json:"id"`
	QuestionID    string    `json:"question_id"`
	ApplicationID string    `json:"application_id"`
	Value         string    `json:"value"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type User struct {
	ID        string
	Email     string
	PassHash  []byte
	Role      Role
	CreatedAt time.Time
}

type AuditEntry struct {
	Time   time.Time `json:"time"`
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
	Target string    `json:"target"`
	Note   string    `json:"note,omitempty"`
}
