package domain

import "time"

// TimeFormat is the fixed-width UTC layout used for every persisted timestamp.
// Fixed width keeps lexical and chronological order identical.
const TimeFormat = "2006-01-02T15:04:05.000000Z"

// FormatTime renders t in TimeFormat.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

type Role string

const (
	RoleOperator Role = "OPERATOR"
	RoleExecutor Role = "EXECUTOR"
	RoleAdmin    Role = "ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOperator, RoleExecutor, RoleAdmin:
		return true
	}
	return false
}

type Status string

const (
	StatusNew        Status = "NEW"
	StatusInProgress Status = "IN_PROGRESS"
	StatusNeedsInfo  Status = "NEEDS_INFO"
	StatusRejected   Status = "REJECTED"
	StatusDone       Status = "DONE"
)

// Statuses lists every case status in lifecycle order.
var Statuses = []Status{StatusNew, StatusInProgress, StatusNeedsInfo, StatusRejected, StatusDone}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// Terminal reports whether no further non-admin transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusRejected
}

// Actor is the resolved identity performing an operation.
type Actor struct {
	ID     string `json:"id"`
	Role   Role   `json:"role"`
	Active bool   `json:"active"`
}

type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	Role      Role   `json:"role" enum:"OPERATOR,EXECUTOR,ADMIN"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// Actor returns the identity triple for u.
func (u User) Actor() Actor {
	return Actor{ID: u.ID, Role: u.Role, Active: u.IsActive}
}

// Category and Channel share the reference-data shape.
type Category struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type Channel struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type CategoryAccess struct {
	ID         string `json:"id"`
	ExecutorID string `json:"executor_id"`
	CategoryID string `json:"category_id"`
	CreatedAt  string `json:"created_at" format:"date-time"`
	UpdatedAt  string `json:"updated_at" format:"date-time"`
}

type Case struct {
	ID             string  `json:"id"`
	PublicID       int     `json:"public_id"`
	CategoryID     string  `json:"category_id"`
	ChannelID      string  `json:"channel_id"`
	AuthorID       string  `json:"author_id"`
	ResponsibleID  *string `json:"responsible_id,omitempty"`
	Subcategory    *string `json:"subcategory,omitempty"`
	ApplicantName  string  `json:"applicant_name"`
	ApplicantPhone *string `json:"applicant_phone,omitempty"`
	ApplicantEmail *string `json:"applicant_email,omitempty"`
	Summary        string  `json:"summary"`
	Status         Status  `json:"status" enum:"NEW,IN_PROGRESS,NEEDS_INFO,REJECTED,DONE"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	UpdatedAt      string  `json:"updated_at" format:"date-time"`
}

// Responsible returns the responsible actor id or "".
func (c Case) Responsible() string {
	if c.ResponsibleID == nil {
		return ""
	}
	return *c.ResponsibleID
}

type StatusHistoryEntry struct {
	ID          string  `json:"id"`
	CaseID      string  `json:"case_id"`
	Seq         int     `json:"seq"`
	ChangedByID string  `json:"changed_by_id"`
	OldStatus   *Status `json:"old_status,omitempty"`
	NewStatus   Status  `json:"new_status"`
	ChangedAt   string  `json:"changed_at" format:"date-time"`
}

type Comment struct {
	ID         string `json:"id"`
	CaseID     string `json:"case_id"`
	AuthorID   string `json:"author_id"`
	Text       string `json:"text"`
	IsInternal bool   `json:"is_internal"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}
