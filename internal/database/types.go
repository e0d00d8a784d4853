package database

import (
	"time"
)

// Complaint severity levels
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Complaint statuses. Escalated is reachable from any non-terminal status;
// Resolved is terminal.
const (
	StatusSubmitted   = "submitted"
	StatusUnderReview = "under_review"
	StatusAssigned    = "assigned"
	StatusInProgress  = "in_progress"
	StatusResolved    = "resolved"
	StatusEscalated   = "escalated"
)

// Notification types
const (
	NotificationSubmission   = "submission"
	NotificationStatusChange = "status_change"
	NotificationEscalation   = "escalation"
	NotificationResolution   = "resolution"
)

// ValidSeverities lists the severity values a rule or complaint may carry.
var ValidSeverities = []string{SeverityLow, SeverityMedium, SeverityHigh}

// Complaint represents a citizen complaint together with the joined
// user/category/authority context the escalation engine needs.
type Complaint struct {
	ID                  string     `db:"id" json:"id"`
	TrackingCode        string     `db:"tracking_code" json:"tracking_code"`
	UserID              string     `db:"user_id" json:"user_id"`
	CategoryID          string     `db:"category_id" json:"category_id"`
	Title               string     `db:"title" json:"title"`
	Description         string     `db:"description" json:"description"`
	Severity            string     `db:"severity" json:"severity"`
	Status              string     `db:"status" json:"status"`
	Latitude            *float64   `db:"latitude" json:"latitude,omitempty"`
	Longitude           *float64   `db:"longitude" json:"longitude,omitempty"`
	AssignedAuthorityID *string    `db:"assigned_authority_id" json:"assigned_authority_id,omitempty"`
	ResolvedAt          *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`

	// Joined context, populated by the eligibility and lookup queries
	UserName      string  `db:"user_name" json:"user_name,omitempty"`
	UserEmail     string  `db:"user_email" json:"user_email,omitempty"`
	UserPhone     *string `db:"user_phone" json:"user_phone,omitempty"`
	CategoryName  string  `db:"category_name" json:"category_name,omitempty"`
	AuthorityName *string `db:"authority_name" json:"authority_name,omitempty"`
}

// IsTerminal reports whether the complaint is in a terminal status.
func (c *Complaint) IsTerminal() bool {
	return c.Status == StatusResolved
}

// EscalationRule defines the SLA threshold for a severity level. At most one
// active rule may exist per severity; the partial unique index in the schema
// enforces this.
type EscalationRule struct {
	ID                    string    `db:"id" json:"id"`
	Severity              string    `db:"severity" json:"severity"`
	TimeLimitHours        int       `db:"time_limit_hours" json:"time_limit_hours"`
	EscalationAuthorityID *string   `db:"escalation_authority_id" json:"escalation_authority_id,omitempty"`
	Active                bool      `db:"active" json:"active"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time `db:"updated_at" json:"updated_at"`
}

// Authority is a government department that can own complaints.
type Authority struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// StatusHistoryEntry is an append-only record of a status transition.
// OldStatus is nil for the initial submission entry; ActorID is nil for
// system-initiated transitions.
type StatusHistoryEntry struct {
	ID          string    `db:"id" json:"id"`
	ComplaintID string    `db:"complaint_id" json:"complaint_id"`
	OldStatus   *string   `db:"old_status" json:"old_status,omitempty"`
	NewStatus   string    `db:"new_status" json:"new_status"`
	Remarks     string    `db:"remarks" json:"remarks"`
	ActorID     *string   `db:"actor_id" json:"actor_id,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// EscalationLogEntry is the append-only audit trail of authority handovers,
// kept separate from status history for reporting.
type EscalationLogEntry struct {
	ID              string    `db:"id" json:"id"`
	ComplaintID     string    `db:"complaint_id" json:"complaint_id"`
	FromAuthorityID *string   `db:"from_authority_id" json:"from_authority_id,omitempty"`
	ToAuthorityID   string    `db:"to_authority_id" json:"to_authority_id"`
	Reason          string    `db:"reason" json:"reason"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// Notification is a user-facing notification row. Delivery is polled; the
// only mutation after creation is flipping the read flag.
type Notification struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	ComplaintID *string   `db:"complaint_id" json:"complaint_id,omitempty"`
	Title       string    `db:"title" json:"title"`
	Message     string    `db:"message" json:"message"`
	Type        string    `db:"type" json:"type"`
	IsRead      bool      `db:"is_read" json:"is_read"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// SeverityCount is an aggregation bucket keyed by severity.
type SeverityCount struct {
	Severity string `db:"severity" json:"severity"`
	Count    int    `db:"count" json:"count"`
}

// CategoryCount is an aggregation bucket keyed by category.
type CategoryCount struct {
	CategoryID   string `db:"category_id" json:"category_id"`
	CategoryName string `db:"category_name" json:"category_name"`
	Count        int    `db:"count" json:"count"`
}

// EscalationStats aggregates escalation log counts for dashboards.
type EscalationStats struct {
	Today      int             `json:"today"`
	ThisWeek   int             `json:"this_week"`
	ThisMonth  int             `json:"this_month"`
	Total      int             `json:"total"`
	BySeverity []SeverityCount `json:"by_severity"`
	ByCategory []CategoryCount `json:"by_category"`
}

// SLAComplianceEntry is one severity row of the SLA compliance report.
type SLAComplianceEntry struct {
	Severity           string   `db:"severity" json:"severity"`
	ResolvedCount      int      `db:"resolved_count" json:"resolved_count"`
	EscalatedCount     int      `db:"escalated_count" json:"escalated_count"`
	AvgResolutionHours *float64 `db:"avg_resolution_hours" json:"avg_resolution_hours,omitempty"`
	MaxResolutionHours *float64 `db:"max_resolution_hours" json:"max_resolution_hours,omitempty"`
}

// SLAComplianceReport covers a trailing window of resolved and escalated
// complaints per severity.
type SLAComplianceReport struct {
	WindowStart time.Time            `json:"window_start"`
	WindowEnd   time.Time            `json:"window_end"`
	Entries     []SLAComplianceEntry `json:"entries"`
}
