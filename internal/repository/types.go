package repository

import "time"

// ── Roles ────────────────────────────────────────────────────────────────────

// Role is a user's organisational role.
type Role string

const (
	RoleEmployee   Role = "employee"
	RoleSupervisor Role = "supervisor"
	RoleManager    Role = "manager"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

var roleRank = map[Role]int{
	RoleEmployee:   1,
	RoleSupervisor: 2,
	RoleManager:    3,
	RoleAdmin:      4,
	RoleSuperAdmin: 5,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// IsAdmin is true for admin and super_admin.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Rank orders roles from employee (1) to super_admin (5); unknown roles are 0.
func (r Role) Rank() int {
	return roleRank[r]
}

// ── Profiles ─────────────────────────────────────────────────────────────────

// Profile is one user's role and reporting relationships.
type Profile struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	FullName        string    `json:"full_name"`
	Role            Role      `json:"role"`
	ReportsToID     *string   `json:"reports_to_id,omitempty"`
	SupervisorID    *string   `json:"supervisor_id,omitempty"`
	ManagerID       *string   `json:"manager_id,omitempty"`
	FinalApproverID *string   `json:"final_approver_id,omitempty"`
	Department      *string   `json:"department,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// RelationIDs returns the non-empty chain fields in declaration order.
func (p *Profile) RelationIDs() []string {
	var ids []string
	for _, ref := range []*string{p.ReportsToID, p.SupervisorID, p.ManagerID, p.FinalApproverID} {
		if ref != nil && *ref != "" {
			ids = append(ids, *ref)
		}
	}
	return ids
}

// RelatesTo reports whether any chain field of p points at userID.
func (p *Profile) RelatesTo(userID string) bool {
	for _, id := range p.RelationIDs() {
		if id == userID {
			return true
		}
	}
	return false
}

// ── Timesheets ───────────────────────────────────────────────────────────────

// TimesheetStatus is the lifecycle state of a timesheet.
type TimesheetStatus string

const (
	StatusDraft     TimesheetStatus = "draft"
	StatusSubmitted TimesheetStatus = "submitted"
	StatusApproved  TimesheetStatus = "approved"
	StatusRejected  TimesheetStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s TimesheetStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Timesheet is one user's hours for the week ending on WeekEnding.
type Timesheet struct {
	ID               string            `json:"id"`
	UserID           string            `json:"user_id"`
	WeekEnding       time.Time         `json:"week_ending"`
	Status           TimesheetStatus   `json:"status"`
	SubmittedAt      *time.Time        `json:"submitted_at,omitempty"`
	EmployeeSignedAt *time.Time        `json:"employee_signed_at,omitempty"`
	ApprovedByID     *string           `json:"approved_by_id,omitempty"`
	ApprovedAt       *time.Time        `json:"approved_at,omitempty"`
	RejectedByID     *string           `json:"rejected_by_id,omitempty"`
	RejectedAt       *time.Time        `json:"rejected_at,omitempty"`
	RejectionReason  *string           `json:"rejection_reason,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	Entries          []*TimesheetEntry `json:"entries"`
}

// TotalHours sums the entry hours.
func (t *Timesheet) TotalHours() float64 {
	var total float64
	for _, e := range t.Entries {
		total += e.Hours
	}
	return total
}

// TimesheetEntry is a block of hours worked on one day.
type TimesheetEntry struct {
	ID            string    `json:"id"`
	TimesheetID   string    `json:"timesheet_id"`
	WorkDate      time.Time `json:"work_date"`
	Hours         float64   `json:"hours"`
	SiteID        *string   `json:"site_id,omitempty"`
	PurchaseOrder *string   `json:"purchase_order,omitempty"`
	Activity      *string   `json:"activity,omitempty"`
	Notes         *string   `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// TimesheetFilter narrows timesheet listings. Nil UserIDs means all users;
// an empty non-nil slice matches nothing.
type TimesheetFilter struct {
	UserIDs  []string
	Status   *TimesheetStatus
	FromWeek *time.Time
	ToWeek   *time.Time
	Limit    int
	Offset   int
}

// ── Signatures ───────────────────────────────────────────────────────────────

// SignerRole is the capacity in which an approver signed.
type SignerRole string

const (
	SignerSupervisor    SignerRole = "supervisor"
	SignerManager       SignerRole = "manager"
	SignerFinalApprover SignerRole = "final_approver"
)

// Signature records one approver's sign-off on a timesheet.
type Signature struct {
	ID          string     `json:"id"`
	TimesheetID string     `json:"timesheet_id"`
	SignerID    string     `json:"signer_id"`
	SignerRole  SignerRole `json:"signer_role"`
	SignedAt    time.Time  `json:"signed_at"`
}

// ── Sites ────────────────────────────────────────────────────────────────────

// Site is a work location users can be assigned to.
type Site struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Code *string `json:"code,omitempty"`
}

// ── Audit ────────────────────────────────────────────────────────────────────

// AuditEntry is one immutable record in a timesheet's audit trail.
type AuditEntry struct {
	ID           string                 `json:"id"`
	TimesheetID  string                 `json:"timesheet_id"`
	Action       string                 `json:"action"` // submitted | signed | approved | rejected | recalled | ...
	PerformedBy  string                 `json:"performed_by"`
	PerformedAt  time.Time              `json:"performed_at"`
	StatusBefore *TimesheetStatus       `json:"status_before,omitempty"`
	StatusAfter  *TimesheetStatus       `json:"status_after,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}
