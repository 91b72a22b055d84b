// Package model contains simple struct definitions shared across packages.
package model

import (
	"time"
)

// RoleAdmin may act in place of any reviewer role and is the only role allowed
// to sign off a whole process.
const RoleAdmin = "ADMIN"

// User is a directory entry. Only role labels are modeled; sessions and
// permissions live outside the core.
type User struct {
	ID           string    `json:"id"`
	FullName     string    `json:"fullName"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Active       bool      `json:"active"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"createdAt"`
}

// HasRole reports whether the user carries the given role code.
func (u *User) HasRole(code string) bool {
	for _, r := range u.Roles {
		if r == code {
			return true
		}
	}
	return false
}

// ProcessType is an institutional category of recurring workflow, e.g. a
// teacher evaluation. Types are deactivated rather than deleted because
// instances keep referencing them.
type ProcessType struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Active      bool      `json:"active"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ProcessTemplate is a versioned, ordered step definition set for one process
// type. Publishing freezes the step list; only published templates can be
// instantiated.
type ProcessTemplate struct {
	ID            string    `json:"id"`
	ProcessTypeID string    `json:"processTypeId"`
	Description   string    `json:"description"`
	Version       int       `json:"version"`
	Published     bool      `json:"published"`
	CreatedBy     string    `json:"createdBy"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// StepTemplate is one ordered entry of a template. Ord is unique and
// contiguous 1..N within its template.
type StepTemplate struct {
	ID           string    `json:"id"`
	TemplateID   string    `json:"templateId"`
	Ord          int       `json:"ord"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Required     bool      `json:"required"`
	ReviewerRole string    `json:"reviewerRole"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ProcessInstance is one concrete execution of a template for a (year, month)
// period. Version is the optimistic-lock counter bumped on every mutation of
// the instance or any of its steps.
type ProcessInstance struct {
	ID                string            `json:"id"`
	ProcessTypeID     string            `json:"processTypeId"`
	TemplateID        string            `json:"templateId"`
	Year              int               `json:"year"`
	Month             int               `json:"month"`
	State             ProcessState      `json:"state"`
	ResponsibleUserID string            `json:"responsibleUserId"`
	Title             string            `json:"title,omitempty"`
	Comment           string            `json:"comment,omitempty"`
	Archived          bool              `json:"archived"`
	Tags              []string          `json:"tags,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	Version           int64             `json:"version"`
	DueAt             *time.Time        `json:"dueAt,omitempty"`
	CreatedBy         string            `json:"createdBy"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
	ClosedAt          *time.Time        `json:"closedAt,omitempty"`
}

// StepInstance is one stage of an instance's workflow. Ord, Title, Required
// and ReviewerRole are snapshotted from the step template at instantiation;
// later template edits never touch existing instances.
type StepInstance struct {
	ID                string     `json:"id"`
	ProcessInstanceID string     `json:"processInstanceId"`
	StepTemplateID    string     `json:"stepTemplateId"`
	Ord               int        `json:"ord"`
	Title             string     `json:"title"`
	Required          bool       `json:"required"`
	Status            StepStatus `json:"status"`
	Comment           string     `json:"comment,omitempty"`
	ReviewerRole      string     `json:"reviewerRole"`
	ReviewedBy        string     `json:"reviewedBy,omitempty"`
	DueAt             *time.Time `json:"dueAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// FileVersion records one upload to a step. Versions are monotonic per step,
// starting at 1, and never mutated or deleted once written. TextKey points at
// extracted plain text produced by the worker and is the only field set after
// creation.
type FileVersion struct {
	ID             string    `json:"id"`
	StepInstanceID string    `json:"stepInstanceId"`
	Version        int       `json:"version"`
	Filename       string    `json:"filename"`
	SizeBytes      int64     `json:"sizeBytes"`
	SHA256         string    `json:"sha256"`
	ObjectKey      string    `json:"-"`
	TextKey        *string   `json:"-"`
	UploadedBy     string    `json:"uploadedBy"`
	UploadedAt     time.Time `json:"uploadedAt"`
	Comment        string    `json:"comment,omitempty"`
}

// ProcessProgress is derived on demand from an instance's steps and never
// stored.
type ProcessProgress struct {
	ProcessInstanceID string `json:"processInstanceId"`
	TotalSteps        int    `json:"totalSteps"`
	CompletedSteps    int    `json:"completedSteps"`
	ProgressPercent   int    `json:"progressPercent"`
}

// ProcessFilter narrows instance listings.
type ProcessFilter struct {
	ProcessTypeID     string
	Year              int
	Month             int
	State             ProcessState
	ResponsibleUserID string
	Archived          *bool
}

// ArchiveStatus tracks a background archival run.
type ArchiveStatus string

const (
	ArchiveInProgress ArchiveStatus = "IN_PROGRESS"
	ArchiveCompleted  ArchiveStatus = "COMPLETED"
	ArchiveFailed     ArchiveStatus = "FAILED"
)

// ArchiveOperation records one date-range archival of closed instances.
type ArchiveOperation struct {
	ID             string        `json:"id"`
	UserID         string        `json:"userId"`
	DateFrom       time.Time     `json:"dateFrom"`
	DateTo         time.Time     `json:"dateTo"`
	TotalProcesses int           `json:"totalProcesses"`
	Status         ArchiveStatus `json:"status"`
	CreatedAt      time.Time     `json:"createdAt"`
	CompletedAt    *time.Time    `json:"completedAt,omitempty"`
}

// ExportLog records one generated CSV export.
type ExportLog struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ObjectKey string    `json:"objectKey"`
	SizeBytes int64     `json:"sizeBytes"`
	CreatedAt time.Time `json:"createdAt"`
}

// AuditEntry is one row of the append-only audit trail.
type AuditEntry struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actorId"`
	Action     string    `json:"action"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId"`
	Details    string    `json:"details,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Notification is a message queued for a user by the notification sink.
type Notification struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	Type              string    `json:"type"`
	Title             string    `json:"title"`
	Body              string    `json:"body"`
	Read              bool      `json:"read"`
	ProcessInstanceID string    `json:"processInstanceId,omitempty"`
	StepInstanceID    string    `json:"stepInstanceId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}
