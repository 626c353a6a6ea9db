package resource

import (
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("resource not found")
	ErrEmptyName        = errors.New("name cannot be empty")
	ErrInvalidBranch    = errors.New("invalid branch_id")
	ErrInvalidKind      = errors.New("invalid resource kind")
	ErrInvalidPrice     = errors.New("court price per hour must be positive")
	ErrCourtTypeMissing = errors.New("court type is required for courts")
	ErrKindMismatch     = errors.New("resource is not of the expected kind")
)

type Kind string

const (
	KindCourt Kind = "court"
	KindStaff Kind = "staff"
)

var ValidKinds = []Kind{KindCourt, KindStaff}

// Resource is a bookable unit: a court or a staff member.
type Resource struct {
	ID           string
	BranchID     string
	Kind         Kind
	Name         string
	CourtType    string // e.g. "badminton", "tennis"; empty for staff
	PricePerHour int64  // Courts only
	CreatedAt    time.Time
}

// Filter defines parameters for listing resources.
type Filter struct {
	BranchID  string
	Kind      Kind
	CourtType string
	Page      int
	PageSize  int
}
