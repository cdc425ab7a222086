package models

// Role is a caller's fixed permission set.
type Role string

const (
	RoleSubmitter Role = "SUBMITTER"
	RoleApprover  Role = "APPROVER"
	RoleAdmin     Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleSubmitter, RoleApprover, RoleAdmin:
		return true
	}
	return false
}

// CanApprove reports whether the role may approve, reject and mark invoices paid.
func (r Role) CanApprove() bool {
	return r == RoleApprover || r == RoleAdmin
}

// User is a resolved caller identity.
type User struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	Email      string `json:"email" yaml:"email"`
	Role       Role   `json:"role" yaml:"role"`
	OfficeID   string `json:"office_id,omitempty" yaml:"office_id"`     // empty for ADMIN
	OfficeName string `json:"office_name,omitempty" yaml:"office_name"` // filled from the directory
}

// Summary returns the embeddable form of the user.
func (u User) Summary() UserSummary {
	return UserSummary(u)
}

// UserSummary is the copy of a user embedded in invoice records.
type UserSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       Role   `json:"role"`
	OfficeID   string `json:"office_id,omitempty"`
	OfficeName string `json:"office_name,omitempty"`
}

// Office is an organizational unit that partitions invoice visibility.
type Office struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Code     string `json:"code,omitempty" yaml:"code"`
	IsActive bool   `json:"is_active" yaml:"is_active"`
}

// Ref returns the id+name pair stored on invoices.
func (o Office) Ref() OfficeRef {
	return OfficeRef{ID: o.ID, Name: o.Name}
}

// OfficeRef is the office scoping key carried by an invoice.
type OfficeRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Category is an expense category referenced by id from invoices.
type Category struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	IsActive bool   `json:"is_active" yaml:"is_active"`
}
