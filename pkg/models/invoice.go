package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the workflow state of an invoice.
type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusApproved        Status = "APPROVED"
	StatusRejected        Status = "REJECTED"
	StatusPaid            Status = "PAID"
)

// Statuses lists every workflow state in lifecycle order.
var Statuses = []Status{
	StatusDraft,
	StatusPendingApproval,
	StatusApproved,
	StatusRejected,
	StatusPaid,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// PaymentMethod is how an approved invoice was settled.
type PaymentMethod string

const (
	PaymentCheck        PaymentMethod = "CHECK"
	PaymentZelle        PaymentMethod = "ZELLE"
	PaymentBankTransfer PaymentMethod = "BANK_TRANSFER"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCheck, PaymentZelle, PaymentBankTransfer:
		return true
	}
	return false
}

// DefaultCurrency is applied on submit when an invoice carries none.
const DefaultCurrency = "USD"

// DateLayout is the ISO date format used for invoice, due and payment dates.
const DateLayout = "2006-01-02"

type Invoice struct {
	// Identity and scoping, fixed at creation
	ID          string      `json:"id"`
	SubmittedBy UserSummary `json:"submitted_by"`
	Office      OfficeRef   `json:"office"`

	// Financial fields
	VendorName    string          `json:"vendor_name"`
	InvoiceNumber string          `json:"invoice_number,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	InvoiceDate   string          `json:"invoice_date,omitempty"` // YYYY-MM-DD
	DueDate       string          `json:"due_date,omitempty"`     // YYYY-MM-DD
	CategoryID    string          `json:"category_id,omitempty"`
	Category      *Category       `json:"category,omitempty"` // display join only
	Description   string          `json:"description,omitempty"`
	FileURL       string          `json:"file_url"`

	// Workflow
	Status      Status     `json:"status"`
	Version     int        `json:"version"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Set once at creation from the extraction step (0.0-1.0)
	ExtractionConfidence *float64 `json:"extraction_confidence,omitempty"`

	// Rejection block, cleared on reopen
	RejectionComment string       `json:"rejection_comment,omitempty"`
	RejectedBy       *UserSummary `json:"rejected_by,omitempty"`
	RejectedAt       *time.Time   `json:"rejected_at,omitempty"`

	// Payment block, write-once
	PaymentMethod    PaymentMethod `json:"payment_method,omitempty"`
	PaymentReference string        `json:"payment_reference,omitempty"`
	PaymentDate      string        `json:"payment_date,omitempty"` // YYYY-MM-DD
	PaidBy           *UserSummary  `json:"paid_by,omitempty"`
	PaidAt           *time.Time    `json:"paid_at,omitempty"`
}

// Clone returns a deep copy so callers never share pointer fields with the store.
func (inv Invoice) Clone() Invoice {
	out := inv
	out.SubmittedAt = cloneTime(inv.SubmittedAt)
	out.RejectedAt = cloneTime(inv.RejectedAt)
	out.PaidAt = cloneTime(inv.PaidAt)
	if inv.Category != nil {
		c := *inv.Category
		out.Category = &c
	}
	if inv.ExtractionConfidence != nil {
		v := *inv.ExtractionConfidence
		out.ExtractionConfidence = &v
	}
	if inv.RejectedBy != nil {
		u := *inv.RejectedBy
		out.RejectedBy = &u
	}
	if inv.PaidBy != nil {
		u := *inv.PaidBy
		out.PaidBy = &u
	}
	return out
}

// ListItem projects the invoice onto the fields a list view needs.
func (inv Invoice) ListItem() InvoiceListItem {
	return InvoiceListItem{
		ID:            inv.ID,
		VendorName:    inv.VendorName,
		InvoiceNumber: inv.InvoiceNumber,
		Amount:        inv.Amount,
		Currency:      inv.Currency,
		DueDate:       inv.DueDate,
		Status:        inv.Status,
		SubmittedAt:   cloneTime(inv.SubmittedAt),
		CreatedAt:     inv.CreatedAt,
		Version:       inv.Version,
		Office:        inv.Office,
	}
}

// InvoiceListItem is the joinless row returned by list queries.
type InvoiceListItem struct {
	ID            string          `json:"id"`
	VendorName    string          `json:"vendor_name"`
	InvoiceNumber string          `json:"invoice_number,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	DueDate       string          `json:"due_date,omitempty"`
	Status        Status          `json:"status"`
	SubmittedAt   *time.Time      `json:"submitted_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	Version       int             `json:"version"`
	Office        OfficeRef       `json:"office"`
}

// Pagination describes one page of a filtered list.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// InvoicePage is a page of list items plus its pagination metadata.
type InvoicePage struct {
	Data       []InvoiceListItem `json:"data"`
	Pagination Pagination        `json:"pagination"`
}

// EventAction names an entry in an invoice's history.
type EventAction string

const (
	EventCreated   EventAction = "CREATED"
	EventUpdated   EventAction = "UPDATED"
	EventSubmitted EventAction = "SUBMITTED"
	EventApproved  EventAction = "APPROVED"
	EventRejected  EventAction = "REJECTED"
	EventPaid      EventAction = "PAID"
	EventReopened  EventAction = "REOPENED"
)

// InvoiceEvent is one append-only history record for an invoice.
type InvoiceEvent struct {
	ID        string      `json:"id"`
	InvoiceID string      `json:"invoice_id"`
	Action    EventAction `json:"action"`
	Actor     UserSummary `json:"actor"`
	Comment   string      `json:"comment,omitempty"`
	Version   int         `json:"version"` // invoice version after the event
	CreatedAt time.Time   `json:"created_at"`
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
