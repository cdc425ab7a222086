// Package invoice implements the invoice lifecycle engine.
//
// The engine owns invoice state and is the only way to change it. It
// enforces who may move an invoice between states, prevents lost updates
// with optimistic concurrency, and scopes visibility by office and
// ownership.
//
// Lifecycle:
//
//	DRAFT --submit--> PENDING_APPROVAL --approve--> APPROVED --mark_paid--> PAID
//	                  PENDING_APPROVAL --reject---> REJECTED --reopen-----> DRAFT
//
// DRAFT and REJECTED invoices can also be edited or deleted by their owner.
//
// Concurrency contract:
//   - Every mutation is a compare-and-swap on (invoice id, expected version).
//     A stale version fails with ErrVersionConflict and changes nothing.
//   - Mutations of different invoices do not contend with each other.
//   - Reads return consistent copies; they never observe a torn record.
//   - The engine never retries and holds no lock across calls. Retry policy
//     (refetch and retry) belongs to the caller.
//
// Every operation fails with exactly one of ErrNotAuthenticated,
// ErrForbidden, ErrNotFound, ErrValidation or ErrVersionConflict. Checks run
// in this order: identity, existence, authorization, version, source state,
// input preconditions.
package invoice

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"dragonfly/pkg/models"
)

// Service is the in-process API of the lifecycle engine. The caller identity
// is taken from ctx (see package identity).
type Service interface {
	// ListInvoices returns a filtered, office and ownership scoped page.
	ListInvoices(ctx context.Context, params ListParams) (models.InvoicePage, error)

	// GetInvoice returns the full record.
	GetInvoice(ctx context.Context, id string) (models.Invoice, error)

	// CreateInvoice stores a new DRAFT invoice at version 1.
	CreateInvoice(ctx context.Context, req CreateRequest) (models.Invoice, error)

	// UpdateFields edits content of a DRAFT or REJECTED invoice.
	UpdateFields(ctx context.Context, id string, fields FieldSet, expectedVersion int) (models.Invoice, error)

	// DeleteInvoice hard-deletes a DRAFT or REJECTED invoice.
	DeleteInvoice(ctx context.Context, id string, expectedVersion int) error

	// Submit moves a DRAFT invoice to PENDING_APPROVAL.
	Submit(ctx context.Context, id string, expectedVersion int) (models.Invoice, error)

	// Approve moves a PENDING_APPROVAL invoice to APPROVED. The comment is
	// optional and only recorded in the history.
	Approve(ctx context.Context, id string, expectedVersion int, comment string) (models.Invoice, error)

	// Reject moves a PENDING_APPROVAL invoice to REJECTED with a required comment.
	Reject(ctx context.Context, id string, expectedVersion int, comment string) (models.Invoice, error)

	// MarkPaid moves an APPROVED invoice to PAID and records the payment.
	MarkPaid(ctx context.Context, id string, expectedVersion int, payment PaymentDetails) (models.Invoice, error)

	// ReopenRejected moves a REJECTED invoice back to DRAFT, clearing the
	// rejection block and the submission time.
	ReopenRejected(ctx context.Context, id string, expectedVersion int) (models.Invoice, error)

	// History returns the audit events of an invoice, oldest first.
	History(ctx context.Context, id string) ([]models.InvoiceEvent, error)
}

// OfficeLookup resolves office ids for invoice creation.
type OfficeLookup interface {
	Office(id string) (models.Office, bool)
}

// CategoryLookup resolves category ids for the display join.
type CategoryLookup interface {
	Category(id string) (models.Category, bool)
}

// Directory is everything the engine needs from the office/category directory.
type Directory interface {
	OfficeLookup
	CategoryLookup
}

// CreateRequest describes an uploaded invoice document.
type CreateRequest struct {
	// OfficeID scopes the invoice. Empty falls back to the caller's home office.
	OfficeID string

	// FileName is the uploaded document name; its extension is kept on FileURL.
	FileName string

	// ExtractionConfidence is the opaque 0.0-1.0 score of the extraction step.
	ExtractionConfidence *float64

	// Fields are values prefilled by extraction. Optional.
	Fields FieldSet
}

// Config holds engine settings.
type Config struct {
	// DocumentBaseURL prefixes the stored document reference of new invoices.
	DocumentBaseURL string

	// Now is the clock. Default: time.Now.
	Now func() time.Time
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DocumentBaseURL: "https://documents.dragonfly.local/invoices",
		Now:             time.Now,
	}
}

// Amount parses a decimal amount, for callers building a FieldSet.
func Amount(s string) (*decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// String returns a pointer to s, for callers building a FieldSet.
func String(s string) *string {
	return &s
}
