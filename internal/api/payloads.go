package api

import (
	"github.com/shopspring/decimal"

	"dragonfly/internal/invoice"
	"dragonfly/pkg/models"
)

// fields is the editable content shared by create and update payloads.
// Absent keys leave the stored value unchanged.
type fields struct {
	VendorName    *string          `json:"vendor_name,omitempty"`
	InvoiceNumber *string          `json:"invoice_number,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Currency      *string          `json:"currency,omitempty"`
	InvoiceDate   *string          `json:"invoice_date,omitempty"`
	DueDate       *string          `json:"due_date,omitempty"`
	CategoryID    *string          `json:"category_id,omitempty"`
	Description   *string          `json:"description,omitempty"`
}

func (f fields) fieldSet() invoice.FieldSet {
	return invoice.FieldSet{
		VendorName:    f.VendorName,
		InvoiceNumber: f.InvoiceNumber,
		Amount:        f.Amount,
		Currency:      f.Currency,
		InvoiceDate:   f.InvoiceDate,
		DueDate:       f.DueDate,
		CategoryID:    f.CategoryID,
		Description:   f.Description,
	}
}

type createRequest struct {
	OfficeID             string   `json:"office_id,omitempty"`
	FileName             string   `json:"file_name"`
	ExtractionConfidence *float64 `json:"extraction_confidence,omitempty"`
	fields
}

type updateRequest struct {
	Version *int `json:"version"`
	fields
}

type versionRequest struct {
	Version *int `json:"version"`
}

type commentRequest struct {
	Version *int   `json:"version"`
	Comment string `json:"comment,omitempty"`
}

type markPaidRequest struct {
	Version          *int                 `json:"version"`
	PaymentMethod    models.PaymentMethod `json:"payment_method"`
	PaymentReference string               `json:"payment_reference,omitempty"`
	PaymentDate      string               `json:"payment_date"`
}

// invoiceReply is the detail view: the record plus what the caller may do next.
type invoiceReply struct {
	models.Invoice
	StatusLabel    string           `json:"status_label"`
	AllowedActions []invoice.Action `json:"allowed_actions"`
}

type sessionReply struct {
	User         models.User `json:"user"`
	HomeOfficeID string      `json:"home_office_id,omitempty"`
	CanApprove   bool        `json:"can_approve"`
}

type listReply[T any] struct {
	Data []T `json:"data"`
}
