package invoice

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"dragonfly/pkg/models"
)

// FieldSet is a partial content update. Nil fields are left unchanged.
type FieldSet struct {
	VendorName    *string
	InvoiceNumber *string
	Amount        *decimal.Decimal
	Currency      *string
	InvoiceDate   *string
	DueDate       *string
	CategoryID    *string
	Description   *string
}

// Empty reports whether the set changes nothing.
func (fs FieldSet) Empty() bool {
	return fs.VendorName == nil && fs.InvoiceNumber == nil && fs.Amount == nil &&
		fs.Currency == nil && fs.InvoiceDate == nil && fs.DueDate == nil &&
		fs.CategoryID == nil && fs.Description == nil
}

// PaymentDetails are the inputs of mark_paid.
type PaymentDetails struct {
	Method    models.PaymentMethod
	Reference string // optional
	Date      string // YYYY-MM-DD
}

// validateFields checks a field set without touching an invoice.
func validateFields(op, id string, fs FieldSet, categories CategoryLookup) error {
	if fs.Amount != nil && fs.Amount.IsNegative() {
		return validationf(op, id, "Amount cannot be negative.")
	}
	if fs.Currency != nil && *fs.Currency != "" {
		if _, err := currency.ParseISO(strings.TrimSpace(*fs.Currency)); err != nil {
			return validationf(op, id, "Currency must be an ISO 4217 code, got %q.", *fs.Currency)
		}
	}
	if fs.InvoiceDate != nil && *fs.InvoiceDate != "" && !validDate(*fs.InvoiceDate) {
		return validationf(op, id, "Invoice date must be formatted YYYY-MM-DD, got %q.", *fs.InvoiceDate)
	}
	if fs.DueDate != nil && *fs.DueDate != "" && !validDate(*fs.DueDate) {
		return validationf(op, id, "Due date must be formatted YYYY-MM-DD, got %q.", *fs.DueDate)
	}
	if fs.CategoryID != nil && *fs.CategoryID != "" {
		cat, ok := categories.Category(*fs.CategoryID)
		if !ok {
			return validationf(op, id, "Category %s does not exist.", *fs.CategoryID)
		}
		if !cat.IsActive {
			return validationf(op, id, "Category %s is no longer active.", cat.Name)
		}
	}
	return nil
}

// applyFields copies the set fields onto inv. Call validateFields first.
func applyFields(inv *models.Invoice, fs FieldSet, categories CategoryLookup) {
	if fs.VendorName != nil {
		inv.VendorName = *fs.VendorName
	}
	if fs.InvoiceNumber != nil {
		inv.InvoiceNumber = *fs.InvoiceNumber
	}
	if fs.Amount != nil {
		inv.Amount = *fs.Amount
	}
	if fs.Currency != nil {
		inv.Currency = strings.ToUpper(strings.TrimSpace(*fs.Currency))
	}
	if fs.InvoiceDate != nil {
		inv.InvoiceDate = *fs.InvoiceDate
	}
	if fs.DueDate != nil {
		inv.DueDate = *fs.DueDate
	}
	if fs.Description != nil {
		inv.Description = *fs.Description
	}
	if fs.CategoryID != nil {
		inv.CategoryID = *fs.CategoryID
		inv.Category = nil
		if cat, ok := categories.Category(inv.CategoryID); ok {
			inv.Category = &cat
		}
	}
}

// validateSubmission checks the fields an invoice needs to enter approval.
func validateSubmission(op string, inv models.Invoice) error {
	if strings.TrimSpace(inv.VendorName) == "" {
		return validationf(op, inv.ID, "Vendor name is required.")
	}
	if !inv.Amount.IsPositive() {
		return validationf(op, inv.ID, "Amount must be greater than zero.")
	}
	return nil
}

func validatePayment(op, id string, p PaymentDetails) error {
	if p.Method == "" {
		return validationf(op, id, "Payment method is required.")
	}
	if !p.Method.Valid() {
		return validationf(op, id, "Unknown payment method %q.", p.Method)
	}
	if strings.TrimSpace(p.Date) == "" {
		return validationf(op, id, "Payment date is required.")
	}
	if !validDate(p.Date) {
		return validationf(op, id, "Payment date must be formatted YYYY-MM-DD, got %q.", p.Date)
	}
	return nil
}

func validDate(s string) bool {
	_, err := time.Parse(models.DateLayout, s)
	return err == nil
}
