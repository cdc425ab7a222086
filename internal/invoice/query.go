package invoice

import (
	"strings"

	"dragonfly/pkg/models"
)

// DefaultPageLimit is the page size used when a caller does not ask for one.
const DefaultPageLimit = 20

// ListParams are the optional filters and the page window of a list request.
// Empty strings disable a filter. Page and Limit are 1-indexed and are not
// clamped here.
type ListParams struct {
	OfficeID   string
	Status     models.Status
	VendorName string // case-insensitive substring
	DateFrom   string // inclusive, YYYY-MM-DD
	DateTo     string // inclusive, YYYY-MM-DD
	Page       int
	Limit      int
}

type predicate func(models.Invoice) bool

// Query filters invoices for user and returns the requested page. invoices
// must be in store insertion order, which is the order of the result.
func Query(invoices []models.Invoice, user models.User, p ListParams) models.InvoicePage {
	var filters []predicate

	if p.OfficeID != "" {
		filters = append(filters, func(inv models.Invoice) bool {
			return inv.Office.ID == p.OfficeID
		})
	}
	if user.Role == models.RoleSubmitter {
		filters = append(filters, func(inv models.Invoice) bool {
			return inv.SubmittedBy.ID == user.ID
		})
	}
	if p.Status != "" {
		filters = append(filters, func(inv models.Invoice) bool {
			return inv.Status == p.Status
		})
	}
	if p.VendorName != "" {
		needle := strings.ToLower(p.VendorName)
		filters = append(filters, func(inv models.Invoice) bool {
			return strings.Contains(strings.ToLower(inv.VendorName), needle)
		})
	}
	if p.DateFrom != "" {
		filters = append(filters, func(inv models.Invoice) bool {
			return effectiveDate(inv) >= p.DateFrom
		})
	}
	if p.DateTo != "" {
		filters = append(filters, func(inv models.Invoice) bool {
			return effectiveDate(inv) <= p.DateTo
		})
	}

	matched := make([]models.Invoice, 0, len(invoices))
outer:
	for _, inv := range invoices {
		for _, keep := range filters {
			if !keep(inv) {
				continue outer
			}
		}
		matched = append(matched, inv)
	}

	return paginate(matched, p.Page, p.Limit)
}

// effectiveDate is the ISO date the date-range filter compares against.
func effectiveDate(inv models.Invoice) string {
	if inv.InvoiceDate != "" {
		return inv.InvoiceDate
	}
	return inv.CreatedAt.UTC().Format(models.DateLayout)
}

func paginate(matched []models.Invoice, page, limit int) models.InvoicePage {
	total := len(matched)
	out := models.InvoicePage{
		Data: []models.InvoiceListItem{},
		Pagination: models.Pagination{
			Page:  page,
			Limit: limit,
			Total: total,
		},
	}
	if limit < 1 {
		return out
	}
	out.Pagination.TotalPages = total / limit
	if total%limit != 0 {
		out.Pagination.TotalPages++
	}

	// Past this check (page-1)*limit < total, so the multiply cannot overflow.
	if page < 1 || page > out.Pagination.TotalPages {
		return out
	}
	start := (page - 1) * limit
	end := total
	if limit < total-start {
		end = start + limit
	}
	for _, inv := range matched[start:end] {
		out.Data = append(out.Data, inv.ListItem())
	}
	return out
}
