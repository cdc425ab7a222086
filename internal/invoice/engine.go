package invoice

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"dragonfly/internal/identity"
	"dragonfly/internal/logger"
	"dragonfly/pkg/models"
)

// Engine implements Service over a Store.
type Engine struct {
	store *Store
	dir   Directory
	cfg   Config
	log   zerolog.Logger
}

var _ Service = (*Engine)(nil)

// NewEngine creates an engine over store. A nil store starts empty.
func NewEngine(store *Store, dir Directory, cfg Config) *Engine {
	if store == nil {
		store = NewStore()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.DocumentBaseURL = strings.TrimRight(cfg.DocumentBaseURL, "/")
	return &Engine{
		store: store,
		dir:   dir,
		cfg:   cfg,
		log:   logger.WithComponent("invoice-engine"),
	}
}

func (e *Engine) now() time.Time {
	return e.cfg.Now().UTC()
}

func caller(ctx context.Context, op, id string) (models.User, error) {
	user, err := identity.FromContext(ctx)
	if err != nil {
		return models.User{}, wrapError(op, id, err)
	}
	return user, nil
}

// ListInvoices returns a filtered, office and ownership scoped page.
func (e *Engine) ListInvoices(ctx context.Context, params ListParams) (models.InvoicePage, error) {
	const op = "ListInvoices"

	user, err := caller(ctx, op, "")
	if err != nil {
		return models.InvoicePage{}, err
	}
	page := Query(e.store.Snapshot(), user, params)

	e.log.Debug().
		Str("user_id", user.ID).
		Str("office_id", params.OfficeID).
		Str("status", string(params.Status)).
		Int("page", params.Page).
		Int("total", page.Pagination.Total).
		Msg("Listed invoices")
	return page, nil
}

// GetInvoice returns the full record.
func (e *Engine) GetInvoice(ctx context.Context, id string) (models.Invoice, error) {
	const op = "GetInvoice"

	user, err := caller(ctx, op, id)
	if err != nil {
		return models.Invoice{}, err
	}
	inv, err := e.store.Get(id)
	if err != nil {
		return models.Invoice{}, wrapError(op, id, err)
	}
	if err := Decide(user, inv, ActionView); err != nil {
		return models.Invoice{}, err
	}
	return inv, nil
}

// History returns the audit events of an invoice, oldest first.
func (e *Engine) History(ctx context.Context, id string) ([]models.InvoiceEvent, error) {
	const op = "History"

	if _, err := e.GetInvoice(ctx, id); err != nil {
		return nil, err
	}
	events, err := e.store.History(id)
	if err != nil {
		return nil, wrapError(op, id, err)
	}
	return events, nil
}

// CreateInvoice stores a new DRAFT invoice at version 1.
func (e *Engine) CreateInvoice(ctx context.Context, req CreateRequest) (models.Invoice, error) {
	const op = "CreateInvoice"

	user, err := caller(ctx, op, "")
	if err != nil {
		return models.Invoice{}, err
	}

	officeID := req.OfficeID
	if officeID == "" {
		officeID = identity.HomeOffice(user)
	}
	if officeID == "" {
		return models.Invoice{}, validationf(op, "", "Office must be specified for invoice creation.")
	}
	office, ok := e.dir.Office(officeID)
	if !ok || !office.IsActive {
		return models.Invoice{}, validationf(op, "", "Office %s is not an active office.", officeID)
	}
	if strings.TrimSpace(req.FileName) == "" {
		return models.Invoice{}, validationf(op, "", "A source file name is required.")
	}
	if c := req.ExtractionConfidence; c != nil && (*c < 0 || *c > 1) {
		return models.Invoice{}, validationf(op, "", "Extraction confidence must be between 0 and 1, got %v.", *c)
	}
	if err := validateFields(op, "", req.Fields, e.dir); err != nil {
		return models.Invoice{}, err
	}

	now := e.now()
	inv := models.Invoice{
		SubmittedBy: user.Summary(),
		Office:      office.Ref(),
		Currency:    models.DefaultCurrency,
		Status:      models.StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.ExtractionConfidence != nil {
		c := *req.ExtractionConfidence
		inv.ExtractionConfidence = &c
	}
	applyFields(&inv, req.Fields, e.dir)

	inv.ID = e.store.NextID()
	inv.FileURL = e.documentURL(inv.ID, req.FileName)

	stored, err := e.store.Insert(inv, e.event(models.EventCreated, user, req.FileName, now))
	if err != nil {
		return models.Invoice{}, wrapError(op, inv.ID, err)
	}

	e.log.Info().
		Str("invoice_id", stored.ID).
		Str("user_id", user.ID).
		Str("office_id", office.ID).
		Str("file", req.FileName).
		Msg("Invoice created")
	return stored, nil
}

func (e *Engine) documentURL(id, fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	if ext == "" {
		ext = ".pdf"
	}
	return fmt.Sprintf("%s/%s%s", e.cfg.DocumentBaseURL, id, ext)
}

// UpdateFields edits content of a DRAFT or REJECTED invoice.
func (e *Engine) UpdateFields(ctx context.Context, id string, fields FieldSet, expectedVersion int) (models.Invoice, error) {
	const op = "UpdateFields"
	return e.mutate(ctx, op, ActionEdit, id, expectedVersion, func(inv *models.Invoice, _ models.User, _ time.Time) (string, error) {
		if fields.Empty() {
			return "", validationf(op, id, "No fields to update.")
		}
		if err := validateFields(op, id, fields, e.dir); err != nil {
			return "", err
		}
		applyFields(inv, fields, e.dir)
		return "", nil
	})
}

// Submit moves a DRAFT invoice to PENDING_APPROVAL.
func (e *Engine) Submit(ctx context.Context, id string, expectedVersion int) (models.Invoice, error) {
	const op = "Submit"
	return e.mutate(ctx, op, ActionSubmit, id, expectedVersion, func(inv *models.Invoice, _ models.User, now time.Time) (string, error) {
		if err := validateSubmission(op, *inv); err != nil {
			return "", err
		}
		if inv.Currency == "" {
			inv.Currency = models.DefaultCurrency
		}
		inv.SubmittedAt = &now
		return "", nil
	})
}

// Approve moves a PENDING_APPROVAL invoice to APPROVED.
func (e *Engine) Approve(ctx context.Context, id string, expectedVersion int, comment string) (models.Invoice, error) {
	const op = "Approve"
	return e.mutate(ctx, op, ActionApprove, id, expectedVersion, func(*models.Invoice, models.User, time.Time) (string, error) {
		return strings.TrimSpace(comment), nil
	})
}

// Reject moves a PENDING_APPROVAL invoice to REJECTED.
func (e *Engine) Reject(ctx context.Context, id string, expectedVersion int, comment string) (models.Invoice, error) {
	const op = "Reject"
	return e.mutate(ctx, op, ActionReject, id, expectedVersion, func(inv *models.Invoice, actor models.User, now time.Time) (string, error) {
		if strings.TrimSpace(comment) == "" {
			return "", validationf(op, id, "Rejection comment is required.")
		}
		by := actor.Summary()
		inv.RejectionComment = comment
		inv.RejectedBy = &by
		inv.RejectedAt = &now
		return comment, nil
	})
}

// MarkPaid moves an APPROVED invoice to PAID.
func (e *Engine) MarkPaid(ctx context.Context, id string, expectedVersion int, payment PaymentDetails) (models.Invoice, error) {
	const op = "MarkPaid"
	return e.mutate(ctx, op, ActionMarkPaid, id, expectedVersion, func(inv *models.Invoice, actor models.User, now time.Time) (string, error) {
		if err := validatePayment(op, id, payment); err != nil {
			return "", err
		}
		by := actor.Summary()
		inv.PaymentMethod = payment.Method
		inv.PaymentReference = strings.TrimSpace(payment.Reference)
		inv.PaymentDate = payment.Date
		inv.PaidBy = &by
		inv.PaidAt = &now
		return "", nil
	})
}

// ReopenRejected moves a REJECTED invoice back to DRAFT.
func (e *Engine) ReopenRejected(ctx context.Context, id string, expectedVersion int) (models.Invoice, error) {
	const op = "ReopenRejected"
	return e.mutate(ctx, op, ActionReopen, id, expectedVersion, func(inv *models.Invoice, _ models.User, _ time.Time) (string, error) {
		inv.SubmittedAt = nil
		inv.RejectionComment = ""
		inv.RejectedBy = nil
		inv.RejectedAt = nil
		return "", nil
	})
}

// DeleteInvoice hard-deletes a DRAFT or REJECTED invoice.
func (e *Engine) DeleteInvoice(ctx context.Context, id string, expectedVersion int) error {
	const op = "DeleteInvoice"

	user, cur, err := e.preflight(ctx, op, ActionDelete, id, expectedVersion)
	if err != nil {
		return err
	}
	if err := e.store.Delete(id, expectedVersion); err != nil {
		err = wrapError(op, id, err)
		e.logRejected(op, id, user, err)
		return err
	}

	e.log.Info().
		Str("invoice_id", id).
		Str("user_id", user.ID).
		Str("status", string(cur.Status)).
		Int("version", expectedVersion).
		Msg("Invoice deleted")
	return nil
}

// applyFunc mutates a private copy of the invoice. It returns the comment
// recorded in history, or a validation error.
type applyFunc func(inv *models.Invoice, actor models.User, now time.Time) (string, error)

// preflight runs the read-side checks of a mutation against a snapshot.
// Because every mutation bumps the version, a snapshot whose version equals
// expected is exactly the state the compare-and-swap will replace.
func (e *Engine) preflight(ctx context.Context, op string, action Action, id string, expected int) (models.User, models.Invoice, error) {
	user, err := caller(ctx, op, id)
	if err != nil {
		return models.User{}, models.Invoice{}, err
	}
	cur, err := e.store.Get(id)
	if err != nil {
		err = wrapError(op, id, err)
		e.logRejected(op, id, user, err)
		return models.User{}, models.Invoice{}, err
	}
	if err := Decide(user, cur, action); err != nil {
		e.logRejected(op, id, user, err)
		return models.User{}, models.Invoice{}, err
	}
	if cur.Version != expected {
		err := wrapError(op, id, ErrVersionConflict)
		e.logRejected(op, id, user, err)
		return models.User{}, models.Invoice{}, err
	}
	if err := checkSource(op, action, cur); err != nil {
		e.logRejected(op, id, user, err)
		return models.User{}, models.Invoice{}, err
	}
	return user, cur, nil
}

func (e *Engine) mutate(ctx context.Context, op string, action Action, id string, expected int, apply applyFunc) (models.Invoice, error) {
	user, cur, err := e.preflight(ctx, op, action, id, expected)
	if err != nil {
		return models.Invoice{}, err
	}

	now := e.now()
	next := cur.Clone()
	comment, err := apply(&next, user, now)
	if err != nil {
		e.logRejected(op, id, user, err)
		return models.Invoice{}, err
	}
	next.Status = targetStatus(action, cur.Status)
	next.UpdatedAt = now

	stored, err := e.store.CompareAndSwap(next, expected, e.event(transitions[action].event, user, comment, now))
	if err != nil {
		err = wrapError(op, id, err)
		e.logRejected(op, id, user, err)
		return models.Invoice{}, err
	}

	e.log.Info().
		Str("invoice_id", id).
		Str("user_id", user.ID).
		Str("action", string(action)).
		Str("from", string(cur.Status)).
		Str("to", string(stored.Status)).
		Int("version", stored.Version).
		Msg("Invoice updated")
	return stored, nil
}

func (e *Engine) event(action models.EventAction, actor models.User, comment string, now time.Time) *models.InvoiceEvent {
	if action == "" {
		return nil
	}
	return &models.InvoiceEvent{
		ID:        uuid.NewString(),
		Action:    action,
		Actor:     actor.Summary(),
		Comment:   comment,
		CreatedAt: now,
	}
}

func (e *Engine) logRejected(op, id string, user models.User, err error) {
	level := zerolog.DebugLevel
	kind, known := KindOf(err)
	if !known {
		level = zerolog.WarnLevel
	}
	e.log.WithLevel(level).
		Err(err).
		Str("op", op).
		Str("invoice_id", id).
		Str("user_id", user.ID).
		Str("kind", string(kind)).
		Msg("Invoice operation rejected")
}
