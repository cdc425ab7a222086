package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"dragonfly/internal/identity"
	"dragonfly/internal/invoice"
	"dragonfly/internal/logger"
	"dragonfly/pkg/models"
)

// ledgerTimeout bounds the payment export after mark-paid.
const ledgerTimeout = 10 * time.Second

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("Invalid route")
	respondWithJSON(w, http.StatusNotFound, errorReply{Code: codeNotFound, Message: "No such route."})
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusMethodNotAllowed, errorReply{
		Code:    codeNotFound,
		Message: fmt.Sprintf("Method %s is not allowed here.", r.Method),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondWithOK(w, map[string]string{"status": "ok"})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	user, err := identity.FromContext(r.Context())
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	respondWithOK(w, sessionReply{
		User:         user,
		HomeOfficeID: identity.HomeOffice(user),
		CanApprove:   user.Role.CanApprove(),
	})
}

func (s *Server) handleOffices(w http.ResponseWriter, _ *http.Request) {
	offices := s.dir.Offices()
	if offices == nil {
		offices = []models.Office{}
	}
	respondWithOK(w, listReply[models.Office]{Data: offices})
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	categories := s.dir.Categories()
	if categories == nil {
		categories = []models.Category{}
	}
	respondWithOK(w, listReply[models.Category]{Data: categories})
}

func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	user, err := identity.FromContext(r.Context())
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}

	q := r.URL.Query()
	params := invoice.ListParams{
		OfficeID:   identity.ScopeOffice(user, q.Get("office_id")),
		Status:     models.Status(q.Get("status")),
		VendorName: q.Get("vendor_name"),
		DateFrom:   q.Get("date_from"),
		DateTo:     q.Get("date_to"),
	}
	if params.Status != "" && !params.Status.Valid() {
		respondWithUserError(w, fmt.Sprintf("Unknown status %q.", params.Status))
		return
	}
	for _, d := range []string{params.DateFrom, params.DateTo} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(models.DateLayout, d); err != nil {
			respondWithUserError(w, fmt.Sprintf("Dates must be formatted YYYY-MM-DD, got %q.", d))
			return
		}
	}

	params.Page, err = intParam(q.Get("page"), 1)
	if err != nil {
		respondWithUserError(w, "page must be a number.")
		return
	}
	params.Limit, err = intParam(q.Get("limit"), s.cfg.DefaultPageLimit)
	if err != nil {
		respondWithUserError(w, "limit must be a number.")
		return
	}
	params.Page, params.Limit = s.clampPage(params.Page, params.Limit)

	page, err := s.svc.ListInvoices(r.Context(), params)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	respondWithOK(w, page)
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// clampPage keeps list requests within 1 <= page and 1 <= limit <= max.
func (s *Server) clampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = s.cfg.DefaultPageLimit
	}
	if limit > s.cfg.MaxPageLimit {
		limit = s.cfg.MaxPageLimit
	}
	return page, limit
}

func (s *Server) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !decodeBody(w, r, &req) {
		return
	}
	inv, err := s.svc.CreateInvoice(r.Context(), invoice.CreateRequest{
		OfficeID:             req.OfficeID,
		FileName:             req.FileName,
		ExtractionConfidence: req.ExtractionConfidence,
		Fields:               req.fieldSet(),
	})
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondWithInvoice(w, r, http.StatusCreated, inv)
}

func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := s.svc.GetInvoice(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondWithInvoice(w, r, http.StatusOK, inv)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	events, err := s.svc.History(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	respondWithOK(w, listReply[models.InvoiceEvent]{Data: events})
}

func (s *Server) handleUpdateInvoice(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !decodeBody(w, r, &req) || !requireVersion(w, req.Version) {
		return
	}
	inv, err := s.svc.UpdateFields(r.Context(), mux.Vars(r)["id"], req.fieldSet(), *req.Version)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondWithInvoice(w, r, http.StatusOK, inv)
}

func (s *Server) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("version")
	if raw == "" {
		respondWithUserError(w, "version is required.")
		return
	}
	version, err := strconv.Atoi(raw)
	if err != nil {
		respondWithUserError(w, "version must be a number.")
		return
	}
	if err := s.svc.DeleteInvoice(r.Context(), mux.Vars(r)["id"], version); err != nil {
		s.respondWithError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req versionRequest
	if !decodeBody(w, r, &req) || !requireVersion(w, req.Version) {
		return
	}
	inv, err := s.svc.Submit(r.Context(), mux.Vars(r)["id"], *req.Version)
	s.respondWithTransition(w, r, inv, err)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if !decodeBody(w, r, &req) || !requireVersion(w, req.Version) {
		return
	}
	inv, err := s.svc.Approve(r.Context(), mux.Vars(r)["id"], *req.Version, req.Comment)
	s.respondWithTransition(w, r, inv, err)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if !decodeBody(w, r, &req) || !requireVersion(w, req.Version) {
		return
	}
	inv, err := s.svc.Reject(r.Context(), mux.Vars(r)["id"], *req.Version, req.Comment)
	s.respondWithTransition(w, r, inv, err)
}

func (s *Server) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	var req markPaidRequest
	if !decodeBody(w, r, &req) || !requireVersion(w, req.Version) {
		return
	}
	inv, err := s.svc.MarkPaid(r.Context(), mux.Vars(r)["id"], *req.Version, invoice.PaymentDetails{
		Method:    req.PaymentMethod,
		Reference: req.PaymentReference,
		Date:      req.PaymentDate,
	})
	if err == nil {
		s.recordPayment(r.Context(), inv)
	}
	s.respondWithTransition(w, r, inv, err)
}

func (s *Server) handleReopen(w http.ResponseWriter, r *http.Request) {
	var req versionRequest
	if !decodeBody(w, r, &req) || !requireVersion(w, req.Version) {
		return
	}
	inv, err := s.svc.ReopenRejected(r.Context(), mux.Vars(r)["id"], *req.Version)
	s.respondWithTransition(w, r, inv, err)
}

// recordPayment exports a paid invoice. The invoice is already PAID; export
// failures are logged and never reach the caller.
func (s *Server) recordPayment(ctx context.Context, inv models.Invoice) {
	if s.ledger == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerTimeout)
	defer cancel()
	if err := s.ledger.RecordPayment(ctx, inv); err != nil {
		logger.FromContext(ctx).Warn().
			Err(err).
			Str("invoice_id", inv.ID).
			Msg("Failed to export payment")
	}
}

func (s *Server) respondWithTransition(w http.ResponseWriter, r *http.Request, inv models.Invoice, err error) {
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondWithInvoice(w, r, http.StatusOK, inv)
}

func (s *Server) respondWithInvoice(w http.ResponseWriter, r *http.Request, status int, inv models.Invoice) {
	actions := []invoice.Action{}
	if user, err := identity.FromContext(r.Context()); err == nil {
		actions = append(actions, invoice.AvailableActions(user, inv)...)
	}
	respondWithJSON(w, status, invoiceReply{
		Invoice:        inv,
		StatusLabel:    invoice.Label(inv.Status),
		AllowedActions: actions,
	})
}

// decodeBody decodes a JSON body into v, replying 400 on failure. An empty
// body decodes as an empty object.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondWithJSON(w, http.StatusRequestEntityTooLarge, errorReply{
			Code:    string(invoice.KindValidation),
			Message: fmt.Sprintf("Request body exceeds %d bytes.", tooLarge.Limit),
		})
		return false
	}
	respondWithUserError(w, fmt.Sprintf("Malformed request body: %v", err))
	return false
}

func requireVersion(w http.ResponseWriter, v *int) bool {
	if v == nil {
		respondWithUserError(w, "version is required.")
		return false
	}
	return true
}
