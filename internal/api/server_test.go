package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"dragonfly/internal/directory"
	"dragonfly/internal/identity"
	"dragonfly/internal/invoice"
	"dragonfly/pkg/models"
)

type fakeLedger struct {
	mu   sync.Mutex
	paid []string
	err  error
}

func (l *fakeLedger) RecordPayment(_ context.Context, inv models.Invoice) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paid = append(l.paid, inv.ID)
	return l.err
}

type testEnv struct {
	server *httptest.Server
	tokens map[string]string
	ledger *fakeLedger
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	dir, err := directory.Default()
	if err != nil {
		t.Fatalf("directory.Default: %v", err)
	}
	resolver, err := identity.NewTokenResolver(identity.TokenConfig{
		Secret: []byte("test-secret-test-secret"),
		Issuer: "dragonfly",
		TTL:    time.Hour,
	}, dir)
	if err != nil {
		t.Fatalf("NewTokenResolver: %v", err)
	}

	env := &testEnv{tokens: make(map[string]string), ledger: &fakeLedger{}}
	for _, id := range []string{"user-001", "user-002", "user-003", "user-004", "user-005"} {
		u, err := dir.User(id)
		if err != nil {
			t.Fatal(err)
		}
		env.tokens[id], err = resolver.IssueToken(u)
		if err != nil {
			t.Fatal(err)
		}
	}

	engine := invoice.NewEngine(nil, dir, invoice.DefaultConfig())
	srv := New(engine, resolver, dir, cfg, WithPaymentRecorder(env.ledger))
	env.server = httptest.NewServer(srv.Router())
	t.Cleanup(env.server.Close)
	return env
}

// do sends a request as user (empty for anonymous) and decodes the JSON reply into out.
func (e *testEnv) do(t *testing.T, user, method, path string, body interface{}, out interface{}) int {
	t.Helper()

	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		buf, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		rdr = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, e.server.URL+path, rdr)
	if err != nil {
		t.Fatal(err)
	}
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+e.tokens[user])
	}
	resp, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode reply: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (e *testEnv) create(t *testing.T, user string, body map[string]interface{}) invoiceReply {
	t.Helper()
	var got invoiceReply
	if code := e.do(t, user, http.MethodPost, "/api/invoices", body, &got); code != http.StatusCreated {
		t.Fatalf("create: status %d", code)
	}
	return got
}

func TestAuthentication(t *testing.T) {
	env := newTestEnv(t, Config{})

	var reply errorReply
	if code := env.do(t, "", http.MethodGet, "/api/session", nil, &reply); code != http.StatusUnauthorized {
		t.Fatalf("anonymous: status %d, want 401", code)
	}
	if reply.Code != "NOT_AUTHENTICATED" {
		t.Errorf("code = %q", reply.Code)
	}

	env.tokens["forged"] = "eyJhbGciOiJIUzI1NiJ9.e30.invalid"
	if code := env.do(t, "forged", http.MethodGet, "/api/invoices", nil, &reply); code != http.StatusUnauthorized {
		t.Errorf("forged token: status %d, want 401", code)
	}

	var session sessionReply
	if code := env.do(t, "user-002", http.MethodGet, "/api/session", nil, &session); code != http.StatusOK {
		t.Fatalf("session: status %d", code)
	}
	if session.User.ID != "user-002" || session.HomeOfficeID != "miami-001" || !session.CanApprove {
		t.Errorf("session = %+v", session)
	}

	var health map[string]string
	if code := env.do(t, "", http.MethodGet, "/healthz", nil, &health); code != http.StatusOK || health["status"] != "ok" {
		t.Errorf("healthz: %d %v", code, health)
	}
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t, Config{})

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/healthz", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set(RequestIDHeader, "req-42")
	resp, err := env.server.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get(RequestIDHeader); got != "req-42" {
		t.Errorf("request id = %q, want the caller's", got)
	}

	resp, err = env.server.Client().Get(env.server.URL + "/api/session")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Errorf("no request id generated for a rejected request")
	}
}

func TestDirectoryRoutes(t *testing.T) {
	env := newTestEnv(t, Config{})

	var offices listReply[models.Office]
	if code := env.do(t, "user-001", http.MethodGet, "/api/offices", nil, &offices); code != http.StatusOK {
		t.Fatalf("offices: status %d", code)
	}
	if len(offices.Data) != 3 {
		t.Errorf("offices = %d, want 3", len(offices.Data))
	}

	var categories listReply[models.Category]
	if code := env.do(t, "user-001", http.MethodGet, "/api/categories", nil, &categories); code != http.StatusOK {
		t.Fatalf("categories: status %d", code)
	}
	for _, c := range categories.Data {
		if c.ID == "cat-005" {
			t.Errorf("inactive category listed")
		}
	}
}

func TestInvoiceLifecycle(t *testing.T) {
	env := newTestEnv(t, Config{})

	inv := env.create(t, "user-001", map[string]interface{}{
		"file_name":             "acme.pdf",
		"extraction_confidence": 0.91,
		"vendor_name":           "Acme",
		"amount":                "0",
		"category_id":           "cat-001",
	})
	if inv.ID != "inv-001" || inv.Version != 1 || inv.Status != models.StatusDraft {
		t.Fatalf("created %s v%d %s", inv.ID, inv.Version, inv.Status)
	}
	wantActions := []invoice.Action{invoice.ActionEdit, invoice.ActionDelete, invoice.ActionSubmit}
	if diff := cmp.Diff(wantActions, inv.AllowedActions); diff != "" {
		t.Errorf("allowed actions (-want +got):\n%s", diff)
	}
	if inv.Category == nil || inv.Category.Name != "Office Supplies" {
		t.Errorf("category join = %+v", inv.Category)
	}

	var errReply errorReply
	code := env.do(t, "user-001", http.MethodPost, "/api/invoices/inv-001/submit", map[string]int{"version": 1}, &errReply)
	if code != http.StatusBadRequest || errReply.Code != "VALIDATION_ERROR" || errReply.Message != "Amount must be greater than zero." {
		t.Fatalf("submit with zero amount: %d %+v", code, errReply)
	}

	var got invoiceReply
	code = env.do(t, "user-001", http.MethodPatch, "/api/invoices/inv-001", map[string]interface{}{"version": 1, "amount": 100}, &got)
	if code != http.StatusOK || got.Version != 2 {
		t.Fatalf("patch: %d v%d", code, got.Version)
	}

	code = env.do(t, "user-001", http.MethodPost, "/api/invoices/inv-001/submit", map[string]int{"version": 2}, &got)
	if code != http.StatusOK || got.Status != models.StatusPendingApproval {
		t.Fatalf("submit: %d %s", code, got.Status)
	}

	code = env.do(t, "user-001", http.MethodPost, "/api/invoices/inv-001/approve", map[string]int{"version": 3}, &errReply)
	if code != http.StatusForbidden || errReply.Code != "FORBIDDEN" {
		t.Fatalf("submitter approve: %d %+v", code, errReply)
	}

	code = env.do(t, "user-002", http.MethodPost, "/api/invoices/inv-001/approve", map[string]interface{}{"version": 3, "comment": "ok"}, &got)
	if code != http.StatusOK || got.Status != models.StatusApproved || got.StatusLabel != "Approved" {
		t.Fatalf("approve: %d %s", code, got.Status)
	}

	code = env.do(t, "user-002", http.MethodPost, "/api/invoices/inv-001/mark-paid", map[string]interface{}{
		"version":        3,
		"payment_method": "CHECK",
		"payment_date":   "2024-01-01",
	}, &errReply)
	if code != http.StatusConflict || errReply.Code != "VERSION_CONFLICT" {
		t.Fatalf("stale mark-paid: %d %+v", code, errReply)
	}

	code = env.do(t, "user-002", http.MethodPost, "/api/invoices/inv-001/mark-paid", map[string]interface{}{
		"version":           4,
		"payment_method":    "CHECK",
		"payment_reference": "CHK-1",
		"payment_date":      "2024-01-01",
	}, &got)
	if code != http.StatusOK || got.Status != models.StatusPaid || got.Version != 5 {
		t.Fatalf("mark-paid: %d %s v%d", code, got.Status, got.Version)
	}
	if len(got.AllowedActions) != 0 {
		t.Errorf("paid invoice allows %v", got.AllowedActions)
	}
	env.ledger.mu.Lock()
	if diff := cmp.Diff([]string{"inv-001"}, env.ledger.paid); diff != "" {
		t.Errorf("ledger (-want +got):\n%s", diff)
	}
	env.ledger.mu.Unlock()

	code = env.do(t, "user-001", http.MethodDelete, "/api/invoices/inv-001?version=5", nil, &errReply)
	if code != http.StatusBadRequest {
		t.Fatalf("delete paid: %d", code)
	}

	var history listReply[models.InvoiceEvent]
	if code := env.do(t, "user-001", http.MethodGet, "/api/invoices/inv-001/history", nil, &history); code != http.StatusOK {
		t.Fatalf("history: %d", code)
	}
	if len(history.Data) != 5 || history.Data[3].Comment != "ok" {
		t.Errorf("history = %+v", history.Data)
	}
}

func TestLedgerFailureDoesNotFailRequest(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.ledger.err = errors.New("sheets unavailable")

	env.create(t, "user-001", map[string]interface{}{"file_name": "a.pdf", "vendor_name": "Acme", "amount": "5"})
	steps := []struct {
		user, path string
		body       map[string]interface{}
	}{
		{"user-001", "/api/invoices/inv-001/submit", map[string]interface{}{"version": 1}},
		{"user-003", "/api/invoices/inv-001/approve", map[string]interface{}{"version": 2}},
		{"user-003", "/api/invoices/inv-001/mark-paid", map[string]interface{}{"version": 3, "payment_method": "ZELLE", "payment_date": "2024-02-02"}},
	}
	for _, step := range steps {
		var got invoiceReply
		if code := env.do(t, step.user, http.MethodPost, step.path, step.body, &got); code != http.StatusOK {
			t.Fatalf("%s: status %d", step.path, code)
		}
	}
}

func TestRejectAndReopen(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.create(t, "user-004", map[string]interface{}{"file_name": "o.pdf", "vendor_name": "Orlando Power", "amount": 42.5})

	var got invoiceReply
	env.do(t, "user-004", http.MethodPost, "/api/invoices/inv-001/submit", map[string]int{"version": 1}, &got)

	var errReply errorReply
	code := env.do(t, "user-005", http.MethodPost, "/api/invoices/inv-001/reject", map[string]interface{}{"version": 2, "comment": " "}, &errReply)
	if code != http.StatusBadRequest || errReply.Message != "Rejection comment is required." {
		t.Fatalf("blank reject: %d %+v", code, errReply)
	}

	code = env.do(t, "user-005", http.MethodPost, "/api/invoices/inv-001/reject", map[string]interface{}{"version": 2, "comment": "Wrong vendor"}, &got)
	if code != http.StatusOK || got.RejectionComment != "Wrong vendor" || got.RejectedBy == nil {
		t.Fatalf("reject: %d %+v", code, got.Invoice)
	}

	code = env.do(t, "user-004", http.MethodPost, "/api/invoices/inv-001/reopen", map[string]int{"version": 3}, &got)
	if code != http.StatusOK || got.Status != models.StatusDraft {
		t.Fatalf("reopen: %d %s", code, got.Status)
	}

	var raw map[string]interface{}
	env.do(t, "user-004", http.MethodGet, "/api/invoices/inv-001", nil, &raw)
	for _, key := range []string{"rejection_comment", "rejected_by", "rejected_at", "submitted_at"} {
		if _, present := raw[key]; present {
			t.Errorf("%s still present after reopen", key)
		}
	}
}

func TestListScoping(t *testing.T) {
	env := newTestEnv(t, Config{DefaultPageLimit: 2, MaxPageLimit: 3})
	for _, user := range []string{"user-001", "user-001", "user-002", "user-004", "user-001"} {
		env.create(t, user, map[string]interface{}{"file_name": "x.pdf"})
	}

	tests := []struct {
		name      string
		user      string
		query     string
		wantIDs   []string
		wantTotal int
		wantLimit int
	}{
		{"submitter default page", "user-001", "", []string{"inv-001", "inv-002"}, 3, 2},
		{"submitter page 2", "user-001", "?page=2", []string{"inv-005"}, 3, 2},
		{"approver home office", "user-002", "?limit=10", []string{"inv-001", "inv-002", "inv-003"}, 4, 3},
		{"approver other office", "user-002", "?office_id=orlando-001", []string{"inv-004"}, 1, 2},
		{"admin sees all offices", "user-003", "?limit=3&page=2", []string{"inv-004", "inv-005"}, 5, 3},
		{"page clamps to 1", "user-003", "?page=-4&limit=0", []string{"inv-001", "inv-002"}, 5, 2},
		{"past the end", "user-003", "?page=9", []string{}, 5, 2},
		{"max int page", "user-003", "?page=9223372036854775807", []string{}, 5, 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var page models.InvoicePage
			if code := env.do(t, tc.user, http.MethodGet, "/api/invoices"+tc.query, nil, &page); code != http.StatusOK {
				t.Fatalf("status %d", code)
			}
			ids := []string{}
			for _, item := range page.Data {
				ids = append(ids, item.ID)
			}
			if diff := cmp.Diff(tc.wantIDs, ids); diff != "" {
				t.Errorf("ids (-want +got):\n%s", diff)
			}
			if page.Pagination.Total != tc.wantTotal || page.Pagination.Limit != tc.wantLimit {
				t.Errorf("pagination = %+v", page.Pagination)
			}
		})
	}

	for _, q := range []string{"?status=ARCHIVED", "?date_from=01-01-2024", "?page=two"} {
		var reply errorReply
		if code := env.do(t, "user-003", http.MethodGet, "/api/invoices"+q, nil, &reply); code != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", q, code)
		}
	}
}

func TestErrorStatuses(t *testing.T) {
	env := newTestEnv(t, Config{MaxBodyBytes: 256})
	env.create(t, "user-001", map[string]interface{}{"file_name": "x.pdf"})

	tests := []struct {
		name     string
		user     string
		method   string
		path     string
		body     interface{}
		wantCode int
		wantKind string
	}{
		{"missing invoice", "user-002", http.MethodGet, "/api/invoices/inv-404", nil, http.StatusNotFound, "NOT_FOUND"},
		{"other submitter views", "user-004", http.MethodGet, "/api/invoices/inv-001", nil, http.StatusForbidden, "FORBIDDEN"},
		{"missing version", "user-001", http.MethodPost, "/api/invoices/inv-001/submit", `{}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"delete without version", "user-001", http.MethodDelete, "/api/invoices/inv-001", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"malformed json", "user-001", http.MethodPatch, "/api/invoices/inv-001", `{"version":`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown field", "user-001", http.MethodPatch, "/api/invoices/inv-001", `{"version":1,"status":"PAID"}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"negative amount", "user-001", http.MethodPatch, "/api/invoices/inv-001", `{"version":1,"amount":-3}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"stale patch", "user-001", http.MethodPatch, "/api/invoices/inv-001", `{"version":7}`, http.StatusConflict, "VERSION_CONFLICT"},
		{"body too large", "user-001", http.MethodPatch, "/api/invoices/inv-001", fmt.Sprintf(`{"version":1,"description":%q}`, strings.Repeat("x", 300)), http.StatusRequestEntityTooLarge, "VALIDATION_ERROR"},
		{"unknown route", "user-001", http.MethodGet, "/api/nothing", nil, http.StatusNotFound, codeNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var reply errorReply
			code := env.do(t, tc.user, tc.method, tc.path, tc.body, &reply)
			if code != tc.wantCode || reply.Code != tc.wantKind {
				t.Errorf("got %d %+v, want %d %s", code, reply, tc.wantCode, tc.wantKind)
			}
		})
	}

	if code := env.do(t, "user-001", http.MethodDelete, "/api/invoices/inv-001?version=1", nil, nil); code != http.StatusNoContent {
		t.Errorf("delete: status %d, want 204", code)
	}
}

func TestRespondWithErrorHidesInternalErrors(t *testing.T) {
	s := New(nil, nil, nil, Config{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/invoices", nil)

	s.respondWithError(rec, req, errors.New("disk on fire"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "disk on fire") {
		t.Errorf("internal error leaked: %s", rec.Body.String())
	}
}

func TestRecoverMiddleware(t *testing.T) {
	s := New(nil, nil, nil, Config{})
	h := s.recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status %d, want 500", rec.Code)
	}
}
