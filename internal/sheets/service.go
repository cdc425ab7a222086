package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"dragonfly/internal/logger"
	"dragonfly/pkg/models"
)

// ErrNoCredentials is returned when neither a credentials file nor inline
// credentials are configured.
var ErrNoCredentials = errors.New("neither GOOGLE_APPLICATION_CREDENTIALS nor GOOGLE_CREDENTIALS is set")

// Config locates the payment ledger spreadsheet.
type Config struct {
	SheetURL        string
	Worksheet       string
	CredentialsFile string // service account key file
	CredentialsJSON string // inline service account key, used when no file is set
}

// Service appends paid invoices to a Google Sheets payment ledger
type Service struct {
	sheetsService *sheets.Service
	spreadsheetID string
	worksheet     string
	log           zerolog.Logger

	headersMu    sync.Mutex
	headersReady bool
}

// PaymentRow is one ledger line.
type PaymentRow struct {
	InvoiceID        string
	InvoiceNumber    string
	Office           string
	Vendor           string
	Amount           string
	Currency         string
	Category         string
	InvoiceDate      string
	PaymentMethod    string
	PaymentReference string
	PaymentDate      string
	SubmittedBy      string
	PaidBy           string
	PaidAt           string
}

var headers = []interface{}{
	"Invoice", "Invoice No.", "Office", "Vendor", "Amount", "Currency",
	"Category", "Invoice Date", "Method", "Reference", "Payment Date",
	"Submitted By", "Paid By", "Recorded At",
}

// NewSheetsService creates a new Google Sheets service
func NewSheetsService(ctx context.Context, cfg Config) (*Service, error) {
	const op = "NewSheetsService"

	log := logger.WithComponent("sheets")

	spreadsheetID, err := extractSpreadsheetID(cfg.SheetURL)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to extract spreadsheet ID: %w", op, err)
	}

	log.Debug().Str("spreadsheet_id", spreadsheetID).Msg("Extracted spreadsheet ID")

	var creds []byte
	switch {
	case cfg.CredentialsFile != "":
		creds, err = os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read credentials file: %w", op, err)
		}
	case cfg.CredentialsJSON != "":
		creds = []byte(cfg.CredentialsJSON)
	default:
		return nil, fmt.Errorf("%s: %w", op, ErrNoCredentials)
	}

	config, err := google.JWTConfigFromJSON(creds, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse credentials: %w", op, err)
	}

	client := config.Client(ctx)
	sheetsService, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create sheets service: %w", op, err)
	}

	return newService(sheetsService, spreadsheetID, cfg.Worksheet, log), nil
}

func newService(svc *sheets.Service, spreadsheetID, worksheet string, log zerolog.Logger) *Service {
	if worksheet == "" {
		worksheet = "Payments"
	}
	return &Service{
		sheetsService: svc,
		spreadsheetID: spreadsheetID,
		worksheet:     worksheet,
		log:           log,
	}
}

var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// extractSpreadsheetID extracts the spreadsheet ID from a Google Sheets URL
func extractSpreadsheetID(url string) (string, error) {
	matches := spreadsheetIDPattern.FindStringSubmatch(url)
	if len(matches) < 2 {
		return "", fmt.Errorf("invalid Google Sheets URL format: %q", url)
	}
	return matches[1], nil
}

// RecordPayment appends one ledger row for a paid invoice.
func (s *Service) RecordPayment(ctx context.Context, inv models.Invoice) error {
	const op = "RecordPayment"

	if inv.Status != models.StatusPaid {
		return fmt.Errorf("%s: invoice %s is %s, not PAID", op, inv.ID, inv.Status)
	}

	if err := s.ensureSheetWithHeaders(ctx); err != nil {
		return fmt.Errorf("%s: failed to ensure sheet exists: %w", op, err)
	}

	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{rowToValues(RowFromInvoice(inv))},
	}
	_, err := s.sheetsService.Spreadsheets.Values.Append(
		s.spreadsheetID,
		s.worksheet+"!"+columnSpan,
		valueRange,
	).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to append values to sheet: %w", op, err)
	}

	s.log.Info().
		Str("invoice_id", inv.ID).
		Str("sheet", s.worksheet).
		Msg("Recorded payment in Google Sheet")
	return nil
}

// RowFromInvoice renders inv as a ledger row.
func RowFromInvoice(inv models.Invoice) PaymentRow {
	row := PaymentRow{
		InvoiceID:        inv.ID,
		InvoiceNumber:    inv.InvoiceNumber,
		Office:           inv.Office.Name,
		Vendor:           inv.VendorName,
		Amount:           inv.Amount.StringFixed(2),
		Currency:         inv.Currency,
		InvoiceDate:      inv.InvoiceDate,
		PaymentMethod:    string(inv.PaymentMethod),
		PaymentReference: inv.PaymentReference,
		PaymentDate:      inv.PaymentDate,
		SubmittedBy:      inv.SubmittedBy.Name,
	}
	if inv.Category != nil {
		row.Category = inv.Category.Name
	}
	if inv.PaidBy != nil {
		row.PaidBy = inv.PaidBy.Name
	}
	if inv.PaidAt != nil {
		row.PaidAt = inv.PaidAt.UTC().Format(time.RFC3339)
	}
	return row
}

const columnSpan = "A:N"

func rowToValues(row PaymentRow) []interface{} {
	return []interface{}{
		row.InvoiceID,        // A
		row.InvoiceNumber,    // B
		row.Office,           // C
		row.Vendor,           // D
		row.Amount,           // E
		row.Currency,         // F
		row.Category,         // G
		row.InvoiceDate,      // H
		row.PaymentMethod,    // I
		row.PaymentReference, // J
		row.PaymentDate,      // K
		row.SubmittedBy,      // L
		row.PaidBy,           // M
		row.PaidAt,           // N
	}
}

// ensureSheetWithHeaders creates the worksheet and its header row once per
// process.
func (s *Service) ensureSheetWithHeaders(ctx context.Context) error {
	const op = "ensureSheetWithHeaders"

	s.headersMu.Lock()
	defer s.headersMu.Unlock()
	if s.headersReady {
		return nil
	}

	spreadsheet, err := s.sheetsService.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to get spreadsheet: %w", op, err)
	}

	var sheetExists bool
	var sheetID int64
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties.Title == s.worksheet {
			sheetExists = true
			sheetID = sheet.Properties.SheetId
			break
		}
	}

	if !sheetExists {
		s.log.Info().Str("sheet", s.worksheet).Msg("Creating new sheet")

		batchUpdateReq := &sheets.BatchUpdateSpreadsheetRequest{
			Requests: []*sheets.Request{
				{AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{Title: s.worksheet},
				}},
			},
		}
		resp, err := s.sheetsService.Spreadsheets.BatchUpdate(s.spreadsheetID, batchUpdateReq).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("%s: failed to create sheet: %w", op, err)
		}
		sheetID = resp.Replies[0].AddSheet.Properties.SheetId
	}

	headerRange := fmt.Sprintf("%s!A1:N1", s.worksheet)
	resp, err := s.sheetsService.Spreadsheets.Values.Get(s.spreadsheetID, headerRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to get headers: %w", op, err)
	}

	if len(resp.Values) == 0 || len(resp.Values[0]) == 0 {
		s.log.Info().Str("sheet", s.worksheet).Msg("Adding headers to sheet")

		valueRange := &sheets.ValueRange{Values: [][]interface{}{headers}}
		_, err = s.sheetsService.Spreadsheets.Values.Update(
			s.spreadsheetID,
			headerRange,
			valueRange,
		).ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("%s: failed to add headers: %w", op, err)
		}

		if err := s.formatHeaders(ctx, sheetID); err != nil {
			s.log.Warn().Err(err).Msg("Failed to format headers, continuing anyway")
		}
	}

	s.headersReady = true
	return nil
}

// formatHeaders makes the header row bold and sizes the columns
func (s *Service) formatHeaders(ctx context.Context, sheetID int64) error {
	const op = "formatHeaders"

	width := int64(len(headers))
	requests := []*sheets.Request{
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   width,
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat: &sheets.TextFormat{Bold: true},
						BackgroundColor: &sheets.Color{
							Red:   0.9,
							Green: 0.9,
							Blue:  0.9,
						},
					},
				},
				Fields: "userEnteredFormat(textFormat,backgroundColor)",
			},
		},
		{
			AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   width,
				},
			},
		},
	}

	batchUpdateReq := &sheets.BatchUpdateSpreadsheetRequest{Requests: requests}
	if _, err := s.sheetsService.Spreadsheets.BatchUpdate(s.spreadsheetID, batchUpdateReq).Context(ctx).Do(); err != nil {
		return fmt.Errorf("%s: failed to format headers: %w", op, err)
	}
	return nil
}
