package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"dragonfly/internal/api"
	"dragonfly/internal/config"
	"dragonfly/internal/identity"
	"dragonfly/internal/invoice"
	"dragonfly/internal/logger"
	"dragonfly/internal/sheets"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the invoice approval HTTP API",
	Long: `Start the HTTP API over an in-memory invoice store.

Requests authenticate with a bearer token signed with DRAGONFLY_TOKEN_SECRET
(see the token command). Invoices marked paid are appended to a Google Sheet
when GOOGLE_SHEET_URL is set.

Environment variables:
  DRAGONFLY_HTTP_ADDR          - Listen address (default :8080)
  DRAGONFLY_TOKEN_SECRET       - HS256 signing secret (required)
  DRAGONFLY_TOKEN_ISSUER       - Expected token issuer (default dragonfly)
  DRAGONFLY_SEED_FILE          - Directory seed YAML (default: built-in)
  DRAGONFLY_DOCUMENT_BASE_URL  - Prefix of stored document links
  DRAGONFLY_DEFAULT_PAGE_LIMIT - List page size when none is requested
  DRAGONFLY_MAX_PAGE_LIMIT     - Largest accepted list page size
  DRAGONFLY_MAX_BODY_BYTES     - Request body limit
  GOOGLE_SHEET_URL             - Payment ledger spreadsheet (optional)
  GOOGLE_SHEET_WORKSHEET       - Payment ledger worksheet (default Payments)`,
	Example: `  # Serve on the default address
  dragonfly serve

  # Serve on another port with a custom directory
  dragonfly serve --addr :9090 --seed offices.yaml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (default: DRAGONFLY_HTTP_ADDR)")
	serveCmd.Flags().Duration("shutdown-timeout", 15*time.Second, "Grace period for in-flight requests on shutdown")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.HTTPAddr = addr
	}
	shutdownTimeout, _ := cmd.Flags().GetDuration("shutdown-timeout")

	if err := cfg.RequireTokenSecret(); err != nil {
		return err
	}

	dir, err := loadDirectory(cfg)
	if err != nil {
		return err
	}

	resolver, err := identity.NewTokenResolver(identity.TokenConfig{
		Secret: []byte(cfg.TokenSecret),
		Issuer: cfg.TokenIssuer,
		TTL:    cfg.TokenTTL,
	}, dir)
	if err != nil {
		return fmt.Errorf("failed to create token resolver: %w", err)
	}

	ctx, stop := signalContext(log)
	defer stop()

	engine := invoice.NewEngine(invoice.NewStore(), dir, invoice.Config{
		DocumentBaseURL: cfg.DocumentBaseURL,
	})

	var opts []api.Option
	if cfg.LedgerEnabled() {
		ledger, err := createLedger(ctx, cfg, log)
		if err != nil {
			return err
		}
		opts = append(opts, api.WithPaymentRecorder(ledger))
	}

	// Amounts go over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	srv := api.New(engine, resolver, dir, api.Config{
		MaxBodyBytes:     cfg.MaxBodyBytes,
		DefaultPageLimit: cfg.DefaultPageLimit,
		MaxPageLimit:     cfg.MaxPageLimit,
	}, opts...)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.HTTPAddr).
			Int("offices", len(dir.Offices())).
			Bool("ledger", cfg.LedgerEnabled()).
			Msg("HTTP API listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	log.Info().Msg("HTTP API stopped")
	return nil
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext(log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

func createLedger(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*sheets.Service, error) {
	ledger, err := sheets.NewSheetsService(ctx, sheets.Config{
		SheetURL:        cfg.GoogleSheetURL,
		Worksheet:       cfg.GoogleSheetWorksheet,
		CredentialsFile: cfg.GoogleCredentialFile,
		CredentialsJSON: cfg.GoogleCredentials,
	})
	if err != nil {
		if errors.Is(err, sheets.ErrNoCredentials) {
			log.Error().
				Err(err).
				Msg("Google credentials not configured for the payment ledger")
			return nil, fmt.Errorf("missing Google credentials. Please set one of:\n" +
				"  GOOGLE_APPLICATION_CREDENTIALS=/path/to/service-account-key.json\n" +
				"  GOOGLE_CREDENTIALS='<json-credentials>'\n" +
				"or unset GOOGLE_SHEET_URL to disable the payment ledger")
		}
		return nil, fmt.Errorf("failed to create payment ledger: %w", err)
	}
	return ledger, nil
}
