package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rezonia/zatca-engine/internal/chain"
	"github.com/rezonia/zatca-engine/internal/engine"
	"github.com/rezonia/zatca-engine/internal/server"
	"github.com/rezonia/zatca-engine/internal/zatca"
)

var (
	serverAddr   string
	serverDebug  bool
	readTimeout  time.Duration
	writeTimeout time.Duration

	serveDBPath       string
	serveKeyFile      string
	servePubKeyFile   string
	serveCertSig      string
	serveMaxAttempts  int
	serveRetryBackoff time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start an HTTP API server for invoice submission and onboarding.

The API provides endpoints for:
  - POST /api/v1/invoices/clearance          - Submit for clearance (B2B)
  - POST /api/v1/invoices/reporting          - Submit for reporting (B2C)
  - POST /api/v1/invoices/compliance         - Submit a compliance test invoice
  - POST /api/v1/onboarding/compliance-csid  - Request a compliance CSID
  - POST /api/v1/onboarding/production-csid  - Request a production CSID
  - POST /api/v1/chain/verify                - Verify an invoice chain export
  - POST /api/v1/tools/qr/decode             - Decode a TLV QR payload
  - GET  /health                             - Health check

Examples:
  # Start with in-memory chain state
  zatca-engine serve --key ec-key.pem

  # Persist chain state across restarts
  zatca-engine serve --key ec-key.pem --db chains.db

  # Start in debug mode
  zatca-engine serve --key ec-key.pem --debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverAddr, "address", ":8080", "Server listen address")
	serveCmd.Flags().BoolVar(&serverDebug, "debug", false, "Enable debug mode")
	serveCmd.Flags().DurationVar(&readTimeout, "read-timeout", 30*time.Second, "HTTP read timeout")
	serveCmd.Flags().DurationVar(&writeTimeout, "write-timeout", 5*time.Minute, "HTTP write timeout")

	serveCmd.Flags().StringVar(&serveDBPath, "db", "", "SQLite database for chain state (empty: in-memory)")
	serveCmd.Flags().StringVar(&serveKeyFile, "key", "", "PEM EC private key for invoice signing (required)")
	serveCmd.Flags().StringVar(&servePubKeyFile, "pub", "", "PEM public key for phase-2 QR payloads")
	serveCmd.Flags().StringVar(&serveCertSig, "cert-signature", "", "Base64 certificate signature for phase-2 QR payloads")
	serveCmd.Flags().IntVar(&serveMaxAttempts, "max-attempts", 3, "Submission attempts per invoice")
	serveCmd.Flags().DurationVar(&serveRetryBackoff, "retry-backoff", 500*time.Millisecond, "Pause between submission attempts")

	serveCmd.MarkFlagRequired("key")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()

	privPEM, err := os.ReadFile(serveKeyFile)
	if err != nil {
		return fmt.Errorf("read signing key: %w", err)
	}

	var pubPEM []byte
	if servePubKeyFile != "" {
		pubPEM, err = os.ReadFile(servePubKeyFile)
		if err != nil {
			return fmt.Errorf("read public key: %w", err)
		}
	}

	var store chain.Store
	if serveDBPath != "" {
		db, err := gorm.Open(sqlite.Open(serveDBPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return fmt.Errorf("open chain database: %w", err)
		}
		store, err = chain.NewGormStore(db)
		if err != nil {
			return fmt.Errorf("migrate chain database: %w", err)
		}
	} else {
		store = chain.NewMemoryStore()
	}

	client := zatca.NewClient(endpointConfig(), zatca.WithLogger(log))

	pipeline := engine.NewPipeline(
		chain.NewSequencer(store, log),
		client,
		&engine.Config{
			PrivateKeyPEM: privPEM,
			PublicKeyPEM:  pubPEM,
			CertSignature: serveCertSig,
			MaxAttempts:   serveMaxAttempts,
			RetryBackoff:  serveRetryBackoff,
		},
		engine.WithLogger(log),
	)

	srv := server.NewServer(&server.Config{
		Address:      serverAddr,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		Debug:        serverDebug,
	}, pipeline, client)

	// Handle graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		fmt.Println("\nShutting down server...")
		os.Exit(0)
	}()

	fmt.Printf("Starting server on %s\n", serverAddr)
	if serveDBPath != "" {
		fmt.Printf("Chain state persisted to %s\n", serveDBPath)
	} else {
		fmt.Println("Chain state held in memory (lost on restart)")
	}

	return srv.Run()
}
