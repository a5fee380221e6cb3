// Package server exposes the compliance engine over HTTP: invoice
// submission in all three modes, CSID onboarding, chain verification and QR
// decoding tooling.
package server

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rezonia/zatca-engine/internal/chain"
	"github.com/rezonia/zatca-engine/internal/engine"
	"github.com/rezonia/zatca-engine/internal/model"
	"github.com/rezonia/zatca-engine/internal/stamp"
	"github.com/rezonia/zatca-engine/internal/tlv"
	"github.com/rezonia/zatca-engine/internal/zatca"
)

// Config holds server configuration
type Config struct {
	Address      string        `json:"address" mapstructure:"address"`
	ReadTimeout  time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
	Debug        bool          `json:"debug" mapstructure:"debug"`
}

// Onboarder is the CSID lifecycle surface. *zatca.Client implements it.
type Onboarder interface {
	RequestComplianceCSID(ctx context.Context, csr, otp string) *zatca.CSIDResult
	RequestProductionCSID(ctx context.Context, compliance model.Credential, complianceRequestID string) *zatca.CSIDResult
}

// Server represents the HTTP API server
type Server struct {
	config    *Config
	router    *gin.Engine
	pipeline  *engine.Pipeline
	onboarder Onboarder
}

// NewServer creates a new API server
func NewServer(config *Config, pipeline *engine.Pipeline, onboarder Onboarder) *Server {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if config.Debug {
		router.Use(gin.Logger())
	}

	s := &Server{
		config:    config,
		router:    router,
		pipeline:  pipeline,
		onboarder: onboarder,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.handleHealth)

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		// Submission endpoints
		v1.POST("/invoices/clearance", s.handleSubmit(engine.ModeClearance))
		v1.POST("/invoices/reporting", s.handleSubmit(engine.ModeReporting))
		v1.POST("/invoices/compliance", s.handleSubmit(engine.ModeCompliance))

		// Onboarding endpoints
		v1.POST("/onboarding/compliance-csid", s.handleComplianceCSID)
		v1.POST("/onboarding/production-csid", s.handleProductionCSID)

		// Tooling endpoints
		v1.POST("/chain/verify", s.handleChainVerify)
		v1.POST("/tools/qr/decode", s.handleQRDecode)
	}
}

// Run starts the HTTP server
func (s *Server) Run() error {
	srv := &http.Server{
		Addr:         s.config.Address,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	return srv.ListenAndServe()
}

// Handler returns the http.Handler for use with custom servers
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleSubmit(mode engine.Mode) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req InvoiceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Details: err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Minute)
		defer cancel()

		result, err := s.pipeline.Issue(ctx, &engine.Request{
			OrgID:      req.OrgID,
			Mode:       mode,
			Credential: req.Credential.toModel(),
			Invoice:    req.Invoice.toModel(),
		})
		if err != nil {
			status, resp := mapEngineError(err)
			c.JSON(status, resp)
			return
		}

		response := SubmissionResponse{
			UUID:         result.Invoice.UUID,
			ICV:          result.Invoice.ICV,
			PreviousHash: result.Invoice.PreviousHash,
			InvoiceHash:  result.InvoiceHash,
			Signature:    result.Signature,
			QRCode:       result.QRCode,
			Attempts:     result.Attempts,
			Submission:   result.Submission,
		}

		// A rejected invoice still occupies its chain position; the caller
		// gets the full result either way.
		if result.Submission.Success {
			c.JSON(http.StatusOK, response)
		} else {
			c.JSON(http.StatusUnprocessableEntity, response)
		}
	}
}

// mapEngineError translates engine-side failures into HTTP statuses:
// malformed input is the caller's fault, chain conflicts are contention,
// everything else is ours.
func mapEngineError(err error) (int, ErrorResponse) {
	var buildErr *model.BuildError
	if errors.As(err, &buildErr) {
		return http.StatusBadRequest, ErrorResponse{Error: "invalid invoice", Details: buildErr.Error()}
	}
	var csrErr *model.CSRError
	if errors.As(err, &csrErr) {
		return http.StatusBadRequest, ErrorResponse{Error: "invalid csr configuration", Details: csrErr.Error()}
	}
	var chainErr *model.ChainError
	if errors.As(err, &chainErr) {
		return http.StatusConflict, ErrorResponse{Error: "chain conflict", Details: chainErr.Error()}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: "submission failed", Details: err.Error()}
}

func (s *Server) handleComplianceCSID(c *gin.Context) {
	var req ComplianceCSIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Details: err.Error()})
		return
	}

	response := OnboardingResponse{}

	privPEM := []byte(req.PrivateKey)
	if len(privPEM) == 0 {
		priv, pub, err := stamp.GenerateKeyPair(req.Curve)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "key generation failed", Details: err.Error()})
			return
		}
		privPEM = priv
		response.PrivateKey = string(priv)
		response.PublicKey = string(pub)
	}

	csr, err := stamp.GenerateCSR(req.CSRConfig, privPEM)
	if err != nil {
		status, resp := mapEngineError(err)
		c.JSON(status, resp)
		return
	}
	response.CSR = csr

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	response.Result = s.onboarder.RequestComplianceCSID(ctx, csr, req.OTP)
	if response.Result.Success {
		c.JSON(http.StatusOK, response)
	} else {
		c.JSON(http.StatusUnprocessableEntity, response)
	}
}

func (s *Server) handleProductionCSID(c *gin.Context) {
	var req ProductionCSIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Details: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	cred := req.Credential.toModel()
	cred.Stage = model.StageCompliance

	result := s.onboarder.RequestProductionCSID(ctx, cred, req.ComplianceRequestID)
	response := OnboardingResponse{Result: result}
	if result.Success {
		c.JSON(http.StatusOK, response)
	} else {
		c.JSON(http.StatusUnprocessableEntity, response)
	}
}

func (s *Server) handleChainVerify(c *gin.Context) {
	var req ChainVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Details: err.Error()})
		return
	}

	documents := make([][]byte, len(req.Documents))
	for i, doc := range req.Documents {
		raw, err := base64.StdEncoding.DecodeString(doc)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "document is not base64", Details: err.Error()})
			return
		}
		documents[i] = raw
	}

	if err := chain.VerifyChain(req.OrgID, documents); err != nil {
		c.JSON(http.StatusOK, ChainVerifyResponse{Valid: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, ChainVerifyResponse{Valid: true})
}

func (s *Server) handleQRDecode(c *gin.Context) {
	var req QRDecodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Details: err.Error()})
		return
	}

	records, err := tlv.DecodeSequence(req.Payload)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "malformed QR payload", Details: err.Error()})
		return
	}

	out := make([]QRRecordOutput, len(records))
	for i, r := range records {
		out[i] = QRRecordOutput{
			Tag:         int(r.Tag),
			Value:       string(r.Value),
			ValueBase64: base64.StdEncoding.EncodeToString(r.Value),
		}
	}
	c.JSON(http.StatusOK, gin.H{"records": out})
}
