// Package server exposes the ingestion pipeline over HTTP.
//
// All endpoints live under /api/v1. Uploads are multipart form posts;
// everything else speaks JSON. Errors carry the structured code and
// suggestion from the service layer so clients can distinguish a malformed
// document from a duplicate or a missing record.
package server

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"financial-statements-service/internal/exporter"
	"financial-statements-service/internal/service"
	"financial-statements-service/pkg/errors"
	"financial-statements-service/pkg/logger"
)

// Config holds the HTTP server configuration
type Config struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BodyLimitMB  int           `mapstructure:"body_limit_mb"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DefaultConfig returns a default server configuration
func DefaultConfig() *Config {
	return &Config{
		Host:         "0.0.0.0",
		Port:         8080,
		BodyLimitMB:  25,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Validate validates the server configuration
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be within [1, 65535], got %d", c.Port)
	}
	if c.BodyLimitMB < 1 {
		return fmt.Errorf("body limit must be at least 1 MB, got %d", c.BodyLimitMB)
	}
	return nil
}

// Address returns the host:port listen address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Server is the HTTP front end of the ingestion service
type Server struct {
	app      *fiber.App
	config   *Config
	service  *service.Service
	exporter *exporter.Exporter
	logger   logger.Logger
}

// NewServer builds the fiber application and registers all routes
func NewServer(config *Config, svc *service.Service) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "server", err)
	}

	exp, err := exporter.NewExporter(nil)
	if err != nil {
		return nil, err
	}

	server := &Server{
		config:   config,
		service:  svc,
		exporter: exp,
		logger:   logger.WithComponent("server"),
	}

	server.app = fiber.New(fiber.Config{
		AppName:      "financial-statements-service",
		BodyLimit:    config.BodyLimitMB * 1024 * 1024,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		ErrorHandler: server.handleError,
	})

	server.registerRoutes()
	return server, nil
}

// App exposes the fiber application, used by tests
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves HTTP on the configured address until Shutdown is called
func (s *Server) Listen() error {
	s.logger.WithField("address", s.config.Address()).Info("HTTP server listening")
	return s.app.Listen(s.config.Address())
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) registerRoutes() {
	s.app.Get("/healthz", s.handleHealth)

	api := s.app.Group("/api/v1")

	api.Post("/statements", s.handleUpload)
	api.Get("/statements", s.handleListStatements)
	api.Get("/statements/:id", s.handleGetStatement)
	api.Patch("/statements/:id", s.handlePatchStatement)
	api.Post("/statements/:id/reparse", s.handleReparse)

	api.Get("/transactions", s.handleListTransactions)
	api.Patch("/transactions/:id", s.handlePatchTransaction)

	api.Get("/metrics/monthly", s.handleMonthlyMetrics)
	api.Get("/metrics/summary", s.handleSummaryMetrics)

	api.Get("/export/transactions.csv", s.handleExportTransactionsCSV)
	api.Get("/export/metrics.json", s.handleExportMetricsJSON)
}

// errorBody is the JSON error envelope
type errorBody struct {
	Error      string `json:"error"`
	Code       string `json:"code,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// handleError maps structured errors onto HTTP status codes
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	if fiberErr, ok := err.(*fiber.Error); ok {
		return c.Status(fiberErr.Code).JSON(errorBody{Error: fiberErr.Message})
	}

	statementErr, ok := errors.AsStatementError(err)
	if !ok {
		s.logger.WithError(err).Error("Unhandled error")
		return c.Status(fiber.StatusInternalServerError).JSON(errorBody{Error: "internal error"})
	}

	status := fiber.StatusInternalServerError
	switch {
	case statementErr.Code == errors.CodeNotFound:
		status = fiber.StatusNotFound
	case statementErr.Category == errors.CategoryDocument:
		status = fiber.StatusUnprocessableEntity
	case statementErr.Category == errors.CategoryField,
		statementErr.Category == errors.CategoryConfiguration:
		status = fiber.StatusBadRequest
	}

	if status >= 500 {
		s.logger.WithError(statementErr).Error("Request failed")
	} else {
		s.logger.WithError(statementErr).Debug("Request rejected")
	}

	return c.Status(status).JSON(errorBody{
		Error:      statementErr.Message,
		Code:       string(statementErr.Code),
		Suggestion: statementErr.Suggestion,
	})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":     "ok",
		"statements": s.service.Store().StatementCount(),
	})
}
