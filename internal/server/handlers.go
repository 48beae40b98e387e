package server

import (
	"io"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"financial-statements-service/internal/metrics"
	"financial-statements-service/internal/models"
	"financial-statements-service/internal/store"
	"financial-statements-service/pkg/errors"
)

// handleUpload ingests a multipart statement upload. A byte-identical
// re-upload returns the existing statement with 200 instead of 201.
func (s *Server) handleUpload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "multipart field 'file' is required")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return errors.DocumentError(errors.CodeUnreadableText, fileHeader.Filename, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return errors.DocumentError(errors.CodeUnreadableText, fileHeader.Filename, err)
	}

	result, err := s.service.Ingest(c.Context(), fileHeader.Filename, data)
	if err != nil {
		return err
	}

	status := fiber.StatusCreated
	if !result.Created {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(result)
}

func (s *Server) handleListStatements(c *fiber.Ctx) error {
	statements := s.service.Store().ListStatements()
	return c.JSON(fiber.Map{
		"statements": statements,
		"total":      len(statements),
	})
}

func (s *Server) handleGetStatement(c *fiber.Ctx) error {
	statement, err := s.service.Store().GetStatement(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(statement)
}

type statementPatchRequest struct {
	IncludeInMetrics *bool `json:"include_in_metrics"`
}

func (s *Server) handlePatchStatement(c *fiber.Ctx) error {
	var req statementPatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if req.IncludeInMetrics == nil {
		return fiber.NewError(fiber.StatusBadRequest, "include_in_metrics is required")
	}

	statement, err := s.service.Store().SetIncludeInMetrics(c.Params("id"), *req.IncludeInMetrics)
	if err != nil {
		return err
	}
	return c.JSON(statement)
}

func (s *Server) handleReparse(c *fiber.Ctx) error {
	statement, err := s.service.Reparse(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(statement)
}

func (s *Server) handleListTransactions(c *fiber.Ctx) error {
	filter, err := transactionFilterFromQuery(c)
	if err != nil {
		return err
	}

	transactions, total, err := s.service.Store().ListTransactions(filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"transactions": transactions,
		"total":        total,
		"limit":        filter.Limit,
		"offset":       filter.Offset,
	})
}

// transactionPatchRequest is the override patch body. Absent fields are left
// untouched; the clear flags reset a field to its parsed value.
type transactionPatchRequest struct {
	Category      *string `json:"category"`
	ClearCategory bool    `json:"clear_category"`

	Amount      *string `json:"amount"`
	ClearAmount bool    `json:"clear_amount"`

	FlipSign  *bool `json:"flip_sign"`
	ClearSign bool  `json:"clear_sign"`

	Reason      *string `json:"reason"`
	NeedsReview *bool   `json:"needs_review"`
}

func (s *Server) handlePatchTransaction(c *fiber.Ctx) error {
	var req transactionPatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}

	patch := store.OverridePatch{
		ClearCategory: req.ClearCategory,
		ClearAmount:   req.ClearAmount,
		ClearSign:     req.ClearSign,
		FlipSign:      req.FlipSign,
		Reason:        req.Reason,
		NeedsReview:   req.NeedsReview,
	}

	if req.Category != nil {
		category := models.Category(*req.Category)
		if !category.IsValid() {
			return fiber.NewError(fiber.StatusBadRequest, "unknown category: "+*req.Category)
		}
		patch.Category = &category
	}

	if req.Amount != nil {
		amount, err := decimal.NewFromString(*req.Amount)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid amount: "+*req.Amount)
		}
		if amount.IsNegative() {
			return fiber.NewError(fiber.StatusBadRequest, "amount override must be non-negative, use flip_sign to change direction")
		}
		patch.Amount = &amount
	}

	txn, err := s.service.Store().UpdateTransactionOverride(c.Params("id"), patch)
	if err != nil {
		return err
	}
	return c.JSON(txn)
}

func (s *Server) handleMonthlyMetrics(c *fiber.Ctx) error {
	rows, err := s.service.MonthlyMetrics(metricsParamsFromQuery(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"metrics": rows})
}

func (s *Server) handleSummaryMetrics(c *fiber.Ctx) error {
	summaries, err := s.service.SummaryMetrics(metricsParamsFromQuery(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"summary": summaries})
}

func (s *Server) handleExportTransactionsCSV(c *fiber.Ctx) error {
	filter, err := transactionFilterFromQuery(c)
	if err != nil {
		return err
	}

	transactions, _, err := s.service.Store().ListTransactions(filter)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="transactions.csv"`)
	return s.exporter.WriteTransactionsCSV(c.Response().BodyWriter(), transactions)
}

func (s *Server) handleExportMetricsJSON(c *fiber.Ctx) error {
	rows, err := s.service.MonthlyMetrics(metricsParamsFromQuery(c))
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="metrics.json"`)
	return s.exporter.WriteMetricsJSON(c.Response().BodyWriter(), rows)
}

func transactionFilterFromQuery(c *fiber.Ctx) (store.TransactionFilter, error) {
	filter := store.TransactionFilter{
		StatementID: c.Query("statement_id"),
		Month:       c.Query("month"),
		Currency:    c.Query("currency"),
		Limit:       c.QueryInt("limit", 100),
		Offset:      c.QueryInt("offset", 0),
	}

	if raw := c.Query("category"); raw != "" {
		category := models.Category(raw)
		if !category.IsValid() {
			return filter, fiber.NewError(fiber.StatusBadRequest, "unknown category: "+raw)
		}
		filter.Category = &category
	}

	if raw := c.Query("needs_review"); raw != "" {
		needsReview, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, fiber.NewError(fiber.StatusBadRequest, "needs_review must be a boolean")
		}
		filter.NeedsReview = &needsReview
	}

	if filter.Limit < 0 || filter.Offset < 0 {
		return filter, fiber.NewError(fiber.StatusBadRequest, "limit and offset must be non-negative")
	}

	return filter, nil
}

func metricsParamsFromQuery(c *fiber.Ctx) metrics.Params {
	return metrics.Params{
		FromMonth:                c.Query("from_month"),
		ToMonth:                  c.Query("to_month"),
		Currency:                 c.Query("currency"),
		IncludeInternalTransfers: c.QueryBool("include_internal_transfers", false),
		UseOverrides:             c.QueryBool("use_overrides", true),
	}
}
