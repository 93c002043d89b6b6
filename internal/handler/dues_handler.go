package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/markaz-adp-api/internal/models"
	appErrors "github.com/noah-isme/markaz-adp-api/pkg/errors"
	"github.com/noah-isme/markaz-adp-api/pkg/response"
)

type duesService interface {
	Summary(ctx context.Context) (*models.DuesSummary, error)
	StudentDues(ctx context.Context, studentID string) (*models.StudentDues, error)
	AutoCompletePayment(ctx context.Context, actor *models.JWTClaims, studentID string) (*models.Payment, error)
}

type duesExporter interface {
	RenderDues(ctx context.Context, format models.ReportFormat) ([]byte, string, error)
}

// DuesHandler exposes the dues reconciliation endpoints.
type DuesHandler struct {
	service  duesService
	exporter duesExporter
}

// NewDuesHandler constructs the handler.
func NewDuesHandler(service duesService, exporter duesExporter) *DuesHandler {
	return &DuesHandler{service: service, exporter: exporter}
}

// Summary godoc
// @Summary Dues reconciliation summary
// @Tags Dues
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dues [get]
func (h *DuesHandler) Summary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Student godoc
// @Summary One student's dues row
// @Tags Dues
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /dues/{studentId} [get]
func (h *DuesHandler) Student(c *gin.Context) {
	row, err := h.service.StudentDues(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, row, nil)
}

// AutoComplete godoc
// @Summary Settle a student's remaining balance
// @Tags Dues
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 201 {object} response.Envelope
// @Router /dues/{studentId}/auto-complete [post]
func (h *DuesHandler) AutoComplete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	payment, err := h.service.AutoCompletePayment(c.Request.Context(), claims, c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, payment)
}

// Export godoc
// @Summary Download the dues statement
// @Tags Dues
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /dues/export [get]
func (h *DuesHandler) Export(c *gin.Context) {
	format := models.ReportFormat(c.DefaultQuery("format", "csv"))
	if format != models.ReportFormatCSV && format != models.ReportFormatPDF {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
		return
	}

	payload, contentType, err := h.exporter.RenderDues(c.Request.Context(), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	fileName := fmt.Sprintf("dues-%s.%s", time.Now().UTC().Format("2006-01-02"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	c.Data(http.StatusOK, contentType, payload)
}
