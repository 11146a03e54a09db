package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"lagervarde/internal/core/apperror"
	"lagervarde/internal/domain/valuation"
	"lagervarde/internal/infrastructure/export"
	"lagervarde/internal/infrastructure/http/v1/dto"
	"lagervarde/internal/infrastructure/storage/postgres"
	"lagervarde/pkg/logger"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ValuationHandler serves valuation runs and the run archive.
type ValuationHandler struct {
	*BaseHandler
	svc     *valuation.Service
	archive *postgres.RunArchive // nil when running without a database
}

// NewValuationHandler creates a valuation handler.
func NewValuationHandler(base *BaseHandler, svc *valuation.Service, archive *postgres.RunArchive) *ValuationHandler {
	return &ValuationHandler{BaseHandler: base, svc: svc, archive: archive}
}

// Run computes a fresh portfolio valuation and archives it.
// POST /api/v1/companies/:companyId/valuations
func (h *ValuationHandler) Run(c *gin.Context) {
	companyID := c.Param("companyId")
	if companyID == "" {
		h.Error(c, apperror.NewValidation("companyId is required"))
		return
	}

	ctx := c.Request.Context()
	pv, err := h.svc.Run(ctx, companyID)
	if err != nil {
		h.Error(c, err)
		return
	}

	// The archive is bookkeeping; a failed write must not discard the run.
	if h.archive != nil {
		if err := h.archive.Save(ctx, pv); err != nil {
			logger.Error(ctx, "failed to archive valuation run",
				"run_id", pv.RunID, "error", err)
		}
	}

	h.OK(c, pv)
}

// List returns archived run headers for a company, newest first.
// GET /api/v1/companies/:companyId/valuations
func (h *ValuationHandler) List(c *gin.Context) {
	if h.archive == nil {
		h.Error(c, apperror.NewValidation("run archive is not configured"))
		return
	}

	companyID := c.Param("companyId")
	limit := h.ParseIntQuery(c, "limit", 50)

	records, err := h.archive.List(c.Request.Context(), companyID, limit)
	if err != nil {
		h.Error(c, err)
		return
	}

	resp := dto.RunListResponse{Runs: make([]dto.RunSummary, 0, len(records))}
	for _, r := range records {
		resp.Runs = append(resp.Runs, dto.RunSummary{
			RunID:           r.RunID,
			CompanyID:       r.CompanyID,
			GeneratedAt:     r.GeneratedAt,
			TotalValue:      r.TotalValue,
			TotalQuantity:   r.TotalQuantity,
			UnknownQuantity: r.UnknownQuantity,
		})
	}
	h.OK(c, resp)
}

// Get returns one archived valuation tree.
// GET /api/v1/runs/:runId
func (h *ValuationHandler) Get(c *gin.Context) {
	pv, ok := h.loadRun(c)
	if !ok {
		return
	}
	h.OK(c, pv)
}

// Export renders one archived run as an Excel workbook.
// GET /api/v1/runs/:runId/export
func (h *ValuationHandler) Export(c *gin.Context) {
	pv, ok := h.loadRun(c)
	if !ok {
		return
	}

	data, err := export.Excel(pv)
	if err != nil {
		h.Error(c, apperror.NewInternal(err))
		return
	}

	filename := fmt.Sprintf("valuation-%s-%s.xlsx", pv.CompanyID, pv.GeneratedAt.Format("2006-01-02"))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, xlsxContentType, data)
}

func (h *ValuationHandler) loadRun(c *gin.Context) (*valuation.PortfolioValuation, bool) {
	if h.archive == nil {
		h.Error(c, apperror.NewValidation("run archive is not configured"))
		return nil, false
	}

	runID := c.Param("runId")
	pv, err := h.archive.Get(c.Request.Context(), runID)
	if err != nil {
		h.Error(c, err)
		return nil, false
	}
	if pv == nil {
		h.Error(c, apperror.NewNotFound("valuation run", runID))
		return nil, false
	}
	return pv, true
}
