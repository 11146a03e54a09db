package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"lagervarde/internal/core/apperror"
	"lagervarde/internal/domain/rates"
	"lagervarde/internal/infrastructure/http/v1/dto"
	"lagervarde/pkg/logger"
)

// RatesHandler exposes the exchange-rate cache for inspection and backfill.
type RatesHandler struct {
	*BaseHandler
	resolver *rates.Resolver
	source   rates.Source // nil when no upstream provider is configured
	repo     rates.Repository
}

// NewRatesHandler creates a rates handler.
func NewRatesHandler(base *BaseHandler, resolver *rates.Resolver, source rates.Source, repo rates.Repository) *RatesHandler {
	return &RatesHandler{BaseHandler: base, resolver: resolver, source: source, repo: repo}
}

// Get resolves one currency rate for a date (default today).
// GET /api/v1/rates/:currency?date=2024-01-02
func (h *RatesHandler) Get(c *gin.Context) {
	currency := c.Param("currency")

	var q dto.RateQuery
	if !h.BindQuery(c, &q) {
		return
	}

	date := time.Now().UTC()
	if q.Date != "" {
		parsed, err := time.Parse(rates.DateLayout, q.Date)
		if err != nil {
			h.Error(c, apperror.NewValidation("date must be YYYY-MM-DD").WithDetail("date", q.Date))
			return
		}
		date = parsed
	}

	rate, quality, err := h.resolver.GetRate(c.Request.Context(), currency, date)
	if err != nil {
		h.Error(c, err)
		return
	}

	// Valuation runs absorb the rate-1 fallback and flag it in their output;
	// the inspection endpoint reports it as an error instead.
	if quality == rates.QualityFallback {
		h.Error(c, apperror.NewRateUnresolved(currency, rates.DateKey(date)))
		return
	}

	h.OK(c, dto.RateResponse{
		Currency: currency,
		Date:     rates.DateKey(date),
		Rate:     rate.String(),
		Quality:  quality.String(),
	})
}

// Backfill fetches a historical range from the provider and persists it, so
// the first big valuation run does not pay the cold-cache cost.
// POST /api/v1/rates/backfill
func (h *RatesHandler) Backfill(c *gin.Context) {
	if h.source == nil {
		h.Error(c, apperror.NewValidation("no rate provider configured"))
		return
	}

	var req dto.BackfillRequest
	if !h.BindJSON(c, &req) {
		return
	}

	from, err := time.Parse(rates.DateLayout, req.From)
	if err != nil {
		h.Error(c, apperror.NewValidation("from must be YYYY-MM-DD").WithDetail("from", req.From))
		return
	}
	to, err := time.Parse(rates.DateLayout, req.To)
	if err != nil {
		h.Error(c, apperror.NewValidation("to must be YYYY-MM-DD").WithDetail("to", req.To))
		return
	}
	if to.Before(from) {
		h.Error(c, apperror.NewValidation("to must not be before from"))
		return
	}

	ctx := c.Request.Context()
	fetched := make(map[string]int, len(req.Currencies))
	for _, currency := range req.Currencies {
		obs, err := h.source.FetchRange(ctx, currency, from, to)
		if err != nil {
			h.Error(c, err)
			return
		}
		if err := h.repo.SaveObservations(ctx, obs); err != nil {
			h.Error(c, err)
			return
		}
		fetched[currency] = len(obs)
		logger.Info(ctx, "backfilled rate observations",
			"currency", currency, "count", len(obs),
			"from", req.From, "to", req.To)
	}

	h.OK(c, dto.BackfillResponse{Fetched: fetched})
}
