package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lagervarde/internal/core/apperror"
	"lagervarde/internal/core/types"
	"lagervarde/internal/domain/rates"
	"lagervarde/internal/infrastructure/http/v1/dto"
	"lagervarde/internal/infrastructure/http/v1/middleware"
)

func newRatesRouter(repo rates.Repository) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.ErrorHandler())
	h := NewRatesHandler(NewBaseHandler(), rates.NewResolver(repo, nil), nil, repo)
	r.GET("/rates/:currency", h.Get)
	return r
}

func TestRatesGet_ObservedRate(t *testing.T) {
	repo := rates.NewInMemoryRepository().Seed(
		rates.Observation{Currency: "USD", Date: "2024-03-01", Rate: types.MustMoney("9.25")},
	)
	router := newRatesRouter(repo)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rates/USD?date=2024-03-01", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.RateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "USD", resp.Currency)
	assert.Equal(t, "9.25", resp.Rate)
	assert.Equal(t, "observed", resp.Quality)
}

func TestRatesGet_UnresolvedRateIs422(t *testing.T) {
	// The engine absorbs the rate-1 fallback; the inspection endpoint must
	// not hand out a fabricated rate as if it were data.
	router := newRatesRouter(rates.NewInMemoryRepository())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rates/NOK?date=2024-01-10", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var resp struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, apperror.CodeRateUnresolved, resp.Code)
	assert.Equal(t, "NOK", resp.Details["currency"])
	assert.Equal(t, "2024-01-10", resp.Details["date"])
}
