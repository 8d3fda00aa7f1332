package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-chart/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/quote-chart/pkg/models"
)

// API serves the chart configuration and bulk history over REST.
type API struct {
	store  repository.QuoteStore
	config models.ChartConfig
	logger *zap.Logger
}

func NewAPI(store repository.QuoteStore, cfg models.ChartConfig, logger *zap.Logger) *API {
	return &API{store: store, config: cfg, logger: logger}
}

func (a *API) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/config", a.handleConfig)
	mux.HandleFunc("GET /api/quotes", a.handleQuotes)
}

func (a *API) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.config)
}

func (a *API) handleQuotes(w http.ResponseWriter, r *http.Request) {
	req, err := ParseQuotesRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	batch, err := a.store.Quotes(r.Context(), req)
	switch {
	case errors.Is(err, repository.ErrCursorAhead), errors.Is(err, repository.ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		a.logger.Error("Failed to read quotes", zap.Error(err))
		http.Error(w, "quotes unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

// ParseQuotesRequest reads the resumption token from the query string.
func ParseQuotesRequest(r *http.Request) (models.QuotesRequest, error) {
	var req models.QuotesRequest
	q := r.URL.Query()
	if v := q.Get("from_index"); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return req, fmt.Errorf("invalid from_index %q", v)
		}
		req.FromIndex = &i
	}
	if v := q.Get("from_timestamp_sec"); v != "" {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return req, fmt.Errorf("invalid from_timestamp_sec %q", v)
		}
		req.FromTimestampSec = &ts
	}
	return req, repository.ValidateRequest(req)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
