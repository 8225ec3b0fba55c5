// Package server exposes the executor's operator commands as a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"order-executor/internal/engine"
	"order-executor/internal/interfaces"
	"order-executor/internal/logger"
	"order-executor/internal/metrics"
	"order-executor/internal/preferences"
	"order-executor/internal/types"
)

// Deps are the collaborators behind the HTTP surface. Metrics may be nil.
type Deps struct {
	Engine      interfaces.Engine
	Gateway     interfaces.Gateway
	Preferences *preferences.Store
	Metrics     *metrics.Metrics
	Ready       func() bool
	Exchange    string
}

// Server serves the command API.
type Server struct {
	d Deps
}

func New(d Deps) *Server {
	if d.Ready == nil {
		d.Ready = func() bool { return true }
	}
	if d.Exchange == "" {
		d.Exchange = "NSE"
	}
	return &Server{d: d}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/entries", s.handleEntry)
	mux.HandleFunc("GET /api/trades", s.handleListTrades)
	mux.HandleFunc("PUT /api/trades/{id}/stop-loss", s.handleModifySL)
	mux.HandleFunc("PUT /api/trades/{id}/target", s.handleModifyTarget)
	mux.HandleFunc("PUT /api/trades/{id}/limit-price", s.handleModifyLimit)
	mux.HandleFunc("DELETE /api/trades/{id}", s.handleCancel)
	mux.HandleFunc("POST /api/trades/{id}/exit", s.handleExit)
	mux.HandleFunc("GET /api/statistics", s.handleStatistics)
	mux.HandleFunc("GET /api/instruments", s.handleSearch)
	mux.HandleFunc("GET /api/preferences", s.handleGetPreferences)
	mux.HandleFunc("PUT /api/preferences", s.handlePutPreferences)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", s.d.Metrics.Handler())
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// ListenAndServe runs the API until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "Command API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type percentBody struct {
	Percent float64 `json:"percent"`
}

type priceBody struct {
	Price float64 `json:"price"`
}

type priceResponse struct {
	OrderID string  `json:"order_id"`
	Price   float64 `json:"price"`
	Warning string  `json:"warning,omitempty"`
}

type tradeResponse struct {
	Trade   types.Trade `json:"trade"`
	Warning string      `json:"warning,omitempty"`
}

type cancelResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Warning string `json:"warning,omitempty"`
}

func (s *Server) handleEntry(w http.ResponseWriter, r *http.Request) {
	var req types.EntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Exchange == "" {
		req.Exchange = s.d.Exchange
	}
	if s.d.Preferences != nil {
		s.d.Preferences.Fill(&req)
	}
	if req.Token == 0 && req.Symbol != "" {
		tok, err := s.resolveToken(r.Context(), req.Exchange, req.Symbol)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		req.Token = tok
	}

	conf, err := s.d.Engine.PlaceEntry(r.Context(), req)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if s.d.Preferences != nil {
		if _, err := s.d.Preferences.Update(preferences.Preferences{
			Capital:       req.Capital,
			SLPercent:     req.StopLossPercent,
			TargetPercent: req.TargetPercent,
		}); err != nil {
			logger.Warn(r.Context(), "Preferences not saved", "error", err)
		}
	}
	writeJSONStatus(w, http.StatusCreated, conf)
}

// resolveToken finds the instrument token for an exact symbol match.
func (s *Server) resolveToken(ctx context.Context, exchange, symbol string) (uint32, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	found, err := s.d.Gateway.SearchInstruments(ctx, exchange, symbol)
	if err != nil {
		return 0, fmt.Errorf("%w: instrument lookup: %v", types.ErrQuoteUnavailable, err)
	}
	for _, in := range found {
		if strings.EqualFold(in.Symbol, symbol) {
			return in.Token, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown symbol %s on %s", types.ErrValidation, symbol, exchange)
}

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.d.Engine.ListOpenTrades(r.Context()))
}

func (s *Server) handleModifySL(w http.ResponseWriter, r *http.Request) {
	s.modifyPercent(w, r, s.d.Engine.ModifySL)
}

func (s *Server) handleModifyTarget(w http.ResponseWriter, r *http.Request) {
	s.modifyPercent(w, r, s.d.Engine.ModifyTarget)
}

func (s *Server) modifyPercent(w http.ResponseWriter, r *http.Request, op func(context.Context, string, float64) (float64, error)) {
	var body percentBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	id := r.PathValue("id")
	price, err := op(r.Context(), id, body.Percent)
	warning, fatal := splitPersistence(err)
	if fatal != nil {
		writeEngineError(w, fatal)
		return
	}
	writeJSON(w, priceResponse{OrderID: id, Price: price, Warning: warning})
}

func (s *Server) handleModifyLimit(w http.ResponseWriter, r *http.Request) {
	var body priceBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	t, err := s.d.Engine.ModifyLimitPrice(r.Context(), r.PathValue("id"), body.Price)
	warning, fatal := splitPersistence(err)
	if fatal != nil {
		writeEngineError(w, fatal)
		return
	}
	writeJSON(w, tradeResponse{Trade: t, Warning: warning})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	warning, fatal := splitPersistence(s.d.Engine.CancelOrder(r.Context(), id))
	if fatal != nil {
		writeEngineError(w, fatal)
		return
	}
	writeJSON(w, cancelResponse{OrderID: id, Status: string(types.StatusCancelled), Warning: warning})
}

func (s *Server) handleExit(w http.ResponseWriter, r *http.Request) {
	res, err := s.d.Engine.ManualExit(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.d.Engine.GetStatistics(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, stats)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	exchange := r.URL.Query().Get("exchange")
	if exchange == "" {
		exchange = s.d.Exchange
	}
	found, err := s.d.Gateway.SearchInstruments(r.Context(), exchange, q)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if found == nil {
		found = []types.Instrument{}
	}
	writeJSON(w, found)
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	if s.d.Preferences == nil {
		writeError(w, http.StatusNotFound, "preferences are not configured")
		return
	}
	writeJSON(w, s.d.Preferences.Get())
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	if s.d.Preferences == nil {
		writeError(w, http.StatusNotFound, "preferences are not configured")
		return
	}
	var p preferences.Preferences
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	saved, err := s.d.Preferences.Update(p)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, saved)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.d.Ready() {
		writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "recovering"})
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// splitPersistence separates a snapshot warning, which leaves the command
// applied, from a real failure.
func splitPersistence(err error) (warning string, fatal error) {
	if err == nil {
		return "", nil
	}
	if errors.Is(err, types.ErrPersistence) {
		return err.Error(), nil
	}
	return "", err
}

type errorResponse struct {
	Error    string `json:"error"`
	Category string `json:"category,omitempty"`
	Hint     string `json:"hint,omitempty"`
}

func writeEngineError(w http.ResponseWriter, err error) {
	var rej *engine.RejectionError
	if errors.As(err, &rej) {
		writeJSONStatus(w, http.StatusUnprocessableEntity, errorResponse{
			Error:    rej.Error(),
			Category: string(rej.Category),
			Hint:     rej.Hint,
		})
		return
	}
	writeError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrValidation), errors.Is(err, types.ErrQuantityTooSmall):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrTradeNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, types.ErrOrderRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrExitOrderFailed):
		return http.StatusBadGateway
	case errors.Is(err, types.ErrQuoteUnavailable), errors.Is(err, types.ErrSubscription):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error(context.Background(), "encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSONStatus(w, status, errorResponse{Error: msg})
}
