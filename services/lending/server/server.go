package server

import (
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lendcore/native/bank"
	"lendcore/native/lending"
	"lendcore/native/oracle"
	"lendcore/observability/metrics"
)

// LiquidationLister exposes the stored liquidation history.
type LiquidationLister interface {
	Liquidations() ([]lending.LiquidationRecord, error)
}

// Config captures the dependencies required to construct the server.
type Config struct {
	Engine       *lending.Engine
	Liquidations LiquidationLister
	Prices       oracle.PriceOracle
	Vault        *bank.Vault
	Log          *slog.Logger
}

// Server exposes the lending engine over HTTP.
type Server struct {
	engine       *lending.Engine
	liquidations LiquidationLister
	prices       oracle.PriceOracle
	vault        *bank.Vault
	log          *slog.Logger
	metrics      *metrics.LendingMetrics

	router http.Handler
}

// New constructs a configured HTTP router for the lending API.
func New(cfg Config) *Server {
	logger := cfg.Log
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		engine:       cfg.Engine,
		liquidations: cfg.Liquidations,
		prices:       cfg.Prices,
		vault:        cfg.Vault,
		log:          logger,
		metrics:      metrics.Lending(),
	}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Post("/deposit", s.handleDeposit)
		api.Post("/withdraw", s.handleWithdraw)
		api.Post("/borrow", s.handleBorrow)
		api.Post("/repay", s.handleRepay)
		api.Post("/liquidate", s.handleLiquidate)
		api.Post("/fees/withdraw", s.handleWithdrawFees)
		api.Get("/pools/{asset}", s.handlePool)
		api.Get("/accounts/{account}/risk", s.handleRisk)
		api.Get("/accounts/{account}/positions/{asset}", s.handlePosition)
		api.Get("/liquidations", s.handleLiquidations)
		api.Get("/prices/{asset}", s.handlePrice)
		if s.vault != nil {
			api.Post("/faucet", s.handleFaucet)
		}
	})

	return r
}

type amountRequest struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
}

type liquidateRequest struct {
	Liquidator      string `json:"liquidator"`
	Borrower        string `json:"borrower"`
	DebtAsset       string `json:"debtAsset"`
	CollateralAsset string `json:"collateralAsset"`
	Amount          string `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	amount, ok := s.decodeAmount(w, r, &req)
	if !ok {
		return
	}
	reward, err := s.engine.Deposit(req.Account, req.Asset, amount)
	s.metrics.ObserveOperation("deposit", err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.publishPoolGauges(req.Asset)
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "deposited",
		"reward": bigString(reward),
	})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	amount, ok := s.decodeAmount(w, r, &req)
	if !ok {
		return
	}
	err := s.engine.Withdraw(req.Account, req.Asset, amount)
	s.metrics.ObserveOperation("withdraw", err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.publishPoolGauges(req.Asset)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "withdrawn"})
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	amount, ok := s.decodeAmount(w, r, &req)
	if !ok {
		return
	}
	err := s.engine.Borrow(req.Account, req.Asset, amount)
	s.metrics.ObserveOperation("borrow", err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.publishPoolGauges(req.Asset)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "borrowed"})
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	amount, ok := s.decodeAmount(w, r, &req)
	if !ok {
		return
	}
	repaid, err := s.engine.Repay(req.Account, req.Asset, amount)
	s.metrics.ObserveOperation("repay", err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.publishPoolGauges(req.Asset)
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "repaid",
		"repaid": bigString(repaid),
	})
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeFailure(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		s.writeFailure(w, http.StatusBadRequest, "invalid amount")
		return
	}
	result, err := s.engine.Liquidate(req.Liquidator, req.Borrower, req.DebtAsset, req.CollateralAsset, amount)
	s.metrics.ObserveOperation("liquidate", err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.ObserveLiquidation()
	s.publishPoolGauges(req.DebtAsset)
	s.publishPoolGauges(req.CollateralAsset)
	s.writeJSON(w, http.StatusOK, liquidationResponse(result))
}

// handleWithdrawFees pays accrued reserve fees out to an operator recipient.
func (s *Server) handleWithdrawFees(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	amount, ok := s.decodeAmount(w, r, &req)
	if !ok {
		return
	}
	paid, err := s.engine.WithdrawReserveFees(req.Account, req.Asset, amount)
	s.metrics.ObserveOperation("withdraw_fees", err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.publishPoolGauges(req.Asset)
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "fees withdrawn",
		"paid":   bigString(paid),
	})
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	view, err := s.engine.PoolView(chi.URLParam(r, "asset"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"asset":          view.Asset,
		"totalDeposited": bigString(view.TotalDeposited),
		"totalBorrowed":  bigString(view.TotalBorrowed),
		"availableLiq":   bigString(view.AvailableLiq),
		"utilisationBps": view.UtilisationBps,
		"borrowRateBps":  view.BorrowRateBps,
		"supplyRateBps":  view.SupplyRateBps,
		"supplyIndex":    bigString(view.SupplyIndex),
		"borrowIndex":    bigString(view.BorrowIndex),
		"reserveFees":    bigString(view.ReserveFees),
		"lastAccrual":    view.LastAccrual,
	})
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	view, err := s.engine.AccountRisk(chi.URLParam(r, "account"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	payload := map[string]any{
		"collateralUSD":         bigString(view.CollateralUSD),
		"weightedCollateralUSD": bigString(view.WeightedCollateralUSD),
		"debtUSD":               bigString(view.DebtUSD),
		"borrowCapacityUSD":     bigString(view.BorrowCapacityUSD),
		"liquidatable":          view.Liquidatable(),
	}
	if view.HealthFactor != nil {
		payload["healthFactor"] = view.HealthFactor.FloatString(6)
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	view, err := s.engine.PositionView(chi.URLParam(r, "account"), chi.URLParam(r, "asset"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"account":  view.Account,
		"asset":    view.Asset,
		"deposit":  bigString(view.Deposit),
		"debt":     bigString(view.Debt),
		"interest": bigString(view.Interest),
	})
}

func (s *Server) handleLiquidations(w http.ResponseWriter, r *http.Request) {
	if s.liquidations == nil {
		s.writeJSON(w, http.StatusOK, []any{})
		return
	}
	records, err := s.liquidations.Liquidations()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(records))
	for _, record := range records {
		out = append(out, map[string]any{
			"id":               record.ID,
			"liquidator":       record.Liquidator,
			"borrower":         record.Borrower,
			"debtAsset":        record.DebtAsset,
			"collateralAsset":  record.CollateralAsset,
			"debtRepaid":       bigString(record.DebtRepaid),
			"collateralSeized": bigString(record.CollateralSeized),
			"timestamp":        record.Timestamp,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	if s.prices == nil {
		s.writeFailure(w, http.StatusServiceUnavailable, "no oracle configured")
		return
	}
	symbol := chi.URLParam(r, "asset")
	quote, err := s.prices.Price(symbol)
	if err != nil {
		s.writeFailure(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"asset":     strings.ToUpper(strings.TrimSpace(symbol)),
		"rate":      quote.Rate.FloatString(8),
		"timestamp": quote.Timestamp.UTC().Format(time.RFC3339),
		"source":    quote.Source,
	})
}

// handleFaucet credits test balances into the practice-mode vault.
func (s *Server) handleFaucet(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	amount, ok := s.decodeAmount(w, r, &req)
	if !ok {
		return
	}
	if err := s.vault.Credit(req.Asset, req.Account, amount); err != nil {
		s.writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "credited"})
}

func (s *Server) decodeAmount(w http.ResponseWriter, r *http.Request, req *amountRequest) (*big.Int, bool) {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		s.writeFailure(w, http.StatusBadRequest, "invalid request payload")
		return nil, false
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		s.writeFailure(w, http.StatusBadRequest, "invalid amount")
		return nil, false
	}
	return amount, true
}

func (s *Server) publishPoolGauges(symbol string) {
	view, err := s.engine.PoolView(symbol)
	if err != nil {
		return
	}
	s.metrics.SetPoolGauges(view.Asset, view.UtilisationBps, view.TotalDeposited, view.TotalBorrowed)
}

func liquidationResponse(result *lending.LiquidationResult) map[string]any {
	payload := map[string]any{
		"id":               result.Record.ID,
		"liquidator":       result.Record.Liquidator,
		"borrower":         result.Record.Borrower,
		"debtAsset":        result.Record.DebtAsset,
		"collateralAsset":  result.Record.CollateralAsset,
		"debtRepaid":       bigString(result.Record.DebtRepaid),
		"collateralSeized": bigString(result.Record.CollateralSeized),
		"timestamp":        result.Record.Timestamp,
	}
	if result.HealthFactor != nil {
		payload["healthFactor"] = result.HealthFactor.FloatString(6)
	}
	return payload
}

func parseAmount(raw string) (*big.Int, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, false
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, false
	}
	return amount, true
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("encode response", "err", err)
	}
}

func (s *Server) writeFailure(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFromError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "err", err)
	}
	s.writeFailure(w, status, err.Error())
}
