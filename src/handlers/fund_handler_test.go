package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/username/fundfolio/src/logger"
	"github.com/username/fundfolio/src/models"
	"github.com/username/fundfolio/src/security"
	"github.com/username/fundfolio/src/services"
	"github.com/username/fundfolio/src/store"
)

func TestMain(m *testing.M) {
	logger.L = slog.New(slog.NewTextHandler(io.Discard, nil))
	os.Exit(m.Run())
}

// stubPortfolio answers with canned data and records mutations.
type stubPortfolio struct {
	holdings   []services.HoldingView
	summary    services.PortfolioSummary
	addFundErr error
	added      []string
	deleted    []int64
	deleteErr  error
	trades     []models.Trade
	tradesErr  error
	addedTrade *services.NewTradeRequest
	tradeErr   error
}

func (s *stubPortfolio) AttachScheduler(*services.ValuationScheduler)     {}
func (s *stubPortfolio) HandleQuote(fund models.Fund, quote models.Quote) {}

func (s *stubPortfolio) Holdings(account string) ([]services.HoldingView, services.PortfolioSummary, error) {
	return s.holdings, s.summary, nil
}

func (s *stubPortfolio) AddFund(code, account string) (models.Fund, error) {
	if s.addFundErr != nil {
		return models.Fund{}, s.addFundErr
	}
	s.added = append(s.added, code)
	return models.Fund{ID: 1, Code: code, Name: "Stub Fund", Account: "Default"}, nil
}

func (s *stubPortfolio) DeleteFund(id int64) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubPortfolio) Trades(fundID int64) ([]models.Trade, error) {
	return s.trades, s.tradesErr
}

func (s *stubPortfolio) AddTrade(fundID int64, req services.NewTradeRequest) (models.Trade, error) {
	if s.tradeErr != nil {
		return models.Trade{}, s.tradeErr
	}
	s.addedTrade = &req
	return models.Trade{ID: 9, FundID: fundID, Kind: req.Kind, Status: models.TradePending}, nil
}

func newTestMux(portfolio services.PortfolioService) *http.ServeMux {
	fundHandler := NewFundHandler(portfolio)
	tradeHandler := NewTradeHandler(portfolio)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/funds", fundHandler.HandleListFunds)
	mux.HandleFunc("POST /api/funds", fundHandler.HandleCreateFund)
	mux.HandleFunc("DELETE /api/funds/{id}", fundHandler.HandleDeleteFund)
	mux.HandleFunc("GET /api/funds/{id}/trades", tradeHandler.HandleListTrades)
	mux.HandleFunc("POST /api/funds/{id}/trades", tradeHandler.HandleCreateTrade)
	return mux
}

func TestHandleListFunds(t *testing.T) {
	portfolio := &stubPortfolio{
		holdings: []services.HoldingView{
			{Fund: models.Fund{ID: 1, Code: "110011", Name: "Stub Fund"}},
		},
		summary: services.PortfolioSummary{MarketValue: 780},
	}
	mux := newTestMux(portfolio)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/funds", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Holdings []services.HoldingView    `json:"holdings"`
		Summary  services.PortfolioSummary `json:"summary"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(body.Holdings) != 1 || body.Summary.MarketValue != 780 {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestHandleCreateFund(t *testing.T) {
	portfolio := &stubPortfolio{}
	mux := newTestMux(portfolio)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/funds", strings.NewReader(`{"code":"110011"}`))
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if len(portfolio.added) != 1 || portfolio.added[0] != "110011" {
		t.Errorf("added = %v, want [110011]", portfolio.added)
	}
}

func TestHandleCreateFundConflict(t *testing.T) {
	portfolio := &stubPortfolio{addFundErr: store.ErrDuplicateFund}
	mux := newTestMux(portfolio)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/funds", strings.NewReader(`{"code":"110011"}`))
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestHandleCreateFundMissingCode(t *testing.T) {
	mux := newTestMux(&stubPortfolio{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/funds", strings.NewReader(`{}`))
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleDeleteFund(t *testing.T) {
	portfolio := &stubPortfolio{}
	mux := newTestMux(portfolio)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/funds/3", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if len(portfolio.deleted) != 1 || portfolio.deleted[0] != 3 {
		t.Errorf("deleted = %v, want [3]", portfolio.deleted)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/funds/abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status for bad id = %d, want 400", rec.Code)
	}
}

func TestHandleDeleteFundNotFound(t *testing.T) {
	mux := newTestMux(&stubPortfolio{deleteErr: store.ErrNotFound})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/funds/3", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleListTradesNeverNull(t *testing.T) {
	mux := newTestMux(&stubPortfolio{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/funds/1/trades", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q, want an empty array", got)
	}
}

func TestHandleCreateTrade(t *testing.T) {
	portfolio := &stubPortfolio{}
	mux := newTestMux(portfolio)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/funds/1/trades",
		strings.NewReader(`{"kind":"buy","trade_time":"2024-03-04 10:00:00","amount":1000}`))
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if portfolio.addedTrade == nil || portfolio.addedTrade.Amount != 1000 {
		t.Errorf("trade not forwarded to the service: %+v", portfolio.addedTrade)
	}
}

func TestAuthMiddleware(t *testing.T) {
	authService := security.NewAuthService("a-test-only-jwt-secret-that-is-32-bytes!", time.Hour)
	protected := AuthMiddleware(authService)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/funds", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing header status = %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/funds", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", rec.Code)
	}

	token, err := authService.GenerateToken("operator")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/funds", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid token status = %d, want 200", rec.Code)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" {
		t.Error("request id missing from context")
	}
	if rec.Header().Get("X-Request-ID") != seen {
		t.Error("response header does not match the context id")
	}

	// A caller-supplied id is preserved.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "caller-id")
	h.ServeHTTP(rec, req)
	if seen != "caller-id" {
		t.Errorf("request id = %q, want the caller's", seen)
	}
}
