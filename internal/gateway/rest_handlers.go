package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"github.com/yourorg/tradesim/internal/auth"
	"github.com/yourorg/tradesim/internal/domain"
	"github.com/yourorg/tradesim/internal/execution"
	"github.com/yourorg/tradesim/internal/history"
	"github.com/yourorg/tradesim/internal/ledger"
	"github.com/yourorg/tradesim/internal/summary"
)

// Users is the user-record slice of the postgres store.
type Users interface {
	CreateUser(ctx context.Context, u *domain.User) error
	UserByEmail(ctx context.Context, email string) (*domain.User, error)
}

type Handlers struct {
	users    Users
	store    ledger.Store
	quotes   execution.Quotes
	executor *execution.Executor
	engine   *history.Engine
	summary  *summary.Service
	jwtSvc   *auth.JWTService
	logger   *slog.Logger
}

func NewHandlers(
	users Users,
	store ledger.Store,
	quotes execution.Quotes,
	executor *execution.Executor,
	engine *history.Engine,
	summarySvc *summary.Service,
	jwtSvc *auth.JWTService,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		users:    users,
		store:    store,
		quotes:   quotes,
		executor: executor,
		engine:   engine,
		summary:  summarySvc,
		jwtSvc:   jwtSvc,
		logger:   logger,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), 12)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	user := &domain.User{
		Email:        req.Email,
		PasswordHash: string(hash),
	}
	if err := h.users.CreateUser(r.Context(), user); err != nil {
		writeError(w, http.StatusConflict, "email already registered")
		return
	}
	token, err := h.jwtSvc.Sign(user.ID, user.IsAdmin)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to sign token")
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := h.users.UserByEmail(r.Context(), req.Email)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := h.jwtSvc.Sign(user.ID, user.IsAdmin)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to sign token")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

type balanceResponse struct {
	CashBalance decimal.Decimal        `json:"cash_balance"`
	History     []history.DailyBalance `json:"history,omitempty"`
}

// GetBalance returns the live balance and, when a date range is supplied,
// the replayed day-by-day balance over it.
func (h *Handlers) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromCtx(r.Context())
	bal, err := h.store.Balance(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load balance")
		return
	}
	resp := balanceResponse{CashBalance: bal.CashBalance}

	from, to, ok, err := optionalDateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if ok {
		points, err := h.engine.BalanceHistory(r.Context(), userID, from, to)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		resp.History = points
	}
	writeJSON(w, http.StatusOK, resp)
}

type positionView struct {
	domain.Position
	MarketValue   *decimal.Decimal `json:"market_value,omitempty"`
	UnrealizedPnL *decimal.Decimal `json:"unrealized_pnl,omitempty"`
}

func (h *Handlers) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromCtx(r.Context())
	positions, err := h.store.Positions(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch positions")
		return
	}
	views := make([]positionView, 0, len(positions))
	for _, p := range positions {
		view := positionView{Position: p}
		if quote, err := h.quotes.Latest(r.Context(), p.Symbol); err == nil {
			qty := decimal.NewFromInt(p.Quantity)
			mv := domain.RoundMoney(quote.Price.Mul(qty))
			pnl := domain.RoundMoney(quote.Price.Sub(p.AvgPrice).Mul(qty))
			view.MarketValue = &mv
			view.UnrealizedPnL = &pnl
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handlers) GetPortfolioHistory(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromCtx(r.Context())
	from, to, err := requiredDateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	points, err := h.engine.PortfolioHistory(r.Context(), userID, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func (h *Handlers) GetPeriodPnL(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromCtx(r.Context())
	from, to, err := requiredDateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	report, err := h.engine.PeriodPnL(r.Context(), userID, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromCtx(r.Context())
	orders, err := h.store.Orders(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch orders")
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromCtx(r.Context())
	txns, err := h.store.Transactions(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch transactions")
		return
	}
	writeJSON(w, http.StatusOK, txns)
}

func (h *Handlers) GetSummary(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromCtx(r.Context())
	got, err := h.summary.Get(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute summary")
		return
	}
	writeJSON(w, http.StatusOK, got)
}

type placeOrderRequest struct {
	Symbol         string           `json:"symbol"`
	Side           domain.OrderSide `json:"side"`
	Quantity       int64            `json:"quantity"`
	RequestedPrice *decimal.Decimal `json:"requested_price,omitempty"`
}

func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromCtx(r.Context())
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := h.executor.PlaceOrder(r.Context(), execution.OrderRequest{
		UserID:         userID,
		Symbol:         req.Symbol,
		Side:           req.Side,
		Quantity:       req.Quantity,
		RequestedPrice: req.RequestedPrice,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

type addFundsRequest struct {
	StudentID uuid.UUID       `json:"student_id"`
	Amount    decimal.Decimal `json:"amount"`
}

func (h *Handlers) AddFunds(w http.ResponseWriter, r *http.Request) {
	initiatorID := auth.UserIDFromCtx(r.Context())
	var req addFundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.StudentID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "student_id is required")
		return
	}
	txn, err := h.executor.AddFunds(r.Context(), initiatorID, req.StudentID, req.Amount)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

func (h *Handlers) FlushSummaries(w http.ResponseWriter, r *http.Request) {
	if err := h.summary.InvalidateAll(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to flush summaries")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

const dateLayout = "2006-01-02"

func requiredDateRange(r *http.Request) (time.Time, time.Time, error) {
	from, to, ok, err := optionalDateRange(r)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !ok {
		return time.Time{}, time.Time{}, errors.New("from and to query parameters are required")
	}
	return from, to, nil
}

func optionalDateRange(r *http.Request) (time.Time, time.Time, bool, error) {
	fromStr := r.URL.Query().Get("from")
	toStr := r.URL.Query().Get("to")
	if fromStr == "" && toStr == "" {
		return time.Time{}, time.Time{}, false, nil
	}
	from, err := time.Parse(dateLayout, fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, false, errors.New("invalid from date, want YYYY-MM-DD")
	}
	to, err := time.Parse(dateLayout, toStr)
	if err != nil {
		return time.Time{}, time.Time{}, false, errors.New("invalid to date, want YYYY-MM-DD")
	}
	return from, to, true, nil
}

// writeDomainError maps the business-rule taxonomy onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusForError(err), err.Error())
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrQuoteUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrSymbolNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDateRangeInvalid):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrNoPosition),
		errors.Is(err, domain.ErrInsufficientShares):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
