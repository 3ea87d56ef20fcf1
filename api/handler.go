// Package api exposes a custody instance over HTTP.
//
// Mutating requests are signed: the caller is the address recovered from
// the EIP-191 signature of the raw body sent in the X-Custody-Signature
// header. The body carries the "action" it was signed for ("fund" or
// "withdraw") and a unix "timestamp", and may name the caller in "from",
// which must then match the signer. Each signed body is served once.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/xraph/custody"
	"github.com/xraph/custody/types"
	"github.com/xraph/custody/withdrawal"
)

// Service is the custody surface served over HTTP.
type Service interface {
	Contribute(ctx context.Context, caller common.Address, amount *big.Int) (*custody.Receipt, error)
	Withdraw(ctx context.Context, caller common.Address) (*withdrawal.Withdrawal, error)
	WithdrawOptimized(ctx context.Context, caller common.Address) (*withdrawal.Withdrawal, error)
	PriceFeed() string
	Owner() common.Address
	MinimumUSD() *big.Int
	AmountFunded(contributor common.Address) *big.Int
	Funder(index int) (common.Address, error)
	Funders() []common.Address
	Balance() *big.Int
	Epoch() uint64
	Withdrawals(ctx context.Context, opts withdrawal.ListOpts) ([]*withdrawal.Withdrawal, error)
	Health(ctx context.Context) error
}

var _ Service = (*custody.Custody)(nil)

// maxBodyBytes caps mutating request bodies.
const maxBodyBytes = 64 << 10

// Handler serves the custody routes.
type Handler struct {
	svc    Service
	logger *slog.Logger
	nonces Nonces
	window time.Duration
	now    func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithNonces sets the replay record, in-process by default.
func WithNonces(n Nonces) Option {
	return func(h *Handler) { h.nonces = n }
}

// WithSignatureWindow sets the accepted clock skew of signed requests.
func WithSignatureWindow(d time.Duration) Option {
	return func(h *Handler) { h.window = d }
}

// WithClock sets the time source used to check request timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// New returns a Handler for svc.
func New(svc Service, opts ...Option) *Handler {
	h := &Handler{
		svc:    svc,
		logger: slog.Default(),
		window: DefaultSignatureWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.nonces == nil {
		h.nonces = NewMemoryNonces(h.now)
	}
	return h
}

// Routes registers the custody routes on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.Health)
	r.Get("/price-feed", h.PriceFeed)
	r.Get("/balance", h.Balance)
	r.Get("/funded/{address}", h.AmountFunded)
	r.Get("/funders", h.Funders)
	r.Get("/funders/{index}", h.Funder)
	r.Get("/withdrawals", h.Withdrawals)

	r.Post("/fund", h.Fund)
	r.Post("/withdraw", h.Withdraw)
	r.Post("/withdraw/optimized", h.WithdrawOptimized)
}

// Router returns a standalone router with the custody routes mounted
// under basePath.
func (h *Handler) Router(basePath string) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
	)
	if basePath == "" || basePath == "/" {
		h.Routes(r)
		return r
	}
	r.Route(basePath, h.Routes)
	return r
}

// ──────────────────────────────────────────────────
// Mutations
// ──────────────────────────────────────────────────

type fundRequest struct {
	signedFields
	// Amount is in wei.
	Amount    string `json:"amount"`
	AmountETH string `json:"amount_eth"`
}

type callerRequest struct {
	signedFields
}

type contributionResponse struct {
	ID          string       `json:"id"`
	Contributor string       `json:"contributor"`
	Amount      types.Amount `json:"amount"`
	Value       types.Amount `json:"value"`
	PriceFeed   string       `json:"price_feed"`
	Epoch       uint64       `json:"epoch"`
	Seq         uint64       `json:"seq"`
	Balance     types.Amount `json:"balance"`
}

type withdrawalResponse struct {
	ID           string       `json:"id"`
	Owner        string       `json:"owner"`
	Amount       types.Amount `json:"amount"`
	Contributors int          `json:"contributors"`
	Epoch        uint64       `json:"epoch"`
	Strategy     string       `json:"strategy"`
	CreatedAt    string       `json:"created_at"`
}

// readSigned decodes a signed body into req and returns the caller.
func (h *Handler) readSigned(w http.ResponseWriter, r *http.Request, action string, req signedRequest) (common.Address, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return common.Address{}, custody.ValidationError{Field: "body", Message: "unreadable payload"}
	}
	if err := json.Unmarshal(body, req); err != nil {
		return common.Address{}, custody.ValidationError{Field: "body", Message: "invalid payload"}
	}
	return h.authenticate(r.Context(), action, body, r.Header.Get(SignatureHeader), req.signed())
}

func (h *Handler) Fund(w http.ResponseWriter, r *http.Request) {
	var req fundRequest
	from, err := h.readSigned(w, r, ActionFund, &req)
	if err != nil {
		h.error(w, err)
		return
	}
	amount, err := parseAmount(req)
	if err != nil {
		h.error(w, err)
		return
	}

	receipt, err := h.svc.Contribute(r.Context(), from, amount)
	if err != nil {
		h.error(w, err)
		return
	}
	ct := receipt.Contribution
	h.json(w, http.StatusCreated, contributionResponse{
		ID:          ct.ID.String(),
		Contributor: ct.Contributor.Hex(),
		Amount:      types.ETH(ct.Amount),
		Value:       types.USD(ct.ReferenceValue),
		PriceFeed:   ct.PriceFeed,
		Epoch:       ct.Epoch,
		Seq:         ct.Seq,
		Balance:     types.ETH(receipt.Balance),
	})
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.withdraw(w, r, h.svc.Withdraw)
}

func (h *Handler) WithdrawOptimized(w http.ResponseWriter, r *http.Request) {
	h.withdraw(w, r, h.svc.WithdrawOptimized)
}

func (h *Handler) withdraw(
	w http.ResponseWriter,
	r *http.Request,
	fn func(context.Context, common.Address) (*withdrawal.Withdrawal, error),
) {
	var req callerRequest
	from, err := h.readSigned(w, r, ActionWithdraw, &req)
	if err != nil {
		h.error(w, err)
		return
	}

	wd, err := fn(r.Context(), from)
	if err != nil {
		h.error(w, err)
		return
	}
	h.json(w, http.StatusOK, toWithdrawalResponse(wd))
}

// ──────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Health(r.Context()); err != nil {
		h.json(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": err.Error()})
		return
	}
	h.json(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) PriceFeed(w http.ResponseWriter, _ *http.Request) {
	h.json(w, http.StatusOK, map[string]any{
		"price_feed":  h.svc.PriceFeed(),
		"owner":       h.svc.Owner().Hex(),
		"minimum_usd": types.USD(h.svc.MinimumUSD()),
	})
}

func (h *Handler) Balance(w http.ResponseWriter, _ *http.Request) {
	h.json(w, http.StatusOK, map[string]any{
		"balance":      types.ETH(h.svc.Balance()),
		"contributors": len(h.svc.Funders()),
		"epoch":        h.svc.Epoch(),
	})
}

func (h *Handler) AmountFunded(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		h.error(w, err)
		return
	}
	h.json(w, http.StatusOK, map[string]any{
		"address": addr.Hex(),
		"amount":  types.ETH(h.svc.AmountFunded(addr)),
	})
}

func (h *Handler) Funder(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		h.error(w, custody.ValidationError{Field: "index", Message: "must be an integer"})
		return
	}
	addr, err := h.svc.Funder(index)
	if err != nil {
		h.error(w, err)
		return
	}
	h.json(w, http.StatusOK, map[string]any{"index": index, "address": addr.Hex()})
}

func (h *Handler) Funders(w http.ResponseWriter, _ *http.Request) {
	funders := h.svc.Funders()
	items := make([]map[string]any, 0, len(funders))
	for _, addr := range funders {
		items = append(items, map[string]any{
			"address": addr.Hex(),
			"amount":  types.ETH(h.svc.AmountFunded(addr)),
		})
	}
	h.json(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) Withdrawals(w http.ResponseWriter, r *http.Request) {
	opts := withdrawal.ListOpts{}
	for _, q := range []struct {
		name string
		dst  *int
	}{{"limit", &opts.Limit}, {"offset", &opts.Offset}} {
		raw := r.URL.Query().Get(q.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			h.error(w, custody.ValidationError{Field: q.name, Message: "must be a non-negative integer"})
			return
		}
		*q.dst = v
	}

	list, err := h.svc.Withdrawals(r.Context(), opts)
	if err != nil {
		h.error(w, err)
		return
	}
	items := make([]withdrawalResponse, 0, len(list))
	for _, wd := range list {
		items = append(items, toWithdrawalResponse(wd))
	}
	h.json(w, http.StatusOK, map[string]any{"items": items})
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func toWithdrawalResponse(wd *withdrawal.Withdrawal) withdrawalResponse {
	return withdrawalResponse{
		ID:           wd.ID.String(),
		Owner:        wd.Owner.Hex(),
		Amount:       types.ETH(wd.Amount),
		Contributors: wd.Contributors,
		Epoch:        wd.Epoch,
		Strategy:     wd.Strategy,
		CreatedAt:    wd.CreatedAt.Format(time.RFC3339Nano),
	}
}

func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, custody.ValidationError{Field: field, Message: "must be a hex address"}
	}
	return common.HexToAddress(s), nil
}

func parseAmount(req fundRequest) (*big.Int, error) {
	switch {
	case req.Amount != "" && req.AmountETH != "":
		return nil, custody.ValidationError{Field: "amount", Message: "set either amount or amount_eth"}
	case req.Amount != "":
		v, ok := new(big.Int).SetString(req.Amount, 10)
		if !ok {
			return nil, custody.ValidationError{Field: "amount", Message: "must be an integer wei amount"}
		}
		return v, nil
	case req.AmountETH != "":
		v, err := types.ParseEther(req.AmountETH)
		if err != nil {
			return nil, custody.ValidationError{Field: "amount_eth", Message: err.Error()}
		}
		return v, nil
	default:
		// funding without value
		return new(big.Int), nil
	}
}

func (h *Handler) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func (h *Handler) error(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	code := custody.CodeOf(err)
	if code == "" {
		code = http.StatusText(status)
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("api: request failed", "status", status, "code", code, "error", err)
	}
	h.json(w, status, errorResponse{Code: code, Error: err.Error()})
}

// StatusOf maps a custody error to an HTTP status.
func StatusOf(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, custody.ErrInsufficientValue), errors.Is(err, custody.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnsigned), errors.Is(err, ErrBadSignature),
		errors.Is(err, ErrStaleRequest), errors.Is(err, ErrReplayed):
		return http.StatusUnauthorized
	case errors.Is(err, custody.ErrNotOwner), errors.Is(err, ErrSignerMismatch):
		return http.StatusForbidden
	case errors.Is(err, custody.ErrIndexOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, custody.ErrOracleUnavailable), errors.Is(err, custody.ErrTransferFailed):
		return http.StatusBadGateway
	case errors.Is(err, custody.ErrStoreNotReady), errors.Is(err, custody.ErrStoreClosed),
		errors.Is(err, custody.ErrNotStarted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
