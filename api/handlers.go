// Package api exposes the ledger operations over HTTP/JSON.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"hotwings/service"
	"hotwings/store"
	"hotwings/vesting"
)

type AllocationRequest struct {
	Wallet string `json:"wallet"`
	Amount uint64 `json:"amount"`
}

type InitializeRequest struct {
	Authority   string              `json:"authority"`
	Allocations []AllocationRequest `json:"allocations"`
}

type UnlockMilestoneRequest struct {
	Authority string `json:"authority"`
	MarketCap uint64 `json:"market_cap"`
}

// AuthorityRequest - body of full-unlock and finalize
type AuthorityRequest struct {
	Authority string `json:"authority"`
}

type PurchaseRequest struct {
	Authority string `json:"authority"`
	Wallet    string `json:"wallet"`
	TotalPaid uint64 `json:"total_paid"`
}

type TransferRequest struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Amount      uint64 `json:"amount"`
}

// StateView - lock pool state as returned by GET /api/v1/state
type StateView struct {
	Pool             string                  `json:"pool"`
	Initialized      bool                    `json:"initialized"`
	TotalLocked      uint64                  `json:"total_locked"`
	StartTime        int64                   `json:"start_time"`
	CurrentMilestone uint8                   `json:"current_milestone"`
	Percentage       uint8                   `json:"percentage"`
	FullUnlock       string                  `json:"full_unlock"`
	HoldLimit        string                  `json:"hold_limit"`
	Entries          []vesting.InvestorEntry `json:"entries"`
}

// Response type
type Response struct {
	Success     bool                     `json:"success"`
	Message     string                   `json:"message,omitempty"`
	ErrorCode   *int                     `json:"error_code,omitempty"`
	OperationID string                   `json:"operation_id,omitempty"`
	Receipt     *vesting.Receipt         `json:"receipt,omitempty"`
	State       *StateView               `json:"state,omitempty"`
	History     []store.OperationHistory `json:"history,omitempty"`
}

// Handler - HTTP front of the ledger service
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

func NewHandler(svc *service.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes registers every endpoint on mux
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/initialize", post(h.HandleInitialize))
	mux.HandleFunc("/api/v1/unlock-milestone", post(h.HandleUnlockMilestone))
	mux.HandleFunc("/api/v1/full-unlock", post(h.HandleFullUnlock))
	mux.HandleFunc("/api/v1/purchase", post(h.HandlePurchase))
	mux.HandleFunc("/api/v1/finalize", post(h.HandleFinalize))
	mux.HandleFunc("/api/v1/transfer", post(h.HandleTransfer))
	mux.HandleFunc("/api/v1/state", get(h.HandleState))
	mux.HandleFunc("/api/v1/history", get(h.HandleHistory))

	// Health endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func post(fn http.HandlerFunc) http.HandlerFunc {
	return method(http.MethodPost, fn)
}

func get(fn http.HandlerFunc) http.HandlerFunc {
	return method(http.MethodGet, fn)
}

func method(m string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != m {
			w.Header().Set("Allow", m)
			respondError(w, fmt.Sprintf("method %s not allowed", r.Method), http.StatusMethodNotAllowed)
			return
		}
		fn(w, r)
	}
}

func respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, Response{Success: false, Message: message}, status)
}

// respondOperation writes the outcome of a service call
func (h *Handler) respondOperation(w http.ResponseWriter, res *service.Result, err error) {
	if err == nil {
		respondJSON(w, Response{
			Success:     true,
			Message:     res.Receipt.Operation + " applied",
			OperationID: res.OperationID,
			Receipt:     res.Receipt,
		}, http.StatusOK)
		return
	}

	resp := Response{
		Success:   false,
		Message:   err.Error(),
		ErrorCode: vesting.CodeOf(err),
	}
	var opErr *service.OperationError
	if errors.As(err, &opErr) {
		resp.OperationID = opErr.OperationID
	}
	respondJSON(w, resp, statusFor(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, vesting.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, vesting.ErrLedgerInconsistent):
		return http.StatusInternalServerError
	case vesting.CodeOf(err) != nil:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func parseKey(w http.ResponseWriter, field, value string) (solana.PublicKey, bool) {
	if value == "" {
		respondError(w, field+" is required", http.StatusBadRequest)
		return solana.PublicKey{}, false
	}
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		respondError(w, fmt.Sprintf("Invalid %s: %v", field, err), http.StatusBadRequest)
		return solana.PublicKey{}, false
	}
	return key, true
}

// HandleInitialize handles POST /api/v1/initialize
func (h *Handler) HandleInitialize(w http.ResponseWriter, r *http.Request) {
	var req InitializeRequest
	if !decode(w, r, &req) {
		return
	}
	authority, ok := parseKey(w, "authority", req.Authority)
	if !ok {
		return
	}
	allocations := make([]vesting.Allocation, 0, len(req.Allocations))
	for i, a := range req.Allocations {
		wallet, ok := parseKey(w, fmt.Sprintf("allocations[%d].wallet", i), a.Wallet)
		if !ok {
			return
		}
		allocations = append(allocations, vesting.Allocation{Wallet: wallet, Amount: a.Amount})
	}
	res, err := h.svc.Initialize(r.Context(), authority, allocations)
	h.respondOperation(w, res, err)
}

// HandleUnlockMilestone handles POST /api/v1/unlock-milestone
func (h *Handler) HandleUnlockMilestone(w http.ResponseWriter, r *http.Request) {
	var req UnlockMilestoneRequest
	if !decode(w, r, &req) {
		return
	}
	authority, ok := parseKey(w, "authority", req.Authority)
	if !ok {
		return
	}
	res, err := h.svc.UnlockByMilestone(r.Context(), authority, req.MarketCap)
	h.respondOperation(w, res, err)
}

// HandleFullUnlock handles POST /api/v1/full-unlock
func (h *Handler) HandleFullUnlock(w http.ResponseWriter, r *http.Request) {
	var req AuthorityRequest
	if !decode(w, r, &req) {
		return
	}
	authority, ok := parseKey(w, "authority", req.Authority)
	if !ok {
		return
	}
	res, err := h.svc.FullUnlock(r.Context(), authority)
	h.respondOperation(w, res, err)
}

// HandlePurchase handles POST /api/v1/purchase
func (h *Handler) HandlePurchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if !decode(w, r, &req) {
		return
	}
	authority, ok := parseKey(w, "authority", req.Authority)
	if !ok {
		return
	}
	wallet, ok := parseKey(w, "wallet", req.Wallet)
	if !ok {
		return
	}
	res, err := h.svc.Purchase(r.Context(), authority, wallet, req.TotalPaid)
	h.respondOperation(w, res, err)
}

// HandleFinalize handles POST /api/v1/finalize
func (h *Handler) HandleFinalize(w http.ResponseWriter, r *http.Request) {
	var req AuthorityRequest
	if !decode(w, r, &req) {
		return
	}
	authority, ok := parseKey(w, "authority", req.Authority)
	if !ok {
		return
	}
	res, err := h.svc.Finalize(r.Context(), authority)
	h.respondOperation(w, res, err)
}

// HandleTransfer handles POST /api/v1/transfer
func (h *Handler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !decode(w, r, &req) {
		return
	}
	source, ok := parseKey(w, "source", req.Source)
	if !ok {
		return
	}
	destination, ok := parseKey(w, "destination", req.Destination)
	if !ok {
		return
	}
	res, err := h.svc.Transfer(r.Context(), vesting.Transfer{Source: source, Destination: destination, Amount: req.Amount})
	h.respondOperation(w, res, err)
}

// HandleState handles GET /api/v1/state
func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	st := h.svc.State()
	entries := st.Entries
	if entries == nil {
		entries = []vesting.InvestorEntry{}
	}
	respondJSON(w, Response{
		Success: true,
		State: &StateView{
			Pool:             h.svc.Ledger().Pool().String(),
			Initialized:      st.Initialized(),
			TotalLocked:      st.TotalLocked,
			StartTime:        st.StartTime,
			CurrentMilestone: st.CurrentMilestone,
			Percentage:       vesting.PercentageForIndex(st.CurrentMilestone),
			FullUnlock:       st.FullUnlock.String(),
			HoldLimit:        st.HoldLimit.String(),
			Entries:          entries,
		},
	}, http.StatusOK)
}

// HandleHistory handles GET /api/v1/history?wallet=&limit=
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	history, err := h.svc.History(r.Context(), wallet, limit)
	if err != nil {
		h.logger.Error("failed to read history", zap.Error(err))
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, Response{Success: true, History: history}, http.StatusOK)
}
