package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/zerolog"

	"MarginLedger/internal/core"
	"MarginLedger/internal/ledger"
	"MarginLedger/internal/query"
)

// HTTPServer is the HTTP/JSON API for commands and queries. It is built on
// the gRPC-Gateway runtime mux so the routes match the eventual generated
// gateway surface path-for-path. Byte-slice fields ([]byte data payloads)
// travel base64-encoded, per encoding/json convention.
type HTTPServer struct {
	core       *core.Service
	queries    *query.QueryService
	httpServer *http.Server
	addr       string
	log        zerolog.Logger
}

func NewHTTPServer(addr string, c *core.Service, qs *query.QueryService, log zerolog.Logger) (*HTTPServer, error) {
	s := &HTTPServer{
		core:    c,
		queries: qs,
		addr:    addr,
		log:     log,
	}

	mux := runtime.NewServeMux()
	if err := s.registerRoutes(mux); err != nil {
		return nil, err
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s, nil
}

func (s *HTTPServer) registerRoutes(mux *runtime.ServeMux) error {
	routes := []struct {
		method  string
		pattern string
		handler runtime.HandlerFunc
	}{
		// Commands
		{"POST", "/v1/accounts", s.handleCreateAccount},
		{"POST", "/v1/accounts/{account}/burn", s.handleBurnAccount},
		{"POST", "/v1/accounts/{account}/manager", s.handleChangeManager},
		{"POST", "/v1/accounts/{account}/delegates", s.handleSetDelegate},
		{"POST", "/v1/accounts/{account}/allowances/assets", s.handleSetAssetAllowances},
		{"POST", "/v1/accounts/{account}/allowances/subids", s.handleSetSubIDAllowances},
		{"POST", "/v1/transfers", s.handleSubmitTransfers},
		{"POST", "/v1/adjustments", s.handleAdjustBalance},
		{"POST", "/v1/accounts/{account}/sweep", s.handleTransferAll},

		// Queries
		{"GET", "/v1/accounts/{account}", s.handleGetAccountInfo},
		{"GET", "/v1/accounts/{account}/balances", s.handleGetPortfolio},
		{"GET", "/v1/accounts/{account}/balances/{asset}/{sub_id}", s.handleGetBalance},
		{"GET", "/v1/accounts/{account}/allowances/assets/{delegate}/{asset}", s.handleGetAssetAllowance},
		{"GET", "/v1/accounts/{account}/allowances/subids/{delegate}/{asset}/{sub_id}", s.handleGetSubIDAllowance},
		{"GET", "/v1/accounts/{account}/adjustments", s.handleGetAdjustments},
		{"GET", "/v1/events", s.handleGetEvents},
		{"GET", "/v1/admin/integrity", s.handleVerifyIntegrity},
	}

	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.pattern, r.handler); err != nil {
			return fmt.Errorf("register %s %s: %w", r.method, r.pattern, err)
		}
	}
	return nil
}

// Handler exposes the route mux, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves HTTP until ctx is cancelled (blocking).
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.log.Info().Msg("HTTP server shutting down")
		s.httpServer.Shutdown(context.Background())
	}()

	s.log.Info().Str("addr", s.addr).Msg("HTTP server listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// --- error mapping ---

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	// Populated for allowance_exhausted
	SubRemaining   *int64 `json:"sub_remaining,omitempty"`
	AssetRemaining *int64 `json:"asset_remaining,omitempty"`
	Requested      *int64 `json:"requested,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	var (
		authErr      *ledger.AuthorizationError
		allowanceErr *ledger.AllowanceError
		invariantErr *ledger.InvariantError
		hookErr      *ledger.HookError
	)

	body := errorBody{Message: err.Error()}
	status := http.StatusInternalServerError

	switch {
	case errors.As(err, &authErr):
		status = http.StatusForbidden
		body.Code = "authorization"
	case errors.As(err, &allowanceErr):
		status = http.StatusUnprocessableEntity
		body.Code = "allowance_exhausted"
		body.SubRemaining = &allowanceErr.SubRemaining
		body.AssetRemaining = &allowanceErr.AssetRemaining
		body.Requested = &allowanceErr.Requested
	case errors.As(err, &invariantErr):
		status = http.StatusConflict
		body.Code = "invariant_violation"
	case errors.As(err, &hookErr):
		status = http.StatusUnprocessableEntity
		body.Code = "hook_rejection"
	default:
		body.Code = "internal"
	}

	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "bad_request", Message: err.Error()})
		return false
	}
	return true
}

func pathUint(w http.ResponseWriter, params map[string]string, name string) (uint64, bool) {
	v, err := strconv.ParseUint(params[name], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Code:    "bad_request",
			Message: fmt.Sprintf("invalid %s: %q", name, params[name]),
		})
		return 0, false
	}
	return v, true
}

// --- command handlers ---

func (s *HTTPServer) handleCreateAccount(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req struct {
		Owner   string `json:"owner"`
		Manager string `json:"manager"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	id, err := s.core.CreateAccount(ledger.Address(req.Owner), ledger.Address(req.Manager))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"account": uint64(id)})
}

func (s *HTTPServer) handleBurnAccount(w http.ResponseWriter, r *http.Request, params map[string]string) {
	account, ok := pathUint(w, params, "account")
	if !ok {
		return
	}
	var req struct {
		Caller string `json:"caller"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.core.BurnAccount(ledger.Address(req.Caller), ledger.AccountID(account)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"burned": true})
}

func (s *HTTPServer) handleChangeManager(w http.ResponseWriter, r *http.Request, params map[string]string) {
	account, ok := pathUint(w, params, "account")
	if !ok {
		return
	}
	var req struct {
		Caller     string `json:"caller"`
		NewManager string `json:"new_manager"`
		Data       []byte `json:"data"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	err := s.core.ChangeManager(
		ledger.Address(req.Caller),
		ledger.AccountID(account),
		ledger.Address(req.NewManager),
		req.Data,
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"manager": req.NewManager})
}

func (s *HTTPServer) handleSetDelegate(w http.ResponseWriter, r *http.Request, params map[string]string) {
	account, ok := pathUint(w, params, "account")
	if !ok {
		return
	}
	var req struct {
		Caller   string `json:"caller"`
		Delegate string `json:"delegate"`
		Enabled  bool   `json:"enabled"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	err := s.core.SetDelegate(
		ledger.Address(req.Caller),
		ledger.AccountID(account),
		ledger.Address(req.Delegate),
		req.Enabled,
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": req.Enabled})
}

func (s *HTTPServer) handleSetAssetAllowances(w http.ResponseWriter, r *http.Request, params map[string]string) {
	account, ok := pathUint(w, params, "account")
	if !ok {
		return
	}
	var req struct {
		Caller     string `json:"caller"`
		Delegate   string `json:"delegate"`
		Allowances []struct {
			Asset    string `json:"asset"`
			Positive int64  `json:"positive"`
			Negative int64  `json:"negative"`
		} `json:"allowances"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	allowances := make([]ledger.AssetAllowance, 0, len(req.Allowances))
	for _, a := range req.Allowances {
		allowances = append(allowances, ledger.AssetAllowance{
			Asset:    ledger.Address(a.Asset),
			Positive: a.Positive,
			Negative: a.Negative,
		})
	}

	err := s.core.SetAssetAllowances(
		ledger.Address(req.Caller),
		ledger.AccountID(account),
		ledger.Address(req.Delegate),
		allowances,
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"written": len(allowances)})
}

func (s *HTTPServer) handleSetSubIDAllowances(w http.ResponseWriter, r *http.Request, params map[string]string) {
	account, ok := pathUint(w, params, "account")
	if !ok {
		return
	}
	var req struct {
		Caller     string `json:"caller"`
		Delegate   string `json:"delegate"`
		Allowances []struct {
			Asset    string `json:"asset"`
			SubID    uint64 `json:"sub_id"`
			Positive int64  `json:"positive"`
			Negative int64  `json:"negative"`
		} `json:"allowances"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	allowances := make([]ledger.SubIDAllowance, 0, len(req.Allowances))
	for _, a := range req.Allowances {
		allowances = append(allowances, ledger.SubIDAllowance{
			Asset:    ledger.Address(a.Asset),
			SubID:    ledger.SubID(a.SubID),
			Positive: a.Positive,
			Negative: a.Negative,
		})
	}

	err := s.core.SetSubIDAllowances(
		ledger.Address(req.Caller),
		ledger.AccountID(account),
		ledger.Address(req.Delegate),
		allowances,
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"written": len(allowances)})
}

func (s *HTTPServer) handleSubmitTransfers(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req struct {
		Caller    string `json:"caller"`
		Transfers []struct {
			From      uint64 `json:"from"`
			To        uint64 `json:"to"`
			Asset     string `json:"asset"`
			SubID     uint64 `json:"sub_id"`
			Amount    int64  `json:"amount"`
			AssetData []byte `json:"asset_data"`
		} `json:"transfers"`
		ManagerData []byte `json:"manager_data"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Transfers) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "bad_request", Message: "no transfers"})
		return
	}

	transfers := make([]ledger.Transfer, 0, len(req.Transfers))
	for _, t := range req.Transfers {
		transfers = append(transfers, ledger.Transfer{
			From:      ledger.AccountID(t.From),
			To:        ledger.AccountID(t.To),
			Asset:     ledger.Address(t.Asset),
			SubID:     ledger.SubID(t.SubID),
			Amount:    t.Amount,
			AssetData: t.AssetData,
		})
	}

	var err error
	if len(transfers) == 1 {
		err = s.core.SubmitTransfer(ledger.Address(req.Caller), transfers[0], req.ManagerData)
	} else {
		err = s.core.SubmitTransfers(ledger.Address(req.Caller), transfers, req.ManagerData)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"applied": len(transfers)})
}

func (s *HTTPServer) handleAdjustBalance(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req struct {
		Caller      string `json:"caller"`
		Account     uint64 `json:"account"`
		Asset       string `json:"asset"`
		SubID       uint64 `json:"sub_id"`
		Amount      int64  `json:"amount"`
		AssetData   []byte `json:"asset_data"`
		ManagerData []byte `json:"manager_data"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	post, err := s.core.AdjustBalance(ledger.Address(req.Caller), ledger.Adjustment{
		Account:   ledger.AccountID(req.Account),
		Asset:     ledger.Address(req.Asset),
		SubID:     ledger.SubID(req.SubID),
		Amount:    req.Amount,
		AssetData: req.AssetData,
	}, req.ManagerData)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"post_balance": post})
}

func (s *HTTPServer) handleTransferAll(w http.ResponseWriter, r *http.Request, params map[string]string) {
	from, ok := pathUint(w, params, "account")
	if !ok {
		return
	}
	var req struct {
		Caller       string   `json:"caller"`
		To           uint64   `json:"to"`
		ManagerData  []byte   `json:"manager_data"`
		PerAssetData [][]byte `json:"per_asset_data"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	err := s.core.TransferAll(
		ledger.Address(req.Caller),
		ledger.AccountID(from),
		ledger.AccountID(req.To),
		req.ManagerData,
		req.PerAssetData,
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"swept": true})
}

// --- query handlers ---

func (s *HTTPServer) handleGetAccountInfo(w http.ResponseWriter, r *http.Request, params map[string]string) {
	account, ok := pathUint(w, params, "account")
	if !ok {
		return
	}
	resp, err := s.queries.GetAccountInfo(ledger.AccountID(account))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleGetPortfolio(w http.ResponseWriter, r *http.Request, params map[string]string) {
	account, ok := pathUint(w, params, "account")
	if !ok {
		return
	}
	resp, err := s.queries.GetPortfolio(ledger.AccountID(account))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleGetBalance(w http.ResponseWriter, r *http.Request, params map[string]string) {
	account, ok := pathUint(w, params, "account")
	if !ok {
		return
	}
	subID, ok := pathUint(w, params, "sub_id")
	if !ok {
		return
	}
	resp, err := s.queries.GetBalance(
		ledger.AccountID(account),
		ledger.Address(params["asset"]),
		ledger.SubID(subID),
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleGetAssetAllowance(w http.ResponseWriter, r *http.Request, params map[string]string) {
	account, ok := pathUint(w, params, "account")
	if !ok {
		return
	}
	resp, err := s.queries.GetAssetAllowance(
		ledger.AccountID(account),
		ledger.Address(params["delegate"]),
		ledger.Address(params["asset"]),
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleGetSubIDAllowance(w http.ResponseWriter, r *http.Request, params map[string]string) {
	account, ok := pathUint(w, params, "account")
	if !ok {
		return
	}
	subID, ok := pathUint(w, params, "sub_id")
	if !ok {
		return
	}
	resp, err := s.queries.GetSubIDAllowance(
		ledger.AccountID(account),
		ledger.Address(params["delegate"]),
		ledger.Address(params["asset"]),
		ledger.SubID(subID),
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleGetAdjustments(w http.ResponseWriter, r *http.Request, params map[string]string) {
	account, ok := pathUint(w, params, "account")
	if !ok {
		return
	}

	q := r.URL.Query()
	limit := queryInt(q.Get("limit"), 100)

	var asset *string
	if v := q.Get("asset"); v != "" {
		asset = &v
	}
	var subID *int64
	if v := q.Get("sub_id"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			subID = &n
		}
	}
	var after *int64
	if v := q.Get("after"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			after = &n
		}
	}

	resp, err := s.queries.GetAdjustments(r.Context(), int64(account), asset, subID, limit, after)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleGetEvents(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q := r.URL.Query()
	limit := queryInt(q.Get("limit"), 100)

	var account *int64
	if v := q.Get("account"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			account = &n
		}
	}
	var after *int64
	if v := q.Get("after"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			after = &n
		}
	}

	resp, err := s.queries.GetEvents(r.Context(), account, limit, after)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	resp, err := s.queries.VerifyIntegrity(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func queryInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	if n > 1000 {
		n = 1000
	}
	return n
}
