package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"MarginLedger/internal/core"
	"MarginLedger/internal/ledger"
	"MarginLedger/internal/observability"
)

// QueryService serves read-only access. Live state (balances, allowances,
// account wiring) is read from the core's in-memory ledger; history and
// audit queries read the Postgres event log. All responses carry
// as_of_sequence for freshness semantics.
type QueryService struct {
	core    *core.Service
	db      *sql.DB
	metrics *observability.Metrics
}

func NewQueryService(c *core.Service, db *sql.DB, metrics *observability.Metrics) *QueryService {
	return &QueryService{core: c, db: db, metrics: metrics}
}

func (qs *QueryService) observe(endpoint string, start time.Time, err error) {
	if qs.metrics == nil {
		return
	}
	qs.metrics.QueryRequests.WithLabelValues(endpoint).Inc()
	qs.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		qs.metrics.QueryErrors.WithLabelValues(endpoint).Inc()
	}
}

// --- Live state queries ---

func (qs *QueryService) GetBalance(id ledger.AccountID, asset ledger.Address, subID ledger.SubID) (*BalanceResponse, error) {
	start := time.Now()
	balance, err := qs.core.GetBalance(id, asset, subID)
	qs.observe("get_balance", start, err)
	if err != nil {
		return nil, err
	}
	return &BalanceResponse{
		Account:      uint64(id),
		Asset:        string(asset),
		SubID:        uint64(subID),
		Balance:      balance,
		AsOfSequence: qs.core.Sequence(),
	}, nil
}

func (qs *QueryService) GetPortfolio(id ledger.AccountID) (*PortfolioResponse, error) {
	start := time.Now()
	balances, err := qs.core.GetAccountBalances(id)
	qs.observe("get_portfolio", start, err)
	if err != nil {
		return nil, err
	}

	asOf := qs.core.Sequence()
	resp := &PortfolioResponse{
		Account:      uint64(id),
		Balances:     make([]BalanceResponse, 0, len(balances)),
		AsOfSequence: asOf,
	}
	for _, b := range balances {
		resp.Balances = append(resp.Balances, BalanceResponse{
			Account:      uint64(id),
			Asset:        string(b.Asset),
			SubID:        uint64(b.SubID),
			Balance:      b.Balance,
			AsOfSequence: asOf,
		})
	}
	return resp, nil
}

func (qs *QueryService) GetAccountInfo(id ledger.AccountID) (*AccountInfoResponse, error) {
	start := time.Now()
	owner, manager, err := qs.core.GetAccountInfo(id)
	qs.observe("get_account_info", start, err)
	if err != nil {
		return nil, err
	}
	return &AccountInfoResponse{
		Account:      uint64(id),
		Owner:        string(owner),
		Manager:      string(manager),
		AsOfSequence: qs.core.Sequence(),
	}, nil
}

func (qs *QueryService) GetAssetAllowance(id ledger.AccountID, delegate, asset ledger.Address) (*AllowanceResponse, error) {
	start := time.Now()
	positive, negative, err := qs.core.GetAssetAllowance(id, delegate, asset)
	qs.observe("get_asset_allowance", start, err)
	if err != nil {
		return nil, err
	}
	return &AllowanceResponse{
		Account:      uint64(id),
		Delegate:     string(delegate),
		Asset:        string(asset),
		Positive:     positive,
		Negative:     negative,
		AsOfSequence: qs.core.Sequence(),
	}, nil
}

func (qs *QueryService) GetSubIDAllowance(id ledger.AccountID, delegate, asset ledger.Address, subID ledger.SubID) (*AllowanceResponse, error) {
	start := time.Now()
	positive, negative, err := qs.core.GetSubIDAllowance(id, delegate, asset, subID)
	qs.observe("get_subid_allowance", start, err)
	if err != nil {
		return nil, err
	}
	sid := uint64(subID)
	return &AllowanceResponse{
		Account:      uint64(id),
		Delegate:     string(delegate),
		Asset:        string(asset),
		SubID:        &sid,
		Positive:     positive,
		Negative:     negative,
		AsOfSequence: qs.core.Sequence(),
	}, nil
}

// --- Event log queries ---

// GetEvents pages through the durable event log. afterSequence is an
// exclusive cursor; pass nil to start from the newest events.
func (qs *QueryService) GetEvents(ctx context.Context, account *int64, limit int, afterSequence *int64) ([]EventResponse, error) {
	start := time.Now()
	events, err := qs.getEvents(ctx, account, limit, afterSequence)
	qs.observe("get_events", start, err)
	return events, err
}

func (qs *QueryService) getEvents(ctx context.Context, account *int64, limit int, afterSequence *int64) ([]EventResponse, error) {
	query := `
		SELECT sequence, event_type, account, payload, state_hash, timestamp
		FROM event_log.events
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if account != nil {
		query += fmt.Sprintf(" AND account = $%d", argIdx)
		args = append(args, *account)
		argIdx++
	}

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventResponse
	for rows.Next() {
		var e EventResponse
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.Account,
			&e.Payload, &e.StateHash, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// GetAdjustments pages through an account's balance mutation audit trail,
// optionally narrowed to one (asset, sub_id) cell.
func (qs *QueryService) GetAdjustments(
	ctx context.Context,
	account int64,
	asset *string,
	subID *int64,
	limit int,
	afterSequence *int64,
) ([]AdjustmentResponse, error) {
	start := time.Now()
	adjustments, err := qs.getAdjustments(ctx, account, asset, subID, limit, afterSequence)
	qs.observe("get_adjustments", start, err)
	return adjustments, err
}

func (qs *QueryService) getAdjustments(
	ctx context.Context,
	account int64,
	asset *string,
	subID *int64,
	limit int,
	afterSequence *int64,
) ([]AdjustmentResponse, error) {
	query := `
		SELECT adjustment_id, sequence, account, asset, sub_id,
		       pre_balance, post_balance, caller, manager, timestamp
		FROM event_log.adjustments
		WHERE account = $1
	`
	args := []interface{}{account}
	argIdx := 2

	if asset != nil {
		query += fmt.Sprintf(" AND asset = $%d", argIdx)
		args = append(args, *asset)
		argIdx++
	}

	if subID != nil {
		query += fmt.Sprintf(" AND sub_id = $%d", argIdx)
		args = append(args, *subID)
		argIdx++
	}

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var adjustments []AdjustmentResponse
	for rows.Next() {
		var a AdjustmentResponse
		if err := rows.Scan(
			&a.AdjustmentID, &a.Sequence, &a.Account, &a.Asset, &a.SubID,
			&a.PreBalance, &a.PostBalance, &a.Caller, &a.Manager, &a.Timestamp,
		); err != nil {
			return nil, err
		}
		adjustments = append(adjustments, a)
	}

	return adjustments, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain continuity across the event log:
// every event's prev_hash must equal the preceding event's state_hash.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	start := time.Now()
	report, err := qs.verifyIntegrity(ctx)
	qs.observe("verify_integrity", start, err)
	return report, err
}

func (qs *QueryService) verifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash != e2.state_hash
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var last sql.NullInt64
	if err := qs.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM event_log.events`).Scan(&last); err != nil {
		return nil, err
	}
	if last.Valid {
		report.LastSequence = last.Int64
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0
	return report, nil
}
