package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// execer is satisfied by both *sql.DB and *sql.Tx, so batch writes can run
// inside the worker's transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// EventLogWriter writes events and adjustments to Postgres using multi-row
// INSERTs. Multi-row INSERT is a portable alternative to the COPY protocol;
// switch to pgx CopyFrom if write throughput becomes the bottleneck.
type EventLogWriter struct {
	db *sql.DB
}

// EventRow represents a row in event_log.events.
type EventRow struct {
	Sequence  int64
	EventType string
	Account   int64
	Payload   []byte // JSON-encoded event payload
	StateHash []byte
	PrevHash  []byte
	Timestamp time.Time
}

// AdjustmentRow represents a row in event_log.adjustments: one balance cell
// mutation, denormalized from BalanceAdjusted events for fast point queries.
type AdjustmentRow struct {
	AdjustmentID string
	Sequence     int64
	Account      int64
	Asset        string
	SubID        int64
	PreBalance   int64
	PostBalance  int64
	Caller       string
	Manager      string
	Timestamp    time.Time
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// WriteEventBatch writes a batch of events to event_log.events.
// ON CONFLICT DO NOTHING makes retried batches idempotent.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, exec execer, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.events
		(sequence, event_type, account, payload, state_hash, prev_hash, timestamp)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*7)

	for i, e := range events {
		base := i * 7
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		args = append(args,
			e.Sequence, e.EventType, e.Account,
			e.Payload, e.StateHash, e.PrevHash, e.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := exec.ExecContext(ctx, query, args...)
	return err
}

// WriteAdjustmentBatch writes a batch of adjustment rows to event_log.adjustments.
func (w *EventLogWriter) WriteAdjustmentBatch(ctx context.Context, exec execer, adjustments []AdjustmentRow) error {
	if len(adjustments) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.adjustments
		(adjustment_id, sequence, account, asset, sub_id, pre_balance, post_balance, caller, manager, timestamp)
		VALUES `

	values := make([]string, 0, len(adjustments))
	args := make([]interface{}, 0, len(adjustments)*10)

	for i, a := range adjustments {
		base := i * 10
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10,
		))
		args = append(args,
			a.AdjustmentID, a.Sequence, a.Account, a.Asset, a.SubID,
			a.PreBalance, a.PostBalance, a.Caller, a.Manager, a.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (adjustment_id) DO NOTHING"

	_, err := exec.ExecContext(ctx, query, args...)
	return err
}

// LastSequence returns the highest durably written sequence, or -1 when the
// event log is empty. Used on boot to resume the global sequence.
func (w *EventLogWriter) LastSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := w.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM event_log.events`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return -1, nil
	}
	return seq.Int64, nil
}
