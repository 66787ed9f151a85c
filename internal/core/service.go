package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"MarginLedger/internal/event"
	"MarginLedger/internal/ledger"
	"MarginLedger/internal/observability"
)

// Output is one committed event leaving the core: the sealed envelope plus
// the typed payload for downstream consumers.
type Output struct {
	Envelope *event.Envelope
	Event    event.Event
}

// Service owns a single Ledger and serializes every command against it —
// the "single global sequential ledger" the core assumes is provided by
// its execution environment. After a command commits, its events are
// sequenced, hash-chained and emitted: a blocking send to the persist
// channel (no event is ever lost) and a non-blocking send to the publish
// channel (drop on full; consumers can catch up from the event log).
type Service struct {
	mu sync.Mutex

	ledger   *ledger.Ledger
	sequence int64
	hasher   *StateHasher
	captured []event.Event

	persistChan chan<- Output
	publishChan chan<- Output

	metrics *observability.Metrics
	log     zerolog.Logger
	clock   func() time.Time
}

func NewService(
	l *ledger.Ledger,
	startSequence int64,
	persistChan, publishChan chan<- Output,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Service {
	s := &Service{
		ledger:      l,
		sequence:    startSequence,
		hasher:      NewStateHasher(),
		persistChan: persistChan,
		publishChan: publishChan,
		metrics:     metrics,
		log:         log,
		clock:       time.Now,
	}
	l.SetEventSink(func(ev event.Event) {
		s.captured = append(s.captured, ev)
	})
	return s
}

// do wraps a ledger command: it runs under the service mutex, and on
// success seals every event the command emitted into the hash chain and
// pushes it downstream.
func (s *Service) do(op string, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	s.captured = s.captured[:0]

	if err := fn(); err != nil {
		reason := errorReason(err)
		if s.metrics != nil {
			s.metrics.OpsRejected.WithLabelValues(op, reason).Inc()
			var hookErr *ledger.HookError
			if errors.As(err, &hookErr) {
				s.metrics.HookRejections.WithLabelValues(hookErr.Hook).Inc()
			}
		}
		s.log.Debug().Str("op", op).Str("reason", reason).Err(err).Msg("operation rejected")
		return err
	}

	now := s.clock()
	for _, ev := range s.captured {
		payload, err := json.Marshal(ev)
		if err != nil {
			// Event payloads are plain structs; this cannot fail in practice.
			s.log.Error().Err(err).Msg("marshal event payload")
			payload = []byte("{}")
		}

		seq := s.sequence
		s.sequence++
		prev := s.hasher.GetPrevHash()
		hash := s.hasher.ComputeHash(seq, payload)

		out := Output{
			Envelope: &event.Envelope{
				Sequence:  seq,
				EventType: ev.EventType(),
				Account:   ev.AccountID(),
				Timestamp: now,
				Payload:   payload,
				StateHash: hash,
				PrevHash:  prev,
			},
			Event: ev,
		}

		if s.persistChan != nil {
			select {
			case s.persistChan <- out:
			default:
				if s.metrics != nil {
					s.metrics.PersistBackpressure.Inc()
				}
				// Blocking send: the core stalls until the persistence
				// worker drains, guaranteeing no event is lost.
				s.persistChan <- out
			}
		}

		if s.publishChan != nil {
			select {
			case s.publishChan <- out:
			default:
				// Dropped; downstream consumers rebuild from the event log.
				if s.metrics != nil {
					s.metrics.PublishDrops.Inc()
				}
			}
		}

		if s.metrics != nil {
			s.metrics.EventsEmitted.WithLabelValues(ev.EventType().String()).Inc()
		}
	}

	if s.metrics != nil {
		s.metrics.OpsApplied.WithLabelValues(op).Inc()
		s.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		s.metrics.CoreSequence.Set(float64(s.sequence))
		s.metrics.Accounts.Set(float64(s.ledger.NumAccounts()))
	}
	return nil
}

func errorReason(err error) string {
	var (
		authErr      *ledger.AuthorizationError
		allowanceErr *ledger.AllowanceError
		invariantErr *ledger.InvariantError
		hookErr      *ledger.HookError
	)
	switch {
	case errors.As(err, &authErr):
		return "authorization"
	case errors.As(err, &allowanceErr):
		return "allowance"
	case errors.As(err, &invariantErr):
		return "invariant"
	case errors.As(err, &hookErr):
		return "hook"
	default:
		return "other"
	}
}

// --- Commands ---

func (s *Service) CreateAccount(owner, manager ledger.Address) (ledger.AccountID, error) {
	var id ledger.AccountID
	err := s.do("create_account", func() error {
		var err error
		id, err = s.ledger.CreateAccount(owner, manager)
		return err
	})
	return id, err
}

func (s *Service) ChangeManager(caller ledger.Address, id ledger.AccountID, newManager ledger.Address, data []byte) error {
	return s.do("change_manager", func() error {
		return s.ledger.ChangeManager(caller, id, newManager, data)
	})
}

func (s *Service) BurnAccount(caller ledger.Address, id ledger.AccountID) error {
	return s.do("burn_account", func() error {
		return s.ledger.BurnAccount(caller, id)
	})
}

func (s *Service) SetDelegate(caller ledger.Address, id ledger.AccountID, delegate ledger.Address, enabled bool) error {
	return s.do("set_delegate", func() error {
		return s.ledger.SetDelegate(caller, id, delegate, enabled)
	})
}

func (s *Service) SetAssetAllowances(caller ledger.Address, id ledger.AccountID, delegate ledger.Address, allowances []ledger.AssetAllowance) error {
	return s.do("set_asset_allowances", func() error {
		return s.ledger.SetAssetAllowances(caller, id, delegate, allowances)
	})
}

func (s *Service) SetSubIDAllowances(caller ledger.Address, id ledger.AccountID, delegate ledger.Address, allowances []ledger.SubIDAllowance) error {
	return s.do("set_subid_allowances", func() error {
		return s.ledger.SetSubIDAllowances(caller, id, delegate, allowances)
	})
}

func (s *Service) SubmitTransfer(caller ledger.Address, t ledger.Transfer, managerData []byte) error {
	return s.do("submit_transfer", func() error {
		return s.ledger.SubmitTransfer(caller, t, managerData)
	})
}

func (s *Service) SubmitTransfers(caller ledger.Address, transfers []ledger.Transfer, managerData []byte) error {
	return s.do("submit_transfers", func() error {
		return s.ledger.SubmitTransfers(caller, transfers, managerData)
	})
}

func (s *Service) AdjustBalance(caller ledger.Address, adj ledger.Adjustment, managerData []byte) (int64, error) {
	var post int64
	err := s.do("adjust_balance", func() error {
		var err error
		post, err = s.ledger.AdjustBalance(caller, adj, managerData)
		return err
	})
	return post, err
}

func (s *Service) TransferAll(caller ledger.Address, from, to ledger.AccountID, managerData []byte, perAssetData [][]byte) error {
	return s.do("transfer_all", func() error {
		return s.ledger.TransferAll(caller, from, to, managerData, perAssetData)
	})
}

// --- Queries ---

func (s *Service) GetBalance(id ledger.AccountID, asset ledger.Address, subID ledger.SubID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.GetBalance(id, asset, subID)
}

func (s *Service) GetAccountBalances(id ledger.AccountID) ([]ledger.AssetBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.GetAccountBalances(id)
}

func (s *Service) GetAccountInfo(id ledger.AccountID) (owner, manager ledger.Address, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, err = s.ledger.AccountOwner(id)
	if err != nil {
		return "", "", err
	}
	manager, err = s.ledger.AccountManager(id)
	if err != nil {
		return "", "", err
	}
	return owner, manager, nil
}

func (s *Service) GetAssetAllowance(id ledger.AccountID, delegate, asset ledger.Address) (positive, negative int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.AssetAllowanceOf(id, delegate, asset)
}

func (s *Service) GetSubIDAllowance(id ledger.AccountID, delegate, asset ledger.Address, subID ledger.SubID) (positive, negative int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.SubIDAllowanceOf(id, delegate, asset, subID)
}

// Sequence returns the next sequence number to be assigned.
func (s *Service) Sequence() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequence
}

// StateHash returns the current hash-chain tip.
func (s *Service) StateHash() [32]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasher.GetPrevHash()
}

// --- Snapshot & restore ---

// SnapshotState captures the serializable core state for persistence.
type SnapshotState struct {
	Sequence  int64
	StateHash [32]byte
	Ledger    *ledger.Snapshot
}

func (s *Service) CreateSnapshotState() *SnapshotState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &SnapshotState{
		Sequence:  s.sequence,
		StateHash: s.hasher.GetPrevHash(),
		Ledger:    s.ledger.Snapshot(),
	}
}

// RestoreFromSnapshot rebuilds the core's in-memory state. Capability
// registries are code wiring and must already be registered on the ledger.
func (s *Service) RestoreFromSnapshot(snap *SnapshotState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger.Restore(snap.Ledger)
	s.sequence = snap.Sequence
	s.hasher.SetPrevHash(snap.StateHash)
}

// ReplayRow rolls one persisted event forward during boot recovery,
// advancing the sequence and hash chain to match the stored envelope.
// stateHash, when non-nil, is checked against the recomputed chain value.
func (s *Service) ReplayRow(sequence int64, eventType string, payload []byte, stateHash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sequence != s.sequence {
		return fmt.Errorf("replay: expected sequence %d, event log has %d", s.sequence, sequence)
	}

	ev, err := event.Decode(eventType, payload)
	if err != nil {
		return err
	}
	if err := s.ledger.Replay(ev); err != nil {
		return err
	}

	hash := s.hasher.ComputeHash(sequence, payload)
	s.sequence = sequence + 1

	if stateHash != nil && !bytes.Equal(hash[:], stateHash) {
		return fmt.Errorf("replay: state hash mismatch at sequence %d", sequence)
	}
	return nil
}
