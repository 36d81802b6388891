package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

func (s *Store) SetLedgerSyncPending(ctx context.Context, kind core.Kind, userID, id string, pending bool) error {
	if err := guard(ctx, storage.OpUpdate, kind, userID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case core.KindReceivable:
		r, ok := s.receivables[id]
		if !ok || r.val.UserID != userID {
			break
		}
		r.val.LedgerSyncPending = pending
		s.receivables[id] = r
		return nil
	case core.KindFixedExpensePayment:
		r, ok := s.payments[id]
		if !ok || r.val.UserID != userID {
			break
		}
		r.val.LedgerSyncPending = pending
		s.payments[id] = r
		return nil
	case core.KindSavingsMovement:
		r, ok := s.movements[id]
		if !ok || r.val.UserID != userID {
			break
		}
		r.val.LedgerSyncPending = pending
		s.movements[id] = r
		return nil
	default:
		return storeErr(storage.OpUpdate, kind, fmt.Errorf("%s does not carry a ledger entry", kind))
	}
	return storeErr(storage.OpUpdate, kind, storage.ErrNotFound)
}

func (s *Store) ListFlaggedAnchors(ctx context.Context, limit int) ([]storage.AnchorRef, error) {
	if err := ctxErr(ctx, storage.OpList, ""); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	type flagged struct {
		seq int64
		ref storage.AnchorRef
	}
	collect := func(in []flagged) []storage.AnchorRef {
		sort.Slice(in, func(i, j int) bool { return in[i].seq < in[j].seq })
		if limit > 0 && len(in) > limit {
			in = in[:limit]
		}
		out := make([]storage.AnchorRef, len(in))
		for i, f := range in {
			out[i] = f.ref
		}
		return out
	}

	var rs, ps, ms []flagged
	for _, r := range s.receivables {
		if r.val.LedgerSyncPending {
			rs = append(rs, flagged{r.seq, storage.AnchorRef{Kind: core.KindReceivable, ID: r.val.ID, UserID: r.val.UserID, LedgerTransactionID: r.val.LedgerTransactionID}})
		}
	}
	for _, r := range s.payments {
		if r.val.LedgerSyncPending {
			ps = append(ps, flagged{r.seq, storage.AnchorRef{Kind: core.KindFixedExpensePayment, ID: r.val.ID, UserID: r.val.UserID, LedgerTransactionID: r.val.LedgerTransactionID}})
		}
	}
	for _, r := range s.movements {
		if r.val.LedgerSyncPending {
			ms = append(ms, flagged{r.seq, storage.AnchorRef{Kind: core.KindSavingsMovement, ID: r.val.ID, UserID: r.val.UserID, LedgerTransactionID: r.val.LedgerTransactionID}})
		}
	}
	out := collect(rs)
	out = append(out, collect(ps)...)
	out = append(out, collect(ms)...)
	return out, nil
}

func (s *Store) EnqueueLedgerSync(ctx context.Context, in storage.LedgerSync) (storage.LedgerSync, error) {
	if err := ctxErr(ctx, storage.OpQueue, in.AnchorKind); err != nil {
		return storage.LedgerSync{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, row := range s.syncs {
		if row.AnchorKind == in.AnchorKind && row.AnchorID == in.AnchorID {
			row.UserID = in.UserID
			row.Operation = in.Operation
			row.TransactionID = in.TransactionID
			row.Status = storage.SyncPending
			row.Attempts = 0
			row.LastError = in.LastError
			row.UpdatedAt = now
			return *row, nil
		}
	}
	s.syncSeq++
	row := in
	row.ID = s.syncSeq
	row.Status = storage.SyncPending
	row.Attempts = 0
	row.CreatedAt = now
	row.UpdatedAt = now
	s.syncs[row.ID] = &row
	return row, nil
}

func (s *Store) FindLedgerSync(ctx context.Context, kind core.Kind, anchorID string) (storage.LedgerSync, error) {
	if err := ctxErr(ctx, storage.OpQueue, kind); err != nil {
		return storage.LedgerSync{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.syncs {
		if row.AnchorKind == kind && row.AnchorID == anchorID {
			return *row, nil
		}
	}
	return storage.LedgerSync{}, storeErr(storage.OpQueue, kind, storage.ErrNotFound)
}

func (s *Store) DequeueLedgerSyncs(ctx context.Context, limit int) ([]storage.LedgerSync, error) {
	if err := ctxErr(ctx, storage.OpQueue, ""); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.LedgerSync
	for _, row := range s.syncs {
		if row.Status == storage.SyncPending {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkLedgerSyncProcessing(ctx context.Context, id int64) error {
	return s.updateSync(ctx, id, func(row *storage.LedgerSync) error {
		if row.Status != storage.SyncPending {
			return storage.ErrConflict
		}
		row.Status = storage.SyncProcessing
		return nil
	})
}

func (s *Store) CompleteLedgerSync(ctx context.Context, id int64) error {
	return s.updateSync(ctx, id, func(row *storage.LedgerSync) error {
		row.Status = storage.SyncCompleted
		return nil
	})
}

func (s *Store) IncrementLedgerSyncAttempt(ctx context.Context, id int64, lastError string) error {
	return s.updateSync(ctx, id, func(row *storage.LedgerSync) error {
		row.Status = storage.SyncPending
		row.Attempts++
		row.LastError = lastError
		return nil
	})
}

func (s *Store) FailLedgerSync(ctx context.Context, id int64, lastError string) error {
	return s.updateSync(ctx, id, func(row *storage.LedgerSync) error {
		row.Status = storage.SyncFailed
		row.Attempts++
		row.LastError = lastError
		return nil
	})
}

func (s *Store) updateSync(ctx context.Context, id int64, fn func(*storage.LedgerSync) error) error {
	if err := ctxErr(ctx, storage.OpQueue, ""); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.syncs[id]
	if !ok {
		return storeErr(storage.OpQueue, "", storage.ErrNotFound)
	}
	if err := fn(row); err != nil {
		return storeErr(storage.OpQueue, row.AnchorKind, err)
	}
	row.UpdatedAt = s.now()
	return nil
}

func (s *Store) ResetStaleLedgerSyncs(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.syncs {
		if row.Status == storage.SyncProcessing {
			row.Status = storage.SyncPending
		}
	}
	return nil
}

func (s *Store) RetryFailedLedgerSyncs(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, row := range s.syncs {
		if row.Status == storage.SyncFailed {
			row.Status = storage.SyncPending
			row.Attempts = 0
			n++
		}
	}
	return n, nil
}

func (s *Store) CleanupCompletedLedgerSyncs(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, row := range s.syncs {
		if row.Status == storage.SyncCompleted && row.UpdatedAt.Before(before) {
			delete(s.syncs, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) LedgerSyncStats(ctx context.Context) (storage.LedgerSyncStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st storage.LedgerSyncStats
	for _, row := range s.syncs {
		switch row.Status {
		case storage.SyncPending:
			st.Pending++
		case storage.SyncProcessing:
			st.Processing++
		case storage.SyncCompleted:
			st.Completed++
		case storage.SyncFailed:
			st.Failed++
		}
	}
	return st, nil
}
