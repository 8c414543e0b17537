// Package registry owns the pending destination transactions and their
// polling schedule.
package registry

import (
	"sort"
	"sync"
	"time"

	"sigresponder/metrics"
	"sigresponder/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrAlreadyRegistered = errors.New("transaction already registered")

// SkipFactor spaces out polls of long-pending transactions. Bitcoin blocks
// are slow, so it backs off sooner.
func SkipFactor(ns types.ChainNamespace, checkCount int) int {
	if ns == types.NamespaceBIP122 {
		switch {
		case checkCount > 10:
			return 12
		case checkCount > 5:
			return 6
		case checkCount > 0:
			return 2
		}
		return 1
	}
	switch {
	case checkCount > 20:
		return 12
	case checkCount > 10:
		return 6
	case checkCount > 5:
		return 2
	}
	return 1
}

type Registry struct {
	mu       sync.Mutex
	pending  map[string]*types.PendingTransaction
	inFlight map[string]struct{}
	// request ids that were ever signed, never shrinks
	signed map[common.Hash]struct{}

	store   Store
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func New(store Store, m *metrics.Metrics, logger *zap.Logger) *Registry {
	if store == nil {
		store = MemoryStore{}
	}
	return &Registry{
		pending:  make(map[string]*types.PendingTransaction),
		inFlight: make(map[string]struct{}),
		signed:   make(map[common.Hash]struct{}),
		store:    store,
		metrics:  m,
		logger:   logger,
	}
}

// Load restores the journaled transactions, returning how many came back.
func (r *Registry) Load() (int, error) {
	records, err := r.store.LoadAll()
	if err != nil {
		return 0, errors.Wrap(err, "load pending transactions")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range records {
		r.pending[p.TxID] = p
		r.signed[p.RequestID] = struct{}{}
	}
	r.metrics.SetPending(len(r.pending))
	return len(records), nil
}

// Claim marks requestID as signed. It returns false when the id was already
// claimed, so each request is signed at most once per process history.
func (r *Registry) Claim(requestID common.Hash) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.signed[requestID]; ok {
		return false
	}
	r.signed[requestID] = struct{}{}
	return true
}

// Add registers a freshly signed transaction.
func (r *Registry) Add(p *types.PendingTransaction) error {
	if p.TsCreated == 0 {
		p.TsCreated = time.Now().Unix()
	}

	r.mu.Lock()
	if _, ok := r.pending[p.TxID]; ok {
		r.mu.Unlock()
		return errors.Wrap(ErrAlreadyRegistered, p.TxID)
	}
	r.pending[p.TxID] = p
	r.signed[p.RequestID] = struct{}{}
	n := len(r.pending)
	r.mu.Unlock()

	r.metrics.SetPending(n)
	if err := r.store.Save(p); err != nil {
		r.logger.Sugar().Errorw("Cannot journal pending transaction", "tx", p.TxID, "error", err)
	}
	return nil
}

func (r *Registry) Remove(txID string) {
	r.mu.Lock()
	_, ok := r.pending[txID]
	delete(r.pending, txID)
	n := len(r.pending)
	r.mu.Unlock()

	if !ok {
		return
	}
	r.metrics.SetPending(n)
	if err := r.store.Delete(txID); err != nil {
		r.logger.Sugar().Errorw("Cannot drop journaled transaction", "tx", txID, "error", err)
	}
}

// Due returns copies of the entries to poll on this tick and bumps their
// check counters. Entries being completed are skipped. The bumped counters
// are journaled so back-off survives a restart.
func (r *Registry) Due(tick uint64) []types.PendingTransaction {
	r.mu.Lock()
	var due []types.PendingTransaction
	for id, p := range r.pending {
		if _, busy := r.inFlight[id]; busy {
			continue
		}
		if tick%uint64(SkipFactor(p.Namespace, p.CheckCount)) != 0 {
			continue
		}
		p.CheckCount++
		due = append(due, *p)
	}
	r.mu.Unlock()

	for i := range due {
		if err := r.store.Save(&due[i]); err != nil {
			r.logger.Sugar().Errorw("Cannot journal check count", "tx", due[i].TxID, "error", err)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].TsCreated < due[j].TsCreated })
	return due
}

// TryAcquire reserves txID for completion handling.
func (r *Registry) TryAcquire(txID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[txID]; !ok {
		return false
	}
	if _, busy := r.inFlight[txID]; busy {
		return false
	}
	r.inFlight[txID] = struct{}{}
	return true
}

func (r *Registry) Release(txID string) {
	r.mu.Lock()
	delete(r.inFlight, txID)
	r.mu.Unlock()
}

// Complete runs fn for txID and deletes the entry, at most once however
// many callers race on the same id. It reports whether fn ran.
func (r *Registry) Complete(txID string, fn func(p types.PendingTransaction)) bool {
	if !r.TryAcquire(txID) {
		return false
	}
	defer r.Release(txID)

	r.mu.Lock()
	p := *r.pending[txID]
	r.mu.Unlock()

	fn(p)
	r.Remove(txID)
	return true
}

func (r *Registry) Get(txID string) (types.PendingTransaction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[txID]
	if !ok {
		return types.PendingTransaction{}, false
	}
	return *p, true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Snapshot returns copies of all entries, oldest first.
func (r *Registry) Snapshot() []types.PendingTransaction {
	r.mu.Lock()
	out := make([]types.PendingTransaction, 0, len(r.pending))
	for _, p := range r.pending {
		out = append(out, *p)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].TsCreated < out[j].TsCreated })
	return out
}

func (r *Registry) Close() error {
	return r.store.Close()
}
