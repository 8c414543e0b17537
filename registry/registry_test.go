package registry

import (
	"sync"
	"sync/atomic"
	"testing"

	"sigresponder/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingStore struct {
	mu      sync.Mutex
	saved   map[string]*types.PendingTransaction
	deletes int
}

func newRecordingStore() *recordingStore {
	return &recordingStore{saved: make(map[string]*types.PendingTransaction)}
}

func (s *recordingStore) Save(p *types.PendingTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.saved[p.TxID] = &cp
	return nil
}

func (s *recordingStore) Delete(txID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.saved, txID)
	s.deletes++
	return nil
}

func (s *recordingStore) LoadAll() ([]*types.PendingTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.PendingTransaction, 0, len(s.saved))
	for _, p := range s.saved {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (s *recordingStore) Close() error { return nil }

func pending(id string, ns types.ChainNamespace) *types.PendingTransaction {
	return &types.PendingTransaction{TxID: id, Namespace: ns, RequestID: common.BytesToHash([]byte(id))}
}

func TestSkipFactor(t *testing.T) {
	evm := []struct{ count, factor int }{{0, 1}, {5, 1}, {6, 2}, {10, 2}, {11, 6}, {20, 6}, {21, 12}}
	for _, c := range evm {
		assert.Equal(t, c.factor, SkipFactor(types.NamespaceEIP155, c.count), "eip155 count %d", c.count)
	}
	btc := []struct{ count, factor int }{{0, 1}, {1, 2}, {5, 2}, {6, 6}, {10, 6}, {11, 12}}
	for _, c := range btc {
		assert.Equal(t, c.factor, SkipFactor(types.NamespaceBIP122, c.count), "bip122 count %d", c.count)
	}
}

func TestDueHonoursBackoff(t *testing.T) {
	r := New(nil, nil, zap.NewNop())
	require.NoError(t, r.Add(pending("btc", types.NamespaceBIP122)))

	// first poll always happens, then every second tick
	polled := 0
	for tick := uint64(1); tick <= 6; tick++ {
		polled += len(r.Due(tick))
	}
	// ticks 1, 2, 4, 6
	assert.Equal(t, 4, polled)

	p, ok := r.Get("btc")
	require.True(t, ok)
	assert.Equal(t, 4, p.CheckCount)
}

func TestDueJournalsCheckCount(t *testing.T) {
	store := newRecordingStore()
	first := New(store, nil, zap.NewNop())
	require.NoError(t, first.Add(pending("btc", types.NamespaceBIP122)))
	for tick := uint64(1); tick <= 12; tick++ {
		first.Due(tick)
	}
	// ticks 1, 2, 4, 6, 8, 10, 12
	assert.Equal(t, 7, store.saved["btc"].CheckCount)

	second := New(store, nil, zap.NewNop())
	_, err := second.Load()
	require.NoError(t, err)
	// back-off resumes at every sixth tick instead of starting over
	assert.Empty(t, second.Due(1))
	due := second.Due(6)
	require.Len(t, due, 1)
	assert.Equal(t, 8, due[0].CheckCount)
}

func TestDueSkipsInFlight(t *testing.T) {
	r := New(nil, nil, zap.NewNop())
	require.NoError(t, r.Add(pending("a", types.NamespaceEIP155)))
	require.True(t, r.TryAcquire("a"))
	assert.Empty(t, r.Due(0))
	r.Release("a")
	assert.Len(t, r.Due(0), 1)
}

func TestAddRejectsDuplicates(t *testing.T) {
	r := New(nil, nil, zap.NewNop())
	require.NoError(t, r.Add(pending("a", types.NamespaceEIP155)))
	assert.ErrorIs(t, r.Add(pending("a", types.NamespaceEIP155)), ErrAlreadyRegistered)
}

func TestClaimIsMonotonic(t *testing.T) {
	r := New(nil, nil, zap.NewNop())
	id := common.HexToHash("0x01")
	assert.True(t, r.Claim(id))
	assert.False(t, r.Claim(id))

	require.NoError(t, r.Add(pending("a", types.NamespaceEIP155)))
	r.Remove("a")
	assert.False(t, r.Claim(common.BytesToHash([]byte("a"))))
}

func TestCompleteIsExclusive(t *testing.T) {
	store := newRecordingStore()
	r := New(store, nil, zap.NewNop())
	require.NoError(t, r.Add(pending("tx", types.NamespaceEIP155)))

	var dispatched int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Complete("tx", func(p types.PendingTransaction) {
				atomic.AddInt32(&dispatched, 1)
				<-release
			})
		}()
	}
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&dispatched))
	assert.Equal(t, 1, store.deletes)
	assert.Zero(t, r.Len())
	assert.False(t, r.Complete("tx", func(types.PendingTransaction) { t.Fatal("completed twice") }))
}

func TestLoadRestoresJournal(t *testing.T) {
	store := newRecordingStore()
	first := New(store, nil, zap.NewNop())
	require.NoError(t, first.Add(pending("a", types.NamespaceEIP155)))
	require.NoError(t, first.Add(pending("b", types.NamespaceBIP122)))
	first.Remove("a")

	second := New(store, nil, zap.NewNop())
	n, err := second.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	snap := second.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "b", snap[0].TxID)
	assert.NotZero(t, snap[0].TsCreated)
	assert.False(t, second.Claim(common.BytesToHash([]byte("b"))))
}
