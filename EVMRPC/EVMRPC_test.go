package EVMRPC

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type rpcServer struct {
	mu      sync.Mutex
	calls   map[string]int
	results map[string]any
}

func newRPCServer(results map[string]any) (*rpcServer, *httptest.Server) {
	s := &rpcServer{calls: map[string]int{}, results: results}
	return s, httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.calls[req.Method]++
		result := s.results[req.Method]
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
}

func TestWithClient_FailsOver(t *testing.T) {
	rpc, srv := newRPCServer(map[string]any{"eth_getTransactionCount": "0x5"})
	defer srv.Close()

	c := NewClient(1, []string{"http://127.0.0.1:1", srv.URL}, zap.NewNop())
	nonce, err := c.NonceAt(context.Background(), common.HexToAddress("0x01"), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), nonce)
	assert.Equal(t, 1, rpc.calls["eth_getTransactionCount"])
}

func TestWithClient_NotFoundStopsFailover(t *testing.T) {
	first, srv1 := newRPCServer(map[string]any{"eth_getTransactionReceipt": nil})
	defer srv1.Close()
	second, srv2 := newRPCServer(map[string]any{"eth_getTransactionReceipt": nil})
	defer srv2.Close()

	c := NewClient(1, []string{srv1.URL, srv2.URL}, zap.NewNop())
	_, err := c.TransactionReceipt(context.Background(), common.HexToHash("0xabc"))
	assert.True(t, errors.Is(err, ethereum.NotFound))
	assert.Equal(t, 1, first.calls["eth_getTransactionReceipt"])
	assert.Equal(t, 0, second.calls["eth_getTransactionReceipt"])
}

func TestWithClient_NoEndpoints(t *testing.T) {
	c := NewClient(1, nil, zap.NewNop())
	_, err := c.SuggestGasPrice(context.Background())
	assert.Error(t, err)
}

func TestChains_Lookup(t *testing.T) {
	chains := Chains{11155111: NewClient(11155111, []string{"http://x"}, zap.NewNop())}
	c, ok := chains.Lookup(big.NewInt(11155111))
	assert.True(t, ok)
	assert.Equal(t, int64(11155111), c.ChainID)

	_, ok = chains.Lookup(big.NewInt(1))
	assert.False(t, ok)
	_, ok = chains.Lookup(nil)
	assert.False(t, ok)
}
