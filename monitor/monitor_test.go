package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"sigresponder/BTCRPC"
	"sigresponder/types"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	errRPC     = errors.New("connection reset")
	contract   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	sender     = common.HexToAddress("0x3333333333333333333333333333333333333333")
	boolSchema = types.Schema{Format: types.FormatABI, Raw: []byte(`[{"name":"ok","type":"bool"},{"name":"amount","type":"uint256"}]`)}
)

type fakeEVM struct {
	mu         sync.Mutex
	receipt    *ethtypes.Receipt
	receiptErr error
	nonce      uint64
	nonceErr   error
	tx         *ethtypes.Transaction
	callOut    []byte
	callErr    error
	callBlock  *big.Int
	calls      int
}

func (f *fakeEVM) TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	return f.receipt, f.receiptErr
}

func (f *fakeEVM) TransactionByHash(ctx context.Context, hash common.Hash) (*ethtypes.Transaction, bool, error) {
	return f.tx, false, nil
}

func (f *fakeEVM) NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	return f.nonce, f.nonceErr
}

func (f *fakeEVM) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.callBlock = blockNumber
	return f.callOut, f.callErr
}

func evmChecker(f *fakeEVM) *EthereumChecker {
	return NewEthereumChecker(func(chainID *big.Int) (EVMBackend, bool) {
		if chainID.Int64() != 11155111 {
			return nil, false
		}
		return f, true
	}, zap.NewNop())
}

func evmPending() *types.PendingTransaction {
	return &types.PendingTransaction{
		TxID:        common.HexToHash("0x01").Hex(),
		Namespace:   types.NamespaceEIP155,
		CAIP2ID:     "eip155:11155111",
		FromAddress: sender.Hex(),
		Nonce:       4,
	}
}

func contractCall() *ethtypes.Transaction {
	return ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    4,
		GasPrice: big.NewInt(1),
		Gas:      100000,
		To:       &contract,
		Value:    big.NewInt(0),
		Data:     []byte{0xa9, 0x05, 0x9c, 0xbb},
	})
}

func TestEthereum_Reverted(t *testing.T) {
	f := &fakeEVM{receipt: &ethtypes.Receipt{Status: ethtypes.ReceiptStatusFailed}}
	res := evmChecker(f).Check(context.Background(), evmPending())
	assert.Equal(t, types.Failed(types.ReasonReverted), res)
}

func TestEthereum_ReplacedWhenNonceAdvanced(t *testing.T) {
	f := &fakeEVM{receiptErr: ethereum.NotFound, nonce: 5}
	res := evmChecker(f).Check(context.Background(), evmPending())
	assert.Equal(t, types.Failed(types.ReasonReplaced), res)
}

func TestEthereum_PendingWhenNotMined(t *testing.T) {
	f := &fakeEVM{receiptErr: ethereum.NotFound, nonce: 4}
	res := evmChecker(f).Check(context.Background(), evmPending())
	assert.Equal(t, types.StatusPending, res.Status)
}

func TestEthereum_RPCFaultsArePending(t *testing.T) {
	for name, f := range map[string]*fakeEVM{
		"receipt": {receiptErr: errRPC},
		"nonce":   {receiptErr: ethereum.NotFound, nonceErr: errRPC},
		"call": {
			receipt: &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful, BlockNumber: big.NewInt(10)},
			tx:      contractCall(),
			callErr: errRPC,
		},
	} {
		t.Run(name, func(t *testing.T) {
			p := evmPending()
			p.OutputSchema = boolSchema
			assert.Equal(t, types.StatusPending, evmChecker(f).Check(context.Background(), p).Status)
		})
	}
}

func TestEthereum_UnsupportedChainIsFatal(t *testing.T) {
	p := evmPending()
	p.CAIP2ID = "eip155:1"
	assert.Equal(t, types.Fatal(types.ReasonUnsupportedChain), evmChecker(&fakeEVM{}).Check(context.Background(), p))

	p.CAIP2ID = "eip155:mainnet"
	assert.Equal(t, types.StatusFatalError, evmChecker(&fakeEVM{}).Check(context.Background(), p).Status)
}

func TestEthereum_NonFunctionCallSuccess(t *testing.T) {
	f := &fakeEVM{receipt: &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful, BlockNumber: big.NewInt(10)}}
	res := evmChecker(f).Check(context.Background(), evmPending())
	require.Equal(t, types.StatusSuccess, res.Status)
	assert.Equal(t, types.NonFunctionCallSuccess(), res.Output)
	assert.Zero(t, f.calls)

	// plain transfer with an output schema still has nothing to decode
	f.tx = ethtypes.NewTx(&ethtypes.LegacyTx{To: &contract, Value: big.NewInt(1), GasPrice: big.NewInt(1), Gas: 21000})
	p := evmPending()
	p.OutputSchema = boolSchema
	res = evmChecker(f).Check(context.Background(), p)
	assert.Equal(t, types.NonFunctionCallSuccess(), res.Output)
	assert.Zero(t, f.calls)
}

func TestEthereum_FunctionCallOutputDecoded(t *testing.T) {
	boolT, _ := abi.NewType("bool", "", nil)
	uintT, _ := abi.NewType("uint256", "", nil)
	ret, err := abi.Arguments{{Type: boolT}, {Type: uintT}}.Pack(true, big.NewInt(77))
	require.NoError(t, err)

	f := &fakeEVM{
		receipt: &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful, BlockNumber: big.NewInt(10)},
		tx:      contractCall(),
		callOut: ret,
	}
	p := evmPending()
	p.OutputSchema = boolSchema

	res := evmChecker(f).Check(context.Background(), p)
	require.Equal(t, types.StatusSuccess, res.Status)
	assert.True(t, res.Output.IsFunctionCall)
	assert.Equal(t, true, res.Output.Fields["ok"])
	assert.Equal(t, big.NewInt(77), res.Output.Fields["amount"])
	assert.Equal(t, big.NewInt(9), f.callBlock)
}

func TestEthereum_UndecodableOutputIsFatal(t *testing.T) {
	f := &fakeEVM{
		receipt: &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful, BlockNumber: big.NewInt(10)},
		tx:      contractCall(),
		callOut: []byte{0x01},
	}
	p := evmPending()
	p.OutputSchema = boolSchema
	assert.Equal(t, types.Fatal(ReasonInvalidOutput), evmChecker(f).Check(context.Background(), p))
}

type fakeBitcoin struct {
	BTCRPC.Backend
	status   *BTCRPC.TxStatus
	txErr    error
	spent    map[types.Prevout]string
	spentErr error
}

func (f *fakeBitcoin) GetTransaction(ctx context.Context, txid string) (*BTCRPC.TxStatus, error) {
	return f.status, f.txErr
}

func (f *fakeBitcoin) IsPrevoutSpent(ctx context.Context, txid string, vout uint32) (bool, string, error) {
	if f.spentErr != nil {
		return false, "", f.spentErr
	}
	spender, ok := f.spent[types.Prevout{TxID: txid, Vout: vout}]
	return ok, spender, nil
}

func btcPending() *types.PendingTransaction {
	return &types.PendingTransaction{
		TxID:      "mine",
		Namespace: types.NamespaceBIP122,
		Prevouts:  []types.Prevout{{TxID: "funding", Vout: 0}, {TxID: "funding", Vout: 1}},
	}
}

func TestBitcoin_ConfirmedIsSuccess(t *testing.T) {
	f := &fakeBitcoin{status: &BTCRPC.TxStatus{Confirmed: true, Confirmations: 1}}
	res := NewBitcoinChecker(f, zap.NewNop()).Check(context.Background(), btcPending())
	assert.Equal(t, types.Succeeded(&types.ExecutionOutput{Success: true, IsFunctionCall: false}), res)
}

func TestBitcoin_InputsSpentByOtherTx(t *testing.T) {
	f := &fakeBitcoin{
		status: &BTCRPC.TxStatus{},
		spent:  map[types.Prevout]string{{TxID: "funding", Vout: 1}: "conflict"},
	}
	res := NewBitcoinChecker(f, zap.NewNop()).Check(context.Background(), btcPending())
	assert.Equal(t, types.Failed(types.ReasonInputsSpent), res)
}

func TestBitcoin_SpentByItselfIsPending(t *testing.T) {
	f := &fakeBitcoin{
		status: &BTCRPC.TxStatus{},
		spent:  map[types.Prevout]string{{TxID: "funding", Vout: 0}: "mine", {TxID: "funding", Vout: 1}: ""},
	}
	res := NewBitcoinChecker(f, zap.NewNop()).Check(context.Background(), btcPending())
	assert.Equal(t, types.StatusPending, res.Status)
}

func TestBitcoin_UnknownSpenderWithTxGone(t *testing.T) {
	f := &fakeBitcoin{
		txErr: BTCRPC.ErrNotFound,
		spent: map[types.Prevout]string{{TxID: "funding", Vout: 0}: ""},
	}
	res := NewBitcoinChecker(f, zap.NewNop()).Check(context.Background(), btcPending())
	assert.Equal(t, types.Failed(types.ReasonInputsSpent), res)
}

// bitcoind that pruned the mempool entry after mining: getrawtransaction is
// -5 and every funding output is gone from the UTXO set
func minedBitcoind(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     int               `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		switch req.Method {
		case "getblockchaininfo":
			resp["result"] = map[string]interface{}{"chain": "regtest", "blocks": 120}
		case "getindexinfo":
			resp["error"] = map[string]interface{}{"code": -32601, "message": "Method not found"}
		case "getrawtransaction":
			resp["error"] = map[string]interface{}{"code": -5, "message": "No such mempool transaction"}
		case "getblockcount":
			resp["result"] = 120
		case "gettxout":
			var txid string
			require.NoError(t, json.Unmarshal(req.Params[0], &txid))
			if txid == "mine" {
				resp["result"] = map[string]interface{}{"confirmations": 1, "value": 0.5}
			} else {
				resp["result"] = nil
			}
		default:
			resp["error"] = map[string]interface{}{"code": -32601, "message": "Method not found"}
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestBitcoin_MinedTxWithoutRawLookupIsSuccess(t *testing.T) {
	srv := minedBitcoind(t)
	defer srv.Close()

	node, err := BTCRPC.NewNodeBackend(srv.URL, "user", "pass", time.Second)
	require.NoError(t, err)

	res := NewBitcoinChecker(node, zap.NewNop()).Check(context.Background(), btcPending())
	assert.Equal(t, types.Succeeded(&types.ExecutionOutput{Success: true, IsFunctionCall: false}), res)
}

func TestBitcoin_RPCFaultsArePending(t *testing.T) {
	checker := NewBitcoinChecker(&fakeBitcoin{txErr: errRPC}, zap.NewNop())
	assert.Equal(t, types.StatusPending, checker.Check(context.Background(), btcPending()).Status)

	checker = NewBitcoinChecker(&fakeBitcoin{status: &BTCRPC.TxStatus{}, spentErr: errRPC}, zap.NewNop())
	assert.Equal(t, types.StatusPending, checker.Check(context.Background(), btcPending()).Status)
}

func TestMonitor_RoutesByNamespace(t *testing.T) {
	m := New().Register(types.NamespaceBIP122, NewBitcoinChecker(&fakeBitcoin{status: &BTCRPC.TxStatus{Confirmations: 2}}, zap.NewNop()))

	assert.Equal(t, types.StatusSuccess, m.Check(context.Background(), btcPending()).Status)
	assert.Equal(t, types.Fatal(types.ReasonUnsupportedChain), m.Check(context.Background(), evmPending()))
}
