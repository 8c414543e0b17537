package BTCRPC

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/pkg/errors"
	"github.com/ybbus/jsonrpc"
)

// bitcoind RPC_INVALID_ADDRESS_OR_KEY, returned for unknown transactions
const rpcNotFoundCode = -5

// RPC_METHOD_NOT_FOUND, getindexinfo is missing before bitcoind 0.21
const rpcMethodNotFoundCode = -32601

// ErrNoTxIndex is returned for nodes that cannot look up confirmed
// transactions by id.
var ErrNoTxIndex = errors.New("bitcoind runs without -txindex")

// NodeBackend is a bitcoind JSON-RPC backend, meant for private test
// networks.
type NodeBackend struct {
	client jsonrpc.RPCClient
}

// NewNodeBackend connects to bitcoind and fails when the node does not answer.
func NewNodeBackend(url, user, password string, timeout time.Duration) (*NodeBackend, error) {
	auth := base64.StdEncoding.EncodeToString([]byte(user + ":" + password))
	b := &NodeBackend{
		client: jsonrpc.NewClientWithOpts(url, &jsonrpc.RPCClientOpts{
			HTTPClient:    &http.Client{Timeout: timeout},
			CustomHeaders: map[string]string{"Authorization": "Basic " + auth},
		}),
	}

	var info struct {
		Chain  string `json:"chain"`
		Blocks int64  `json:"blocks"`
	}
	if err := b.client.CallFor(&info, "getblockchaininfo"); err != nil {
		return nil, errors.Wrap(err, "bitcoind unreachable")
	}

	// without the index getrawtransaction forgets confirmed transactions and
	// they would look double-spent
	var indexes map[string]json.RawMessage
	if err := b.client.CallFor(&indexes, "getindexinfo"); err != nil {
		if !isRPCError(err, rpcMethodNotFoundCode) {
			return nil, errors.Wrap(err, "getindexinfo")
		}
	} else if _, ok := indexes["txindex"]; !ok {
		return nil, ErrNoTxIndex
	}
	return b, nil
}

func isRPCError(err error, code int) bool {
	var rpcErr *jsonrpc.RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == code
}

func isNotFound(err error) bool {
	return isRPCError(err, rpcNotFoundCode)
}

func (b *NodeBackend) GetTransaction(ctx context.Context, txid string) (*TxStatus, error) {
	var raw struct {
		Confirmations int64  `json:"confirmations"`
		BlockHash     string `json:"blockhash"`
	}
	if err := b.client.CallFor(&raw, "getrawtransaction", txid, true); err != nil {
		if isNotFound(err) {
			return b.statusFromOutput(ctx, txid)
		}
		return nil, errors.Wrap(err, "getrawtransaction")
	}

	status := &TxStatus{Confirmations: raw.Confirmations, Confirmed: raw.Confirmations > 0}
	if raw.BlockHash != "" {
		var header struct {
			Height int64 `json:"height"`
		}
		if err := b.client.CallFor(&header, "getblockheader", raw.BlockHash); err != nil {
			return nil, errors.Wrap(err, "getblockheader")
		}
		status.BlockHeight = header.Height
	}
	return status, nil
}

// statusFromOutput reads confirmations off the transaction's first output,
// for transactions the node no longer serves through getrawtransaction.
func (b *NodeBackend) statusFromOutput(ctx context.Context, txid string) (*TxStatus, error) {
	resp, err := b.client.Call("gettxout", txid, 0, true)
	if err != nil {
		return nil, errors.Wrap(err, "gettxout")
	}
	if resp.Error != nil {
		return nil, errors.Wrap(resp.Error, "gettxout")
	}
	if resp.Result == nil {
		return nil, ErrNotFound
	}

	var out struct {
		Confirmations int64 `json:"confirmations"`
	}
	if err := resp.GetObject(&out); err != nil {
		return nil, errors.Wrap(err, "gettxout")
	}
	status := &TxStatus{Confirmations: out.Confirmations, Confirmed: out.Confirmations > 0}
	if status.Confirmed {
		tip, err := b.GetCurrentBlockHeight(ctx)
		if err != nil {
			return nil, err
		}
		status.BlockHeight = tip - out.Confirmations + 1
	}
	return status, nil
}

func (b *NodeBackend) GetCurrentBlockHeight(ctx context.Context) (int64, error) {
	var height int64
	if err := b.client.CallFor(&height, "getblockcount"); err != nil {
		return 0, errors.Wrap(err, "getblockcount")
	}
	return height, nil
}

func (b *NodeBackend) GetAddressUtxos(ctx context.Context, address string) ([]UTXO, error) {
	var scan struct {
		Unspents []struct {
			TxID   string  `json:"txid"`
			Vout   uint32  `json:"vout"`
			Amount float64 `json:"amount"`
			Height int64   `json:"height"`
		} `json:"unspents"`
	}
	if err := b.client.CallFor(&scan, "scantxoutset", "start", []string{"addr(" + address + ")"}); err != nil {
		return nil, errors.Wrap(err, "scantxoutset")
	}

	utxos := make([]UTXO, 0, len(scan.Unspents))
	for _, u := range scan.Unspents {
		amount, err := btcutil.NewAmount(u.Amount)
		if err != nil {
			return nil, err
		}
		utxos = append(utxos, UTXO{TxID: u.TxID, Vout: u.Vout, Value: int64(amount), Height: u.Height})
	}
	return utxos, nil
}

// IsPrevoutSpent uses gettxout including the mempool. bitcoind does not
// index spenders, so the spending txid is always unknown.
func (b *NodeBackend) IsPrevoutSpent(ctx context.Context, txid string, vout uint32) (bool, string, error) {
	resp, err := b.client.Call("gettxout", txid, vout, true)
	if err != nil {
		return false, "", errors.Wrap(err, "gettxout")
	}
	if resp.Error != nil {
		return false, "", errors.Wrap(resp.Error, "gettxout")
	}
	return resp.Result == nil, "", nil
}

func (b *NodeBackend) BroadcastTransaction(ctx context.Context, txHex string) (string, error) {
	var txid string
	if err := b.client.CallFor(&txid, "sendrawtransaction", txHex); err != nil {
		return "", errors.Wrap(err, "sendrawtransaction")
	}
	return txid, nil
}

func (b *NodeBackend) MineBlocks(ctx context.Context, n int, address string) ([]string, error) {
	var hashes []string
	if err := b.client.CallFor(&hashes, "generatetoaddress", n, address); err != nil {
		return nil, errors.Wrap(err, "generatetoaddress")
	}
	return hashes, nil
}

func (b *NodeBackend) FundAddress(ctx context.Context, address string, amountBTC float64) (string, error) {
	var txid string
	if err := b.client.CallFor(&txid, "sendtoaddress", address, amountBTC); err != nil {
		return "", errors.Wrap(err, "sendtoaddress")
	}
	return txid, nil
}
