package BTCRPC

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ExplorerBackend talks to an Esplora-compatible REST API.
type ExplorerBackend struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewExplorerBackend builds the backend and checks the tip height. A failed
// check is only logged, explorers are allowed to be flaky at startup.
func NewExplorerBackend(ctx context.Context, baseURL string, requestsPerSecond float64, timeout time.Duration, logger *zap.Logger) *ExplorerBackend {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	b := &ExplorerBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
	if _, err := b.GetCurrentBlockHeight(ctx); err != nil {
		logger.Sugar().Warnw("Bitcoin explorer tip check failed", "url", b.baseURL, "error", err)
	}
	return b
}

func (b *ExplorerBackend) do(ctx context.Context, method, path string, body io.Reader) ([]byte, int, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "text/plain")
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, resp.StatusCode, ErrNotFound
	}
	if resp.StatusCode >= 400 {
		return nil, resp.StatusCode, errors.Errorf("%s %s: %d %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, resp.StatusCode, nil
}

func (b *ExplorerBackend) getJSON(ctx context.Context, path string, out interface{}) error {
	data, _, err := b.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return errors.Wrap(json.Unmarshal(data, out), path)
}

func (b *ExplorerBackend) GetTransaction(ctx context.Context, txid string) (*TxStatus, error) {
	var status struct {
		Confirmed   bool  `json:"confirmed"`
		BlockHeight int64 `json:"block_height"`
	}
	if err := b.getJSON(ctx, "/tx/"+txid+"/status", &status); err != nil {
		return nil, err
	}
	if !status.Confirmed {
		return &TxStatus{}, nil
	}

	tip, err := b.GetCurrentBlockHeight(ctx)
	if err != nil {
		return nil, err
	}
	return &TxStatus{
		Confirmed:     true,
		Confirmations: tip - status.BlockHeight + 1,
		BlockHeight:   status.BlockHeight,
	}, nil
}

func (b *ExplorerBackend) GetCurrentBlockHeight(ctx context.Context) (int64, error) {
	data, _, err := b.do(ctx, http.MethodGet, "/blocks/tip/height", nil)
	if err != nil {
		return 0, err
	}
	height, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "tip height")
	}
	return height, nil
}

func (b *ExplorerBackend) GetAddressUtxos(ctx context.Context, address string) ([]UTXO, error) {
	var raw []struct {
		TxID   string `json:"txid"`
		Vout   uint32 `json:"vout"`
		Value  int64  `json:"value"`
		Status struct {
			BlockHeight int64 `json:"block_height"`
		} `json:"status"`
	}
	if err := b.getJSON(ctx, "/address/"+address+"/utxo", &raw); err != nil {
		return nil, err
	}
	utxos := make([]UTXO, 0, len(raw))
	for _, u := range raw {
		utxos = append(utxos, UTXO{TxID: u.TxID, Vout: u.Vout, Value: u.Value, Height: u.Status.BlockHeight})
	}
	return utxos, nil
}

func (b *ExplorerBackend) IsPrevoutSpent(ctx context.Context, txid string, vout uint32) (bool, string, error) {
	var out struct {
		Spent bool   `json:"spent"`
		TxID  string `json:"txid"`
	}
	if err := b.getJSON(ctx, fmt.Sprintf("/tx/%s/outspend/%d", txid, vout), &out); err != nil {
		return false, "", err
	}
	return out.Spent, out.TxID, nil
}

func (b *ExplorerBackend) BroadcastTransaction(ctx context.Context, txHex string) (string, error) {
	data, _, err := b.do(ctx, http.MethodPost, "/tx", bytes.NewBufferString(txHex))
	if err != nil {
		return "", errors.Wrap(err, "broadcast")
	}
	return strings.TrimSpace(string(data)), nil
}

func (b *ExplorerBackend) MineBlocks(ctx context.Context, n int, address string) ([]string, error) {
	return nil, ErrUnsupported
}

func (b *ExplorerBackend) FundAddress(ctx context.Context, address string, amountBTC float64) (string, error) {
	return "", ErrUnsupported
}
