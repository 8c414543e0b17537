package solana

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sigresponder/types"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fetchRPC struct {
	fakeRPC
	fetched chan solanago.Signature
}

func (f *fetchRPC) GetTransaction(ctx context.Context, sig solanago.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	f.fetched <- sig
	return nil, nil
}

// validatorWS accepts one logsSubscribe and pushes a failed and a successful
// notification for the program.
func validatorWS(t *testing.T, program solanago.PublicKey, failed, ok solanago.Signature) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		var req struct {
			ID     uint64        `json:"id"`
			Method string        `json:"method"`
			Params []interface{} `json:"params"`
		}
		require.NoError(t, conn.ReadJSON(&req))
		assert.Equal(t, "logsSubscribe", req.Method)
		require.Len(t, req.Params, 2)
		assert.Equal(t, map[string]interface{}{"mentions": []interface{}{program.String()}}, req.Params[0])
		assert.Equal(t, map[string]interface{}{"commitment": "confirmed"}, req.Params[1])

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf(`{"jsonrpc":"2.0","result":7,"id":%d}`, req.ID))))
		for _, n := range []struct {
			sig solanago.Signature
			err string
		}{{failed, `{"InstructionError":[0,"Custom"]}`}, {ok, "null"}} {
			msg := fmt.Sprintf(`{"jsonrpc":"2.0","method":"logsNotification","params":{"subscription":7,"result":{"context":{"slot":5},"value":{"signature":%q,"err":%s,"logs":[]}}}}`, n.sig.String(), n.err)
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
		}

		// hold the connection until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestFeedFetchesSuccessfulProgramTransactions(t *testing.T) {
	program := solanago.NewWallet().PublicKey()
	failed := solanago.Signature{1}
	ok := solanago.Signature{2}
	srv := validatorWS(t, program, failed, ok)
	defer srv.Close()

	rpcClient := &fetchRPC{fetched: make(chan solanago.Signature, 2)}
	feed := NewFeed("ws"+strings.TrimPrefix(srv.URL, "http"), program, rpcClient, &Decoder{}, time.Second, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- feed.Run(ctx, make(chan types.Event, 1)) }()

	select {
	case sig := <-rpcClient.fetched:
		assert.Equal(t, ok, sig)
	case <-time.After(5 * time.Second):
		t.Fatal("transaction was not fetched")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("feed did not stop")
	}
	assert.Empty(t, rpcClient.fetched)
}
