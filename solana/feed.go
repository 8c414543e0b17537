package solana

import (
	"context"
	"time"

	"sigresponder/types"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Feed follows program transactions over logsSubscribe and fetches each
// one to read its CPI events.
type Feed struct {
	wsURL          string
	programID      solanago.PublicKey
	rpc            RPC
	decoder        *Decoder
	reconnectDelay time.Duration
	logger         *zap.Logger
}

func NewFeed(wsURL string, programID solanago.PublicKey, rpcClient RPC, decoder *Decoder, reconnectDelay time.Duration, logger *zap.Logger) *Feed {
	return &Feed{
		wsURL:          wsURL,
		programID:      programID,
		rpc:            rpcClient,
		decoder:        decoder,
		reconnectDelay: reconnectDelay,
		logger:         logger,
	}
}

// Run keeps the subscription alive until ctx is done.
func (f *Feed) Run(ctx context.Context, out chan<- types.Event) error {
	for {
		err := f.subscribe(ctx, out)
		if ctx.Err() != nil {
			return nil
		}
		f.logger.Sugar().Warnw("Solana subscription dropped, reconnecting", "error", err, "delay", f.reconnectDelay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(f.reconnectDelay):
		}
	}
}

func (f *Feed) subscribe(ctx context.Context, out chan<- types.Event) error {
	client, err := ws.Connect(ctx, f.wsURL)
	if err != nil {
		return errors.Wrap(err, "dial")
	}
	defer client.Close()

	sub, err := client.LogsSubscribeMentions(f.programID, rpc.CommitmentConfirmed)
	if err != nil {
		return errors.Wrap(err, "logsSubscribe")
	}
	f.logger.Sugar().Infow("Solana subscription open", "program", f.programID.String())

	// Recv has no context; closing the client on return ends the subscription
	results := make(chan *ws.LogResult)
	failed := make(chan error, 1)
	go func() {
		for {
			got, err := sub.Recv()
			if err != nil {
				failed <- err
				return
			}
			select {
			case results <- got:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-failed:
			return errors.Wrap(err, "read")
		case got := <-results:
			if got == nil || got.Value.Err != nil {
				continue
			}
			go f.handleSignature(ctx, got.Value.Signature, out)
		}
	}
}

func (f *Feed) handleSignature(ctx context.Context, sig solanago.Signature, out chan<- types.Event) {
	version := uint64(0)
	res, err := f.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solanago.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &version,
	})
	if err != nil {
		f.logger.Sugar().Errorw("Cannot fetch program transaction", "signature", sig.String(), "error", err)
		return
	}

	events, err := f.EventsFromTransaction(res)
	if err != nil {
		f.logger.Sugar().Errorw("Cannot read program events", "signature", sig.String(), "error", err)
		return
	}
	for _, ev := range events {
		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// EventsFromTransaction decodes every signing request event emitted by the
// program inside res.
func (f *Feed) EventsFromTransaction(res *rpc.GetTransactionResult) ([]types.Event, error) {
	if res == nil || res.Meta == nil || res.Transaction == nil {
		return nil, nil
	}
	tx, err := res.Transaction.GetTransaction()
	if err != nil {
		return nil, errors.Wrap(err, "decode transaction")
	}

	keys := append(solanago.PublicKeySlice{}, tx.Message.AccountKeys...)
	keys = append(keys, res.Meta.LoadedAddresses.Writable...)
	keys = append(keys, res.Meta.LoadedAddresses.ReadOnly...)

	var events []types.Event
	for _, inner := range res.Meta.InnerInstructions {
		for _, ix := range inner.Instructions {
			if int(ix.ProgramIDIndex) >= len(keys) || !keys[ix.ProgramIDIndex].Equals(f.programID) {
				continue
			}
			ev, err := f.decoder.Decode(ix.Data)
			if errors.Is(err, ErrNotEvent) || errors.Is(err, ErrUnhandledEvent) {
				continue
			}
			if err != nil {
				f.logger.Sugar().Errorw("Dropping undecodable program event", "error", err)
				continue
			}
			events = append(events, ev)
		}
	}
	return events, nil
}
