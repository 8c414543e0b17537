// Package substrate is the pallet-style origin: it reads signet pallet events
// from finalized blocks and answers with signed extrinsics.
package substrate

import (
	"context"
	"time"

	"sigresponder/types"

	"github.com/centrifuge/go-substrate-rpc-client/v4/registry/parser"
	"github.com/centrifuge/go-substrate-rpc-client/v4/rpc/chain"
	gstypes "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Chain interface {
	SubscribeFinalizedHeads() (*chain.FinalizedHeadsSubscription, error)
	GetBlockHash(blockNumber uint64) (gstypes.Hash, error)
}

type EventRetriever interface {
	GetEvents(blockHash gstypes.Hash) ([]*parser.Event, error)
}

type Feed struct {
	chain          Chain
	events         EventRetriever
	decoder        *Decoder
	reconnectDelay time.Duration
	logger         *zap.Logger

	// last finalized block whose events were read, 0 before the first head
	last uint64
}

func NewFeed(c Chain, events EventRetriever, decoder *Decoder, reconnectDelay time.Duration, logger *zap.Logger) *Feed {
	return &Feed{chain: c, events: events, decoder: decoder, reconnectDelay: reconnectDelay, logger: logger}
}

func (f *Feed) Run(ctx context.Context, out chan<- types.Event) error {
	for {
		err := f.follow(ctx, out)
		if ctx.Err() != nil {
			return nil
		}
		f.logger.Sugar().Warnw("Substrate subscription dropped, resubscribing", "error", err, "delay", f.reconnectDelay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(f.reconnectDelay):
		}
	}
}

func (f *Feed) follow(ctx context.Context, out chan<- types.Event) error {
	sub, err := f.chain.SubscribeFinalizedHeads()
	if err != nil {
		return errors.Wrap(err, "subscribe finalized heads")
	}
	defer sub.Unsubscribe()
	f.logger.Sugar().Infow("Substrate subscription open", "fromBlock", f.last)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			return errors.Wrap(err, "finalized heads")
		case head := <-sub.Chan():
			f.processUpTo(ctx, uint64(head.Number), out)
		}
	}
}

// processUpTo reads every block after the last processed one up to head, so
// heads skipped by the subscription are not lost.
func (f *Feed) processUpTo(ctx context.Context, head uint64, out chan<- types.Event) {
	if f.last > 0 && head <= f.last {
		return
	}
	from := head
	if f.last > 0 {
		from = f.last + 1
	}
	for n := from; n <= head; n++ {
		if err := f.processBlock(ctx, n, out); err != nil {
			f.logger.Sugar().Errorw("Cannot read block events", "block", n, "error", err)
			return
		}
		f.last = n
	}
}

func (f *Feed) processBlock(ctx context.Context, n uint64, out chan<- types.Event) error {
	hash, err := f.chain.GetBlockHash(n)
	if err != nil {
		return errors.Wrap(err, "block hash")
	}
	events, err := f.events.GetEvents(hash)
	if err != nil {
		return errors.Wrap(err, "events")
	}

	for _, raw := range events {
		ev, ok, err := f.decoder.Decode(raw.Name, raw.Fields)
		if !ok {
			continue
		}
		if err != nil {
			f.logger.Sugar().Errorw("Dropping undecodable pallet event", "block", n, "event", raw.Name, "error", err)
			continue
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
