// Package workers runs the responder: it signs requests arriving from the
// origin feeds, watches the destination transactions it signed and reports
// their outcome back.
package workers

import (
	"context"
	"crypto/ecdsa"
	"time"

	"sigresponder/metrics"
	"sigresponder/registry"
	"sigresponder/signer"
	"sigresponder/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Monitor reports the state of a destination transaction.
type Monitor interface {
	Check(ctx context.Context, p *types.PendingTransaction) types.MonitorResult
}

// Dispatcher submits responses to the origin a request came from.
type Dispatcher interface {
	Respond(ctx context.Context, origin types.Origin, ids []common.Hash, sigs []types.Signature) error
	RespondBidirectional(ctx context.Context, origin types.Origin, id common.Hash, output []byte, sig types.Signature) error
	RespondError(ctx context.Context, origin types.Origin, errs []types.ErrorResponse) error
}

// EVMSigner signs unsigned EVM transactions.
type EVMSigner interface {
	Sign(ctx context.Context, unsigned []byte, key *ecdsa.PrivateKey, caip2ID string) (*signer.EVMResult, error)
}

type Options struct {
	RootKey *ecdsa.PrivateKey
	// chain id bidirectional requests derive their keys under, per origin
	DerivationChainIDs map[types.Origin]string
	PollInterval       time.Duration
	PollConcurrency    int
}

type RelayServer struct {
	opts       Options
	registry   *registry.Registry
	monitor    Monitor
	dispatcher Dispatcher
	evm        EVMSigner
	bitcoin    *signer.BitcoinAdapter
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

func NewRelayServer(opts Options, reg *registry.Registry, mon Monitor, d Dispatcher, evm EVMSigner, btc *signer.BitcoinAdapter, m *metrics.Metrics, logger *zap.Logger) *RelayServer {
	if opts.PollConcurrency <= 0 {
		opts.PollConcurrency = 1
	}
	return &RelayServer{
		opts:       opts,
		registry:   reg,
		monitor:    mon,
		dispatcher: d,
		evm:        evm,
		bitcoin:    btc,
		metrics:    m,
		logger:     logger,
	}
}

// Worker_handleEvents consumes origin events until ctx is done or events is
// closed. Each event is handled on its own goroutine.
func (s *RelayServer) Worker_handleEvents(ctx context.Context, events <-chan types.Event) error {
	s.logger.Info("Listening for signing requests")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			go s.HandleEvent(ctx, ev)
		}
	}
}

// HandleEvent processes one origin event to completion.
func (s *RelayServer) HandleEvent(ctx context.Context, ev types.Event) {
	log := s.logger.With(zap.String("trace", uuid.NewString()), zap.String("origin", string(ev.EventOrigin())))

	switch e := ev.(type) {
	case types.SignatureRequested:
		s.metrics.RequestObserved(string(e.Origin), "sign")
		s.handleSignatureRequest(ctx, e.Origin, e.Request, log)
	case types.BidirectionalRequested:
		s.metrics.RequestObserved(string(e.Origin), "sign_respond")
		s.handleBidirectionalRequest(ctx, e.Origin, e.Request, log)
	default:
		log.Sugar().Warnw("Ignoring unknown event", "event", ev)
	}
}
