package workers

import (
	"context"
	"time"

	"sigresponder/serializer"
	"sigresponder/signer"
	"sigresponder/types"

	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Worker_processExecution polls the registry on every tick until ctx is done.
func (s *RelayServer) Worker_processExecution(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	var tick uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			tick++
			s.Poll(ctx, tick)
		}
	}
}

// Poll checks every entry due on tick and handles those that settled.
func (s *RelayServer) Poll(ctx context.Context, tick uint64) {
	due := s.registry.Due(tick)
	if len(due) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.PollConcurrency)
	for i := range due {
		p := due[i]
		g.Go(func() error {
			s.processExecution(gctx, &p)
			return nil
		})
	}
	g.Wait()
}

func (s *RelayServer) processExecution(ctx context.Context, p *types.PendingTransaction) {
	log := s.logger.With(zap.String("tx", p.TxID), zap.String("request", p.RequestID.Hex()))

	res := s.monitor.Check(ctx, p)
	s.metrics.MonitorResult(string(p.Namespace), string(res.Status))

	switch res.Status {
	case types.StatusPending:
		return
	case types.StatusFatalError:
		log.Sugar().Errorw("Abandoning transaction", "reason", res.Reason)
		s.registry.Remove(p.TxID)
		return
	}

	handled := s.registry.Complete(p.TxID, func(p types.PendingTransaction) {
		s.respondExecution(ctx, &p, res, log)
	})
	if !handled {
		log.Debug("Completion already in progress")
	}
}

// respondExecution reports the settled transaction back to its origin,
// signed with the root key over keccak256(requestId || output).
func (s *RelayServer) respondExecution(ctx context.Context, p *types.PendingTransaction, res types.MonitorResult, log *zap.Logger) {
	output, err := s.executionOutput(p, res)
	if err != nil {
		log.Sugar().Errorw("Cannot encode execution output", "error", err)
		return
	}

	digest := crypto.Keccak256(p.RequestID[:], output)
	sig, err := signer.SignDigest(s.opts.RootKey, digest)
	if err != nil {
		log.Sugar().Errorw("Signing response failed", "error", err)
		return
	}

	if err := s.dispatcher.RespondBidirectional(ctx, p.Origin, p.RequestID, output, sig); err != nil {
		log.Sugar().Errorw("RespondBidirectional failed", "error", err)
		return
	}
	log.Sugar().Infow("Execution result delivered", "status", res.Status, "reason", res.Reason)
}

// executionOutput encodes a success with the callback schema and a failure
// as the prefixed error payload. A success the schema cannot express is an
// encoding error: the transaction did succeed, so no error is reported.
func (s *RelayServer) executionOutput(p *types.PendingTransaction, res types.MonitorResult) ([]byte, error) {
	if res.Status == types.StatusSuccess {
		return serializer.Serialize(res.Output, p.CallbackSchema)
	}
	return serializer.ErrorPayload(p.CallbackSchema.Format)
}
