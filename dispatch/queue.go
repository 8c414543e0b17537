package dispatch

import (
	"context"
	"strings"
	"time"

	"sigresponder/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StaleNonce matches the submission errors a node returns when the account
// nonce used by an extrinsic was already consumed.
func StaleNonce(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"outdated", "stale", "priority is too low", "nonce too low"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

type job struct {
	id     string
	method string
	run    func(ctx context.Context) error
	done   chan error
}

// SerialQueue runs the calls of one origin account strictly one after the
// other. It is itself an OriginClient.
type SerialQueue struct {
	client  OriginClient
	jobs    chan job
	retries int
	delay   time.Duration
	isStale func(error) bool
	logger  *zap.Logger
}

func NewSerialQueue(client OriginClient, retries int, delay time.Duration, isStale func(error) bool, logger *zap.Logger) *SerialQueue {
	if isStale == nil {
		isStale = StaleNonce
	}
	return &SerialQueue{
		client:  client,
		jobs:    make(chan job),
		retries: retries,
		delay:   delay,
		isStale: isStale,
		logger:  logger,
	}
}

// Run executes queued calls until ctx is done.
func (q *SerialQueue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-q.jobs:
			j.done <- q.execute(ctx, j)
		}
	}
}

func (q *SerialQueue) execute(ctx context.Context, j job) error {
	var err error
	for attempt := 0; attempt <= q.retries; attempt++ {
		if attempt > 0 {
			q.logger.Sugar().Warnw("Retrying dispatch after stale nonce", "job", j.id, "method", j.method, "attempt", attempt, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(q.delay):
			}
		}
		err = j.run(ctx)
		if err == nil || !q.isStale(err) {
			return err
		}
	}
	q.logger.Sugar().Errorw("Dispatch retries exhausted", "job", j.id, "method", j.method, "error", err)
	return err
}

func (q *SerialQueue) submit(ctx context.Context, method string, run func(ctx context.Context) error) error {
	j := job{id: uuid.NewString(), method: method, run: run, done: make(chan error, 1)}
	select {
	case q.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *SerialQueue) Respond(ctx context.Context, ids []common.Hash, sigs []types.Signature) error {
	return q.submit(ctx, "respond", func(ctx context.Context) error {
		return q.client.Respond(ctx, ids, sigs)
	})
}

func (q *SerialQueue) RespondBidirectional(ctx context.Context, id common.Hash, output []byte, sig types.Signature) error {
	return q.submit(ctx, "respond_bidirectional", func(ctx context.Context) error {
		return q.client.RespondBidirectional(ctx, id, output, sig)
	})
}

func (q *SerialQueue) RespondError(ctx context.Context, errs []types.ErrorResponse) error {
	return q.submit(ctx, "respond_error", func(ctx context.Context) error {
		return q.client.RespondError(ctx, errs)
	})
}
