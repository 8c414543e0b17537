// Package dispatch submits responses back to the origin chains.
package dispatch

import (
	"context"

	"sigresponder/metrics"
	"sigresponder/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrUnknownOrigin = errors.New("no client for origin")

// OriginClient submits responder calls on one origin chain.
type OriginClient interface {
	Respond(ctx context.Context, requestIDs []common.Hash, sigs []types.Signature) error
	RespondBidirectional(ctx context.Context, requestID common.Hash, output []byte, sig types.Signature) error
	RespondError(ctx context.Context, errs []types.ErrorResponse) error
}

type Dispatcher struct {
	clients map[types.Origin]OriginClient
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func New(m *metrics.Metrics, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{clients: make(map[types.Origin]OriginClient), metrics: m, logger: logger}
}

func (d *Dispatcher) Register(origin types.Origin, c OriginClient) {
	d.clients[origin] = c
}

func (d *Dispatcher) client(origin types.Origin) (OriginClient, error) {
	c, ok := d.clients[origin]
	if !ok {
		return nil, errors.Wrap(ErrUnknownOrigin, string(origin))
	}
	return c, nil
}

func (d *Dispatcher) Respond(ctx context.Context, origin types.Origin, ids []common.Hash, sigs []types.Signature) error {
	c, err := d.client(origin)
	if err == nil {
		err = c.Respond(ctx, ids, sigs)
	}
	d.metrics.Dispatch(string(origin), "respond", err)
	return err
}

func (d *Dispatcher) RespondBidirectional(ctx context.Context, origin types.Origin, id common.Hash, output []byte, sig types.Signature) error {
	c, err := d.client(origin)
	if err == nil {
		err = c.RespondBidirectional(ctx, id, output, sig)
	}
	d.metrics.Dispatch(string(origin), "respond_bidirectional", err)
	return err
}

func (d *Dispatcher) RespondError(ctx context.Context, origin types.Origin, errs []types.ErrorResponse) error {
	c, err := d.client(origin)
	if err == nil {
		err = c.RespondError(ctx, errs)
	}
	d.metrics.Dispatch(string(origin), "respond_error", err)
	return err
}
