package substrate

import (
	"context"

	"sigresponder/types"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4"
	"github.com/centrifuge/go-substrate-rpc-client/v4/registry/retriever"
	"github.com/centrifuge/go-substrate-rpc-client/v4/registry/state"
	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	gstypes "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type affinePoint struct {
	X [32]byte
	Y [32]byte
}

// signatureArg mirrors the pallet's Signature struct field for field.
type signatureArg struct {
	BigR       affinePoint
	S          [32]byte
	RecoveryID uint8
}

type errorResponseArg struct {
	RequestID    [32]byte
	ErrorMessage []byte
}

func toSignatureArg(sig types.Signature) signatureArg {
	return signatureArg{BigR: affinePoint{X: sig.BigR.X, Y: sig.BigR.Y}, S: sig.S, RecoveryID: sig.RecoveryID}
}

// Client signs and submits signet pallet calls. It is not safe for
// concurrent use: wrap it in a serial queue.
type Client struct {
	api     *gsrpc.SubstrateAPI
	keyring signature.KeyringPair
	logger  *zap.Logger
}

func NewClient(api *gsrpc.SubstrateAPI, seed string, ss58Format uint16, logger *zap.Logger) (*Client, error) {
	kp, err := signature.KeyringPairFromSecret(seed, ss58Format)
	if err != nil {
		return nil, errors.Wrap(err, "substrate signer")
	}
	return &Client{api: api, keyring: kp, logger: logger}, nil
}

// Connect opens the API and the event retriever sharing it.
func Connect(url string) (*gsrpc.SubstrateAPI, EventRetriever, error) {
	api, err := gsrpc.NewSubstrateAPI(url)
	if err != nil {
		return nil, nil, errors.Wrap(err, "substrate connect")
	}
	events, err := retriever.NewDefaultEventRetriever(state.NewEventProvider(api.RPC.State), api.RPC.State)
	if err != nil {
		return nil, nil, errors.Wrap(err, "event retriever")
	}
	return api, events, nil
}

func (c *Client) Address() string {
	return c.keyring.Address
}

func (c *Client) Respond(ctx context.Context, ids []common.Hash, sigs []types.Signature) error {
	rawIDs := make([][32]byte, len(ids))
	for i, id := range ids {
		rawIDs[i] = id
	}
	args := make([]signatureArg, len(sigs))
	for i, sig := range sigs {
		args[i] = toSignatureArg(sig)
	}
	return c.submit("Signet.respond", rawIDs, args)
}

func (c *Client) RespondBidirectional(ctx context.Context, id common.Hash, output []byte, sig types.Signature) error {
	return c.submit("Signet.read_respond", [32]byte(id), output, toSignatureArg(sig))
}

func (c *Client) RespondError(ctx context.Context, errs []types.ErrorResponse) error {
	args := make([]errorResponseArg, len(errs))
	for i, e := range errs {
		args[i] = errorResponseArg{RequestID: e.RequestID, ErrorMessage: []byte(e.Message)}
	}
	return c.submit("Signet.respond_error", args)
}

func (c *Client) submit(method string, args ...interface{}) error {
	meta, err := c.api.RPC.State.GetMetadataLatest()
	if err != nil {
		return errors.Wrap(err, "metadata")
	}
	call, err := gstypes.NewCall(meta, method, args...)
	if err != nil {
		return errors.Wrapf(err, "build %s", method)
	}

	genesis, err := c.api.RPC.Chain.GetBlockHash(0)
	if err != nil {
		return errors.Wrap(err, "genesis hash")
	}
	rv, err := c.api.RPC.State.GetRuntimeVersionLatest()
	if err != nil {
		return errors.Wrap(err, "runtime version")
	}

	// the pool-aware nonce covers our own not yet included extrinsics
	var nonce uint32
	if err := c.api.Client.Call(&nonce, "system_accountNextIndex", c.keyring.Address); err != nil {
		return errors.Wrap(err, "account nonce")
	}

	ext := gstypes.NewExtrinsic(call)
	err = ext.Sign(c.keyring, gstypes.SignatureOptions{
		BlockHash:          genesis,
		Era:                gstypes.ExtrinsicEra{IsMortalEra: false},
		GenesisHash:        genesis,
		Nonce:              gstypes.NewUCompactFromUInt(uint64(nonce)),
		SpecVersion:        rv.SpecVersion,
		Tip:                gstypes.NewUCompactFromUInt(0),
		TransactionVersion: rv.TransactionVersion,
	})
	if err != nil {
		return errors.Wrap(err, "sign extrinsic")
	}

	hash, err := c.api.RPC.Author.SubmitExtrinsic(ext)
	if err != nil {
		return errors.Wrapf(err, "submit %s", method)
	}
	c.logger.Sugar().Infow("Substrate response submitted", "method", method, "nonce", nonce, "hash", hash.Hex())
	return nil
}
