package solana

import (
	"context"

	"sigresponder/types"

	"github.com/ethereum/go-ethereum/common"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// RPC is the slice of the Solana JSON-RPC API the origin needs.
type RPC interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solanago.Transaction, opts rpc.TransactionOpts) (solanago.Signature, error)
	GetTransaction(ctx context.Context, sig solanago.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
}

// Client submits responder instructions to the signet program. Calls are
// independent, each carries its own blockhash.
type Client struct {
	rpc       RPC
	programID solanago.PublicKey
	responder solanago.PrivateKey
	logger    *zap.Logger
}

func NewClient(rpcClient RPC, programID solanago.PublicKey, responder solanago.PrivateKey, logger *zap.Logger) *Client {
	return &Client{rpc: rpcClient, programID: programID, responder: responder, logger: logger}
}

func (c *Client) Respond(ctx context.Context, ids []common.Hash, sigs []types.Signature) error {
	_, err := c.send(ctx, EncodeRespond(ids, sigs))
	return errors.Wrap(err, "respond")
}

func (c *Client) RespondBidirectional(ctx context.Context, id common.Hash, output []byte, sig types.Signature) error {
	_, err := c.send(ctx, EncodeReadRespond(id, output, sig))
	return errors.Wrap(err, "read_respond")
}

func (c *Client) RespondError(ctx context.Context, errs []types.ErrorResponse) error {
	_, err := c.send(ctx, EncodeRespondError(errs))
	return errors.Wrap(err, "respond_error")
}

// buildTransaction wraps data in a program instruction signed by the responder.
func (c *Client) buildTransaction(ctx context.Context, data []byte) (*solanago.Transaction, error) {
	latest, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return nil, errors.Wrap(err, "latest blockhash")
	}

	responder := c.responder.PublicKey()
	ix := solanago.NewInstruction(c.programID, solanago.AccountMetaSlice{solanago.Meta(responder).SIGNER()}, data)
	tx, err := solanago.NewTransaction([]solanago.Instruction{ix}, latest.Value.Blockhash, solanago.TransactionPayer(responder))
	if err != nil {
		return nil, errors.Wrap(err, "build transaction")
	}

	if _, err := tx.Sign(func(key solanago.PublicKey) *solanago.PrivateKey {
		if key.Equals(responder) {
			return &c.responder
		}
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "sign transaction")
	}
	return tx, nil
}

func (c *Client) send(ctx context.Context, data []byte) (solanago.Signature, error) {
	tx, err := c.buildTransaction(ctx, data)
	if err != nil {
		return solanago.Signature{}, err
	}
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{PreflightCommitment: rpc.CommitmentConfirmed})
	if err != nil {
		return solanago.Signature{}, err
	}
	c.logger.Sugar().Infow("Solana response sent", "signature", sig.String())
	return sig, nil
}
