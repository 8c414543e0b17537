package workers

import (
	"context"
	"crypto/ecdsa"

	"sigresponder/derivation"
	"sigresponder/requestid"
	"sigresponder/serializer"
	"sigresponder/signer"
	"sigresponder/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func (s *RelayServer) handleSignatureRequest(ctx context.Context, origin types.Origin, req types.SigningRequest, log *zap.Logger) {
	id, err := requestid.ForSigningRequest(req)
	if err != nil {
		log.Sugar().Errorw("Cannot compute request id", "chainId", req.ChainID, "error", err)
		return
	}
	log = log.With(zap.String("request", id.Hex()))

	if !s.registry.Claim(id) {
		log.Debug("Request already signed")
		return
	}

	key, err := derivation.DerivePrivateKey(s.opts.RootKey, req.ChainID, req.Sender, req.Path)
	if err != nil {
		log.Sugar().Errorw("Key derivation failed", "error", err)
		return
	}
	sig, err := signer.SignDigest(key, req.Payload[:])
	if err != nil {
		log.Sugar().Errorw("Signing failed", "error", err)
		return
	}
	s.metrics.SignatureProduced("digest")

	if err := s.dispatcher.Respond(ctx, origin, []common.Hash{id}, []types.Signature{sig}); err != nil {
		log.Sugar().Errorw("Respond failed", "error", err)
		return
	}
	log.Sugar().Infow("Signature delivered", "sender", req.Sender, "chainId", req.ChainID)
}

func (s *RelayServer) handleBidirectionalRequest(ctx context.Context, origin types.Origin, req types.BidirectionalRequest, log *zap.Logger) {
	id := requestid.ForBidirectional(req)
	log = log.With(zap.String("request", id.Hex()), zap.String("caip2", req.CAIP2ID))

	ns, _, err := types.ParseCAIP2(req.CAIP2ID)
	if err != nil {
		s.reject(ctx, origin, id, errors.Wrap(types.ErrUnsupportedNamespace, err.Error()), log)
		return
	}
	if err := serializer.ValidateSchema(req.CallbackSchema); err != nil {
		s.reject(ctx, origin, id, errors.Wrap(err, "callback"), log)
		return
	}

	derivationChainID, ok := s.opts.DerivationChainIDs[origin]
	if !ok {
		log.Error("No derivation chain id configured for origin")
		return
	}
	key, err := derivation.DerivePrivateKey(s.opts.RootKey, derivationChainID, req.Sender, req.Path)
	if err != nil {
		log.Sugar().Errorw("Key derivation failed", "error", err)
		return
	}

	switch ns {
	case types.NamespaceEIP155:
		s.signEVM(ctx, origin, id, req, key, log)
	case types.NamespaceBIP122:
		s.signBitcoin(ctx, origin, id, req, key, log)
	default:
		s.reject(ctx, origin, id, errors.Wrapf(types.ErrUnsupportedNamespace, "%s", ns), log)
	}
}

func (s *RelayServer) signEVM(ctx context.Context, origin types.Origin, id common.Hash, req types.BidirectionalRequest, key *ecdsa.PrivateKey, log *zap.Logger) {
	if s.evm == nil {
		log.Error("EVM signing is not configured")
		return
	}
	if !s.registry.Claim(id) {
		log.Debug("Request already signed")
		return
	}

	res, err := s.evm.Sign(ctx, req.SerializedTransaction, key, req.CAIP2ID)
	if err != nil {
		if errors.Is(err, signer.ErrUnsupportedInput) {
			s.reject(ctx, origin, id, err, log)
			return
		}
		log.Sugar().Errorw("EVM signing failed", "error", err)
		return
	}
	s.metrics.SignatureProduced(string(types.NamespaceEIP155))

	if err := s.dispatcher.Respond(ctx, origin, []common.Hash{id}, []types.Signature{res.Signature}); err != nil {
		log.Sugar().Errorw("Respond failed", "tx", res.TxHash.Hex(), "error", err)
		return
	}

	s.track(&types.PendingTransaction{
		TxID:           res.TxHash.Hex(),
		RequestID:      id,
		Namespace:      types.NamespaceEIP155,
		CAIP2ID:        req.CAIP2ID,
		OutputSchema:   req.OutputSchema,
		CallbackSchema: req.CallbackSchema,
		Origin:         origin,
		Sender:         req.Sender,
		FromAddress:    res.From.Hex(),
		Nonce:          res.Nonce,
	}, log)
}

func (s *RelayServer) signBitcoin(ctx context.Context, origin types.Origin, id common.Hash, req types.BidirectionalRequest, key *ecdsa.PrivateKey, log *zap.Logger) {
	if s.bitcoin == nil {
		log.Error("Bitcoin signing is not configured")
		return
	}

	prepared, err := s.bitcoin.Prepare(req.SerializedTransaction)
	if err != nil {
		s.reject(ctx, origin, id, err, log)
		return
	}

	// the transaction-level id is the one monitored and answered
	txLevelID := requestid.BitcoinTransaction(req, prepared.TxID)
	log = log.With(zap.String("txRequest", txLevelID.Hex()), zap.String("tx", prepared.TxID.String()))
	if !s.registry.Claim(txLevelID) {
		log.Debug("Request already signed")
		return
	}

	sigs, err := s.bitcoin.SignInputs(prepared, key)
	if err != nil {
		if errors.Is(err, signer.ErrUnsupportedInput) {
			s.reject(ctx, origin, txLevelID, err, log)
			return
		}
		log.Sugar().Errorw("Bitcoin signing failed", "error", err)
		return
	}
	s.metrics.SignatureProduced(string(types.NamespaceBIP122))

	ids := make([]common.Hash, len(prepared.Inputs))
	for i, in := range prepared.Inputs {
		ids[i] = requestid.BitcoinInput(req, prepared.TxID, in.Index)
	}
	if err := s.dispatcher.Respond(ctx, origin, ids, sigs); err != nil {
		log.Sugar().Errorw("Respond failed", "error", err)
		return
	}

	s.track(&types.PendingTransaction{
		TxID:           prepared.TxID.String(),
		RequestID:      txLevelID,
		Namespace:      types.NamespaceBIP122,
		CAIP2ID:        req.CAIP2ID,
		OutputSchema:   req.OutputSchema,
		CallbackSchema: req.CallbackSchema,
		Origin:         origin,
		Sender:         req.Sender,
		Prevouts:       prepared.Prevouts(),
	}, log)
}

func (s *RelayServer) track(p *types.PendingTransaction, log *zap.Logger) {
	if err := s.registry.Add(p); err != nil {
		log.Sugar().Warnw("Cannot track transaction", "error", err)
		return
	}
	log.Sugar().Infow("Signature delivered, watching transaction", "tx", p.TxID, "namespace", p.Namespace)
}

// reject answers a request that can never be signed with an unsigned error
// response.
func (s *RelayServer) reject(ctx context.Context, origin types.Origin, id common.Hash, cause error, log *zap.Logger) {
	log.Sugar().Warnw("Rejecting request", "error", cause)
	err := s.dispatcher.RespondError(ctx, origin, []types.ErrorResponse{{RequestID: id, Message: cause.Error()}})
	if err != nil {
		log.Sugar().Errorw("RespondError failed", "error", err)
	}
}
