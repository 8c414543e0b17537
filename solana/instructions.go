package solana

import (
	"sigresponder/borsh"
	"sigresponder/types"

	"github.com/ethereum/go-ethereum/common"
)

func writeSignature(w *borsh.Writer, sig types.Signature) {
	w.WriteFixed(sig.BigR.X[:])
	w.WriteFixed(sig.BigR.Y[:])
	w.WriteFixed(sig.S[:])
	w.WriteU8(sig.RecoveryID)
}

// EncodeRespond builds respond(request_ids, signatures).
func EncodeRespond(ids []common.Hash, sigs []types.Signature) []byte {
	w := &borsh.Writer{}
	w.WriteFixed(respondDisc)
	w.WriteU32(uint32(len(ids)))
	for _, id := range ids {
		w.WriteFixed(id[:])
	}
	w.WriteU32(uint32(len(sigs)))
	for _, sig := range sigs {
		writeSignature(w, sig)
	}
	return w.Bytes()
}

// EncodeReadRespond builds read_respond(request_id, serialized_output, signature).
func EncodeReadRespond(id common.Hash, output []byte, sig types.Signature) []byte {
	w := &borsh.Writer{}
	w.WriteFixed(readRespondDisc)
	w.WriteFixed(id[:])
	w.WriteBytes(output)
	writeSignature(w, sig)
	return w.Bytes()
}

// EncodeRespondError builds respond_error(errors).
func EncodeRespondError(errs []types.ErrorResponse) []byte {
	w := &borsh.Writer{}
	w.WriteFixed(respondErrorDisc)
	w.WriteU32(uint32(len(errs)))
	for _, e := range errs {
		w.WriteFixed(e.RequestID[:])
		w.WriteString(e.Message)
	}
	return w.Bytes()
}
