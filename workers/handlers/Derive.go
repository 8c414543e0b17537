package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"sigresponder/derivation"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Derive reports the addresses a request with the given predecessor, path
// and chain id will be signed for, so requesters can fund them up front.
func (a *API) Derive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		a.Logger.Sugar().Warnw("Error reading request body", "error", err)
		responseError(w, "", "Error reading request body", http.StatusBadRequest)
		return
	}

	var req DeriveRequest
	if err := json.Unmarshal(body, &req); err != nil {
		responseError(w, "", "Cannot unmarshal input JSON", http.StatusBadRequest)
		return
	}
	if req.Predecessor == "" {
		responseError(w, "predecessor", "No predecessor provided", http.StatusBadRequest)
		return
	}
	if req.ChainID == "" {
		responseError(w, "chainId", "No chain id provided", http.StatusBadRequest)
		return
	}

	pub, err := derivation.DerivePublicKey(a.RootPublicKey, req.ChainID, req.Predecessor, req.Path)
	if err != nil {
		a.Logger.Sugar().Errorw("Error deriving public key", "predecessor", req.Predecessor, "error", err)
		responseError(w, "", "Cannot derive key", http.StatusInternalServerError)
		return
	}

	res := &APIDeriveResponse{
		Status:     "ok",
		PublicKey:  hexutil.Encode(crypto.FromECDSAPub(pub)),
		EVMAddress: crypto.PubkeyToAddress(*pub).Hex(),
	}
	if a.Bitcoin != nil {
		if res.BitcoinAddress, err = a.Bitcoin.Address(pub); err != nil {
			a.Logger.Sugar().Warnw("Error encoding bitcoin address", "error", err)
		}
	}
	responseJSON(w, res, http.StatusOK)
}
