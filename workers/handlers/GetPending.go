package handlers

import (
	"net/http"
	"strings"

	"sigresponder/types"

	ethav "github.com/KOREAN139/ethereum-address-validator"
	"github.com/ethereum/go-ethereum/common"
)

// GetPending lists monitored transactions, optionally only those sent from
// the derived EVM address given in ?from=.
func (a *API) GetPending(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	if from != "" {
		if err := ethav.Validate(common.HexToAddress(from).Hex()); err != nil || !common.IsHexAddress(from) {
			a.Logger.Sugar().Debugw("Rejected pending filter", "from", from)
			responseError(w, "from", "invalid ethereum address", http.StatusBadRequest)
			return
		}
	}

	res := &APIPendingResponse{Status: "ok", Transactions: []types.PendingTransaction{}}
	for _, p := range a.Pending.Snapshot() {
		if from != "" && !strings.EqualFold(p.FromAddress, common.HexToAddress(from).Hex()) {
			continue
		}
		res.Transactions = append(res.Transactions, p)
	}
	responseJSON(w, res, http.StatusOK)
}
