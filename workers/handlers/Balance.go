package handlers

import (
	"net/http"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi"
)

// Funding reports the gas funding account's balance (wei) on every chain
// with funding enabled.
func (a *API) Funding(w http.ResponseWriter, r *http.Request) {
	if a.FundingAddress == (common.Address{}) {
		responseError(w, "", "funding is disabled", http.StatusNotFound)
		return
	}

	res := &APIFundingResponse{Status: "ok", Address: a.FundingAddress.Hex(), Balances: []APIBalance{}}
	for chainID, client := range a.FundingChains {
		entry := APIBalance{ChainID: chainID}
		balance, err := client.BalanceAt(r.Context(), a.FundingAddress, nil)
		if err != nil {
			a.Logger.Sugar().Warnw("Error getting balance", "chain", chainID, "error", err)
			entry.Error = "unavailable"
		} else {
			entry.Balance = balance.String()
		}
		res.Balances = append(res.Balances, entry)
	}
	sort.Slice(res.Balances, func(i, j int) bool { return res.Balances[i].ChainID < res.Balances[j].ChainID })

	responseJSON(w, res, http.StatusOK)
}

// BitcoinUtxos lists unspent outputs of an address, e.g. a derived one
// a PSBT is about to spend from.
func (a *API) BitcoinUtxos(w http.ResponseWriter, r *http.Request) {
	if a.BitcoinRPC == nil {
		responseError(w, "", "bitcoin backend is disabled", http.StatusNotFound)
		return
	}
	address := chi.URLParam(r, "address")

	utxos, err := a.BitcoinRPC.GetAddressUtxos(r.Context(), address)
	if err != nil {
		a.Logger.Sugar().Warnw("Error getting utxos", "address", address, "error", err)
		responseError(w, "address", "cannot list utxos", http.StatusBadGateway)
		return
	}
	responseJSON(w, &APIUtxoResponse{Status: "ok", Utxos: utxos}, http.StatusOK)
}
