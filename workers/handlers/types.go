package handlers

import (
	"sigresponder/BTCRPC"
	"sigresponder/types"
)

type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type APIStateResponse struct {
	Status      string         `json:"status"`
	Pending     int            `json:"pending"`
	ByNamespace map[string]int `json:"byNamespace"`
	ByOrigin    map[string]int `json:"byOrigin"`
}

type APIPendingResponse struct {
	Status       string                     `json:"status"`
	Transactions []types.PendingTransaction `json:"transactions"`
}

type DeriveRequest struct {
	Predecessor string `json:"predecessor"`
	Path        string `json:"path"`
	ChainID     string `json:"chainId"`
}

type APIDeriveResponse struct {
	Status         string `json:"status"`
	PublicKey      string `json:"publicKey"`
	EVMAddress     string `json:"evmAddress"`
	BitcoinAddress string `json:"bitcoinAddress,omitempty"`
}

type APIBalance struct {
	ChainID int64  `json:"chainId"`
	Balance string `json:"balance,omitempty"`
	Error   string `json:"error,omitempty"`
}

type APIUtxoResponse struct {
	Status string        `json:"status"`
	Utxos  []BTCRPC.UTXO `json:"utxos"`
}

type APIFundingResponse struct {
	Status   string       `json:"status"`
	Address  string       `json:"address"`
	Balances []APIBalance `json:"balances"`
}
