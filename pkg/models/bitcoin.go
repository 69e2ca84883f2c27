package models

// AddressBalance is the balance summary for one Bitcoin address.
// Amounts are in satoshis; TotalBTC is formatted to eight decimal
// places for display.
type AddressBalance struct {
	Address     string `json:"address"`
	AddressType string `json:"address_type"`
	Confirmed   int64  `json:"confirmed_sat"`
	Unconfirmed int64  `json:"unconfirmed_sat"`
	Total       int64  `json:"total_sat"`
	TotalBTC    string `json:"total_btc"`
	UTXOCount   int    `json:"utxo_count"`
}

// HistoryEntry is one confirmed or mempool transaction touching an
// address. Height 0 means unconfirmed, -1 means unconfirmed with
// unconfirmed inputs.
type HistoryEntry struct {
	TxHash string `json:"tx_hash"`
	Height int64  `json:"height"`
	Fee    int64  `json:"fee,omitempty"`
}

// AddressHistory is the full transaction history for one address.
type AddressHistory struct {
	Address string         `json:"address"`
	Entries []HistoryEntry `json:"entries"`
}

// AddressValidation is the outcome of validating an address string.
type AddressValidation struct {
	Address string `json:"address"`
	Valid   bool   `json:"valid"`
	Type    string `json:"address_type,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// ChainTip is the best block header reported by a server.
type ChainTip struct {
	Height int64  `json:"height"`
	Header string `json:"header,omitempty"`
}
