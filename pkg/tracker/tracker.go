// Package tracker answers read-only Bitcoin address queries over a
// failover server pool. It never touches keys and never constructs or
// broadcasts transactions.
package tracker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"btctrack/pkg/electrum"
	"btctrack/pkg/log"
	"btctrack/pkg/models"
)

// Querier runs one opaque request against the server pool. *pool.Pool
// satisfies it; tests substitute fakes.
type Querier interface {
	RunQuery(ctx context.Context, method string, params any) (json.RawMessage, error)
}

// Tracker resolves addresses to scripthashes and queries balances,
// histories and unspent outputs through a Querier.
type Tracker struct {
	pool   Querier
	params *chaincfg.Params
}

// New creates a mainnet tracker over the given pool.
func New(pool Querier) *Tracker {
	return &Tracker{pool: pool, params: &chaincfg.MainNetParams}
}

// ValidateAddress decodes and classifies an address string without any
// network round trip.
func (t *Tracker) ValidateAddress(address string) models.AddressValidation {
	addr, err := btcutil.DecodeAddress(address, t.params)
	if err != nil {
		return models.AddressValidation{Address: address, Reason: err.Error()}
	}
	if !addr.IsForNet(t.params) {
		return models.AddressValidation{Address: address, Reason: "address is not for mainnet"}
	}
	return models.AddressValidation{Address: address, Valid: true, Type: addressType(addr)}
}

func addressType(addr btcutil.Address) string {
	switch addr.(type) {
	case *btcutil.AddressPubKeyHash:
		return "p2pkh"
	case *btcutil.AddressScriptHash:
		return "p2sh"
	case *btcutil.AddressWitnessPubKeyHash:
		return "p2wpkh"
	case *btcutil.AddressWitnessScriptHash:
		return "p2wsh"
	case *btcutil.AddressTaproot:
		return "p2tr"
	case *btcutil.AddressPubKey:
		return "p2pk"
	default:
		return "unknown"
	}
}

// ScriptHash returns the Electrum scripthash for an address: the
// sha256 of its output script, byte-reversed, hex-encoded.
func (t *Tracker) ScriptHash(address string) (string, error) {
	addr, err := btcutil.DecodeAddress(address, t.params)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidAddress, address)
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return "", fmt.Errorf("output script for %s: %w", address, err)
	}

	digest := sha256.Sum256(script)
	for i, j := 0, len(digest)-1; i < j; i, j = i+1, j-1 {
		digest[i], digest[j] = digest[j], digest[i]
	}
	return hex.EncodeToString(digest[:]), nil
}

// GetBalance returns the confirmed and unconfirmed balance for one
// address, with a best-effort UTXO count.
func (t *Tracker) GetBalance(ctx context.Context, address string) (*models.AddressBalance, error) {
	validation := t.ValidateAddress(address)
	if !validation.Valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, validation.Reason)
	}

	hash, err := t.ScriptHash(address)
	if err != nil {
		return nil, err
	}

	raw, err := t.pool.RunQuery(ctx, electrum.MethodGetBalance, []any{hash})
	if err != nil {
		return nil, err
	}
	var bal electrum.BalanceResult
	if err := json.Unmarshal(raw, &bal); err != nil {
		return nil, fmt.Errorf("decode balance for %s: %w", address, err)
	}

	balance := &models.AddressBalance{
		Address:     address,
		AddressType: validation.Type,
		Confirmed:   bal.Confirmed,
		Unconfirmed: bal.Unconfirmed,
		Total:       bal.Confirmed + bal.Unconfirmed,
	}
	balance.TotalBTC = FormatBTC(balance.Total)

	// The UTXO count is informational; a failure here does not void
	// the balance.
	if unspent, err := t.ListUnspent(ctx, address); err == nil {
		balance.UTXOCount = len(unspent)
	} else {
		log.Debug().Str("address", address).Err(err).Msg("UTXO count unavailable")
	}
	return balance, nil
}

// GetBalances fetches balances for several addresses, skipping
// individual failures the way the continuous monitor does.
func (t *Tracker) GetBalances(ctx context.Context, addresses []string) []models.AddressBalance {
	balances := make([]models.AddressBalance, 0, len(addresses))
	for _, address := range addresses {
		balance, err := t.GetBalance(ctx, address)
		if err != nil {
			log.Warn().Str("address", address).Err(err).Msg("Balance lookup failed")
			continue
		}
		balances = append(balances, *balance)
	}
	return balances
}

// GetHistory returns the transaction history for one address, oldest
// first as reported by the server.
func (t *Tracker) GetHistory(ctx context.Context, address string) (*models.AddressHistory, error) {
	hash, err := t.ScriptHash(address)
	if err != nil {
		return nil, err
	}

	raw, err := t.pool.RunQuery(ctx, electrum.MethodGetHistory, []any{hash})
	if err != nil {
		return nil, err
	}
	var items []electrum.HistoryItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode history for %s: %w", address, err)
	}

	history := &models.AddressHistory{Address: address, Entries: make([]models.HistoryEntry, len(items))}
	for i, item := range items {
		history.Entries[i] = models.HistoryEntry{TxHash: item.TxHash, Height: item.Height, Fee: item.Fee}
	}
	return history, nil
}

// ListUnspent returns the unspent outputs for one address.
func (t *Tracker) ListUnspent(ctx context.Context, address string) ([]electrum.UnspentItem, error) {
	hash, err := t.ScriptHash(address)
	if err != nil {
		return nil, err
	}

	raw, err := t.pool.RunQuery(ctx, electrum.MethodListUnspent, []any{hash})
	if err != nil {
		return nil, err
	}
	var items []electrum.UnspentItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode unspent for %s: %w", address, err)
	}
	return items, nil
}

// Tip returns the chain tip as reported by the first healthy server.
func (t *Tracker) Tip(ctx context.Context) (*models.ChainTip, error) {
	raw, err := t.pool.RunQuery(ctx, electrum.MethodHeadersSubscribe, nil)
	if err != nil {
		return nil, err
	}
	var header electrum.HeaderResult
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, fmt.Errorf("decode chain tip: %w", err)
	}
	return &models.ChainTip{Height: header.Height, Header: header.Hex}, nil
}

const satoshisPerBTC = 100_000_000

// FormatBTC renders satoshis as a BTC amount with eight decimals.
func FormatBTC(sats int64) string {
	sign := ""
	if sats < 0 {
		sign = "-"
		sats = -sats
	}
	return fmt.Sprintf("%s%d.%08d", sign, sats/satoshisPerBTC, sats%satoshisPerBTC)
}
