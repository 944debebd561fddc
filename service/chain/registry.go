package chain

import "strings"

// TaxWalletConfig is one program receiving wallet.
type TaxWalletConfig struct {
	Address  string `json:"address"`
	Chain    Chain  `json:"chain"`
	IsActive bool   `json:"isActive"`
}

// Registry is the immutable set of configured tax wallets.
// Deactivating a wallet means building a new Registry; records already
// produced keep whatever flag they were computed with.
type Registry struct {
	entries []TaxWalletConfig
}

// NewRegistry copies entries into a new registry.
func NewRegistry(entries ...TaxWalletConfig) *Registry {
	cp := make([]TaxWalletConfig, 0, len(entries))
	for _, e := range entries {
		e.Address = strings.TrimSpace(e.Address)
		cp = append(cp, e)
	}
	return &Registry{entries: cp}
}

// All returns every configured entry, active or not.
func (r *Registry) All() []TaxWalletConfig {
	out := make([]TaxWalletConfig, len(r.entries))
	copy(out, r.entries)
	return out
}

// Active returns only the entries that take part in aggregation.
func (r *Registry) Active() []TaxWalletConfig {
	out := make([]TaxWalletConfig, 0, len(r.entries))
	for _, e := range r.entries {
		if e.IsActive {
			out = append(out, e)
		}
	}
	return out
}

// ActiveFor returns the first active wallet for c.
func (r *Registry) ActiveFor(c Chain) (TaxWalletConfig, bool) {
	for _, e := range r.entries {
		if e.IsActive && e.Chain == c {
			return e, true
		}
	}
	return TaxWalletConfig{}, false
}

// IsTaxWallet reports whether address is an active tax wallet on c.
func (r *Registry) IsTaxWallet(address string, c Chain) bool {
	for _, e := range r.entries {
		if e.IsActive && e.Chain == c && SameAddress(e.Address, address) {
			return true
		}
	}
	return false
}

// Classify returns a copy of txs with IsTaxWallet recomputed against r.
func (r *Registry) Classify(txs []TransactionRecord) []TransactionRecord {
	out := make([]TransactionRecord, len(txs))
	for i, tx := range txs {
		tx.IsTaxWallet = r.IsTaxWallet(tx.To, tx.Chain)
		out[i] = tx
	}
	return out
}
