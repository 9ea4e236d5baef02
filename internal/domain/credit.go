package domain

import "time"

// ─── Wallet Ledger ──────────────────────────────────────────────────────────
// Coin and point movements are journaled per user. The running balance lives
// in RewardsState; each entry records the balance after it was applied.

// Currency names a wallet balance.
type Currency string

const (
	CurrencyCoins  Currency = "coins"
	CurrencyPoints Currency = "points"
)

// TransactionType represents the business reason for a wallet movement.
type TransactionType string

const (
	TxEarn  TransactionType = "EARN"
	TxSpend TransactionType = "SPEND"
)

// LedgerEntry is a single wallet movement.
type LedgerEntry struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Type      TransactionType `json:"type"`
	Currency  Currency        `json:"currency"`
	Amount    int64           `json:"amount"`
	Reason    string          `json:"reason,omitempty"`
	Balance   int64           `json:"balance"`
}

// MaxWalletEntries bounds the retained ledger tail.
const MaxWalletEntries = 50

// Wallet holds the newest-last ledger tail.
type Wallet struct {
	Transactions []LedgerEntry `json:"transactions"`
}

// Append records e, evicting the oldest entries beyond MaxWalletEntries.
func (w *Wallet) Append(e LedgerEntry) {
	w.Transactions = append(w.Transactions, e)
	if n := len(w.Transactions); n > MaxWalletEntries {
		w.Transactions = append([]LedgerEntry(nil), w.Transactions[n-MaxWalletEntries:]...)
	}
}
