package domain

import "time"

const (
	defaultBalance     = 10000
	defaultMarginLevel = 9999
)

// Account is a snapshot of broker account health.
type Account struct {
	Balance     float64   `json:"balance"`
	Equity      float64   `json:"equity"`
	Margin      float64   `json:"margin"`
	MarginLevel float64   `json:"margin_level"`
	Timestamp   time.Time `json:"timestamp"`
}

// DefaultAccount is used before any account information arrived.
func DefaultAccount() Account {
	return Account{
		Balance:     defaultBalance,
		Equity:      defaultBalance,
		MarginLevel: defaultMarginLevel,
	}
}

// EquityPct returns equity as a percentage of balance, 0 when balance is not positive.
func (a Account) EquityPct() float64 {
	if a.Balance <= 0 {
		return 0
	}
	return a.Equity / a.Balance * 100
}
