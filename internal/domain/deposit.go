// Package domain defines the core entities of the creator-fee pipeline
// (deposits, the running fee aggregate, game events, players, scores, and
// payouts) together with the store and cache interfaces implemented by the
// postgres and redis packages.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LamportsPerSol is the number of lamports in one SOL.
const LamportsPerSol int64 = 1_000_000_000

// FeeDeposit is a single incoming transfer to the tracked creator wallet,
// recorded exactly once per chain transaction signature. Rows are immutable;
// the unique tx_sig constraint is the sole idempotence mechanism for
// ingestion.
type FeeDeposit struct {
	ID             int64           `json:"id"`
	TxSig          string          `json:"tx_sig"`
	AmountLamports int64           `json:"amount_lamports"`
	AmountSol      decimal.Decimal `json:"amount_sol"`
	AmountUSD      decimal.Decimal `json:"amount_usd"`
	ObservedAt     time.Time       `json:"observed_at"`
}

// FeeAggregate is the running total of unclaimed USD-equivalent fee revenue.
// A single row per deployment; incremented by the ingestion watcher and
// decremented by the threshold engine and the payout scheduler. The value
// never goes negative.
type FeeAggregate struct {
	ID            int64
	CumulativeUSD decimal.Decimal
}

// LamportsToSol converts a lamport amount to SOL with full 9-decimal
// precision.
func LamportsToSol(lamports int64) decimal.Decimal {
	return decimal.NewFromInt(lamports).Div(decimal.NewFromInt(LamportsPerSol))
}

// SolToLamports converts a SOL amount to whole lamports, truncating any
// sub-lamport fraction.
func SolToLamports(sol decimal.Decimal) int64 {
	return sol.Mul(decimal.NewFromInt(LamportsPerSol)).IntPart()
}
