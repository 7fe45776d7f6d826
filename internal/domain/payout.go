package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PayoutStatus tracks the payout settlement lifecycle. SENT is terminal: a
// payout never transitions out of SENT.
type PayoutStatus string

const (
	PayoutStatusPending PayoutStatus = "PENDING"
	PayoutStatusSent    PayoutStatus = "SENT"
	PayoutStatusFailed  PayoutStatus = "FAILED"
)

// Payout is a reward obligation created by the scheduler and executed by the
// settlement worker as an on-chain transfer. AmountSol is locked in at
// scheduler-cycle time; settlement sends exactly this amount.
type Payout struct {
	ID           string          `json:"id"`
	PlayerID     int64           `json:"player_id"`
	AmountUSD    decimal.Decimal `json:"amount_usd"`
	AmountSol    decimal.Decimal `json:"amount_sol"`
	Status       PayoutStatus    `json:"status"`
	TxSig        string          `json:"tx_sig,omitempty"`
	AttemptCount int             `json:"attempt_count"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// PayoutDetail is a payout joined with the receiving player's wallet, as
// needed by the settlement worker and the public payout listing.
type PayoutDetail struct {
	Payout
	WalletAddress string `json:"wallet_address"`
}
