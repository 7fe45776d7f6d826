package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType identifies the in-game effect a threshold event triggers.
type EventType string

const (
	// EventMegaGreenCandle is the fixed-cost score-multiplier event fired
	// each time the fee aggregate crosses the USD threshold.
	EventMegaGreenCandle EventType = "MEGA_GREEN_CANDLE"
)

// EventParams is the structured payload attached to a game event.
type EventParams struct {
	Multiplier      int    `json:"multiplier"`
	DurationSeconds int    `json:"duration_seconds"`
	TriggeredBy     string `json:"triggered_by"`
	ThresholdUSD    string `json:"threshold"`
}

// GameEvent is one entry in the append-only log of triggered in-game
// effects. USDConsumed records the fixed amount deducted from the aggregate
// when the event fired, making the log auditable against deposits.
type GameEvent struct {
	ID          int64           `json:"id"`
	Type        EventType       `json:"type"`
	Params      EventParams     `json:"params"`
	USDConsumed decimal.Decimal `json:"usd_consumed"`
	TriggeredAt time.Time       `json:"triggered_at"`
}
