package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// ExecutionMode describes how an order should be worked.
type ExecutionMode string

const (
	// ExecMaker posts a resting post-only order; rejected if it would cross.
	ExecMaker ExecutionMode = "maker"
	// ExecTaker crosses the spread immediately and pays the taker fee.
	ExecTaker ExecutionMode = "taker"
	// ExecFOK fills completely and immediately or not at all.
	ExecFOK ExecutionMode = "fok"
	// ExecMakerThenTaker posts as maker, then cancels and crosses after the
	// maker timeout.
	ExecMakerThenTaker ExecutionMode = "maker_then_taker"
)

// Valid reports whether m is one of the known modes.
func (m ExecutionMode) Valid() bool {
	switch m {
	case ExecMaker, ExecTaker, ExecFOK, ExecMakerThenTaker:
		return true
	}
	return false
}

// PaysTakerFee reports whether a fill in this mode is charged the taker fee.
func (m ExecutionMode) PaysTakerFee() bool {
	return m == ExecTaker || m == ExecFOK
}

// OrderDecision is what the core hands to the execution client. The core
// never signs or submits transactions itself.
type OrderDecision struct {
	ID           string        `json:"id"`
	PositionID   string        `json:"position_id,omitempty"`
	Asset        string        `json:"asset"`
	ConditionID  string        `json:"condition_id"`
	TokenID      string        `json:"token_id"`
	Side         OrderSide     `json:"side"`
	Mode         ExecutionMode `json:"mode"`
	Price        float64       `json:"price"`
	Size         float64       `json:"size"`
	TakerPrice   float64       `json:"taker_price,omitempty"`
	MakerTimeout time.Duration `json:"maker_timeout"`
	Reason       string        `json:"reason"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Fill reports how an OrderDecision was executed.
type Fill struct {
	DecisionID string        `json:"decision_id"`
	TokenID    string        `json:"token_id"`
	Side       OrderSide     `json:"side"`
	Price      float64       `json:"price"`
	Size       float64       `json:"size"`
	Mode       ExecutionMode `json:"mode"`
	WasMaker   bool          `json:"was_maker"`
	FilledAt   time.Time     `json:"filled_at"`
}
