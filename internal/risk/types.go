package risk

import "github.com/shopspring/decimal"

// StatusType 描述余额校验结果状态。
type StatusType string

const (
	StatusProceed StatusType = "proceed"
	StatusSkip    StatusType = "skip"
)

// Reason 描述跳过下单的原因。
type Reason string

const (
	ReasonBelowThreshold   Reason = "below_threshold"
	ReasonInsufficientFund Reason = "insufficient_for_amount"
)

// Decision 为一次余额校验的输出。
type Decision struct {
	Status    StatusType
	Reasons   []Reason
	Balance   decimal.Decimal
	Amount    decimal.Decimal
	Threshold decimal.Decimal
}

// Proceed 判断是否允许下单。
func (d Decision) Proceed() bool {
	return d.Status == StatusProceed
}
