package risk

import "github.com/shopspring/decimal"

// Decide 在余额低于阈值或不足以支付本次金额时跳过，两项独立判断；相等视为通过。
func Decide(balance, amount, threshold decimal.Decimal) Decision {
	decision := Decision{
		Status:    StatusProceed,
		Balance:   balance,
		Amount:    amount,
		Threshold: threshold,
	}

	if balance.LessThan(threshold) {
		decision.Reasons = append(decision.Reasons, ReasonBelowThreshold)
	}
	if balance.LessThan(amount) {
		decision.Reasons = append(decision.Reasons, ReasonInsufficientFund)
	}
	if len(decision.Reasons) > 0 {
		decision.Status = StatusSkip
	}

	return decision
}
