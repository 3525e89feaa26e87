package app

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"kraken-dca/internal/execution"
	"kraken-dca/internal/notify"
)

var defaultTags = []string{"kraken", "dca"}

// buildMessage 将运行结果转换为通知级别与正文。
func buildMessage(outcome execution.Outcome) (notify.Severity, notify.Message) {
	msg := notify.Message{Tags: defaultTags}

	switch outcome.Kind {
	case execution.OutcomeSkipped:
		msg.Title = fmt.Sprintf("Kraken DCA: Low %s balance", outcome.Currency)
		msg.Body = lines(
			strategyLine(outcome),
			bullet("Balance", money(outcome.Balance, outcome.Currency)),
			bullet("Required", money(outcome.Amount, outcome.Currency)),
			bullet("Threshold", money(outcome.Threshold, outcome.Currency)),
			"",
			"No order was placed.",
		)
		return notify.SeverityWarning, msg

	case execution.OutcomeFilled:
		msg.Title = "Kraken DCA: Purchase complete"
		msg.Body = orderSummary(outcome)
		return notify.SeveritySuccess, msg

	case execution.OutcomeUnconfirmed:
		msg.Title = "Kraken DCA: Purchase unconfirmed"
		body := []string{orderSummary(outcome)}
		if outcome.PollError != "" {
			body = append(body, bullet("Last query error", outcome.PollError))
		}
		body = append(body, "", "The order was accepted but no fill was observed in time. Check it on Kraken before the next run.")
		msg.Body = lines(body...)
		return notify.SeverityInfo, msg

	default:
		msg.Title = "Kraken DCA: Error"
		errText := outcome.ErrorText
		if errText == "" {
			errText = "unknown error"
		}
		msg.Body = lines(
			strategyLine(outcome),
			bullet("Pair", outcome.Pair),
			bullet("Run", outcome.RunID),
			"",
			errText,
		)
		return notify.SeverityError, msg
	}
}

func orderSummary(outcome execution.Outcome) string {
	status := outcome.Status
	parts := []string{
		strategyLine(outcome),
		bullet("Pair", outcome.Pair),
		bullet("Spent (target)", money(outcome.Amount, outcome.Currency)+" (via oflags=viqc)"),
		bullet("Status", string(status.Status)),
		bullet("txid", strings.Join(outcome.Handle.TxIDs, ", ")),
	}
	if outcome.Handle.Description != "" {
		parts = append(parts, bullet("Order", outcome.Handle.Description))
	}
	if status.Price.IsPositive() {
		parts = append(parts, bullet("Avg price", money(status.Price, outcome.Currency)))
	}
	if status.VolumeExecuted.IsPositive() {
		parts = append(parts, bullet("Filled", status.VolumeExecuted.String()))
	}
	if status.Cost.IsPositive() {
		parts = append(parts, bullet("Cost", money(status.Cost, outcome.Currency)))
	}
	if status.Fee.IsPositive() {
		parts = append(parts, bullet("Fee", money(status.Fee, outcome.Currency)))
	}
	return lines(parts...)
}

func strategyLine(outcome execution.Outcome) string {
	return bullet("Strategy", outcome.Strategy)
}

func bullet(label, value string) string {
	return fmt.Sprintf("• %s: %s", label, value)
}

func money(v decimal.Decimal, currency string) string {
	return v.StringFixed(2) + " " + currency
}

func lines(parts ...string) string {
	return strings.Join(parts, "\n")
}
