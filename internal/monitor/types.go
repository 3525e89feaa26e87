package monitor

import (
	"time"

	"kraken-dca/internal/execution"
	"kraken-dca/internal/risk"
)

// EventType 表示监控事件类型。
type EventType string

const (
	EventBalanceCheck EventType = "balance_check"
	EventOutcome      EventType = "outcome"
	EventError        EventType = "error"
)

// Event 封装通用监控事件。
type Event struct {
	Type      EventType   `json:"type"`
	Strategy  string      `json:"strategy"`
	RunID     string      `json:"run_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// BalanceCheckPayload 记录余额校验。
type BalanceCheckPayload struct {
	Decision risk.Decision `json:"decision"`
}

// OutcomePayload 记录一次运行的最终结果。
type OutcomePayload struct {
	Outcome execution.Outcome `json:"outcome"`
}

// ErrorPayload 记录异常信息。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// StrategyStatus 为单个策略的最近状态。
type StrategyStatus struct {
	Strategy    string            `json:"strategy"`
	Runs        int               `json:"runs"`
	LastOutcome execution.Outcome `json:"last_outcome"`
	NextRun     *time.Time        `json:"next_run,omitempty"`
}
