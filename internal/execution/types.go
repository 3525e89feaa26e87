package execution

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"kraken-dca/internal/kraken"
	"kraken-dca/internal/risk"
)

// ErrConfirmTimeout 表示在轮询时限内未观察到成交，订单大概率已成交，只是确认迟到。
var ErrConfirmTimeout = errors.New("execution: 等待成交确认超时")

// State 为下单状态机的状态。
type State string

const (
	StatePlaced   State = "placed"
	StatePolling  State = "polling"
	StateClosed   State = "closed"
	StateTimedOut State = "timed_out"
)

// Options 控制成交确认轮询。
type Options struct {
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// DefaultOptions 返回默认轮询参数：间隔 1.5 秒，总时限 30 秒。
func DefaultOptions() Options {
	return Options{
		PollInterval: 1500 * time.Millisecond,
		PollTimeout:  30 * time.Second,
	}
}

func (o Options) normalize() Options {
	def := DefaultOptions()
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = def.PollTimeout
	}
	return o
}

// Result 为一次下单执行的摘要。
type Result struct {
	Order     kraken.MarketBuy
	Handle    kraken.OrderHandle
	Status    kraken.OrderStatus
	State     State
	Confirmed bool
	Polls     int
	PlacedAt  time.Time
	Elapsed   time.Duration
	// LastPollErr 为最后一次查询失败的原因，仅用于告知。
	LastPollErr error
}

// OutcomeKind 为一次调度运行的最终结果类型。
type OutcomeKind string

const (
	OutcomeSkipped     OutcomeKind = "skipped"
	OutcomeFilled      OutcomeKind = "filled"
	OutcomeUnconfirmed OutcomeKind = "unconfirmed"
	OutcomeFailed      OutcomeKind = "failed"
)

// Outcome 为每次触发恰好产生一次的运行结果，只交给通知与监控使用。
type Outcome struct {
	Kind       OutcomeKind        `json:"kind"`
	Strategy   string             `json:"strategy"`
	RunID      string             `json:"run_id"`
	Pair       string             `json:"pair"`
	Currency   string             `json:"currency"`
	Balance    decimal.Decimal    `json:"balance"`
	Amount     decimal.Decimal    `json:"amount"`
	Threshold  decimal.Decimal    `json:"threshold"`
	Reasons    []risk.Reason      `json:"reasons,omitempty"`
	Handle     kraken.OrderHandle `json:"handle"`
	Status     kraken.OrderStatus `json:"status"`
	Polls      int                `json:"polls,omitempty"`
	PollError  string             `json:"poll_error,omitempty"`
	Err        error              `json:"-"`
	ErrorText  string             `json:"error,omitempty"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
}
