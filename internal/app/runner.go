package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kraken-dca/internal/config"
	"kraken-dca/internal/execution"
	"kraken-dca/internal/kraken"
	"kraken-dca/internal/monitor"
	"kraken-dca/internal/notify"
	"kraken-dca/internal/risk"
)

// BalanceReader 查询单一资产的可用余额。
type BalanceReader interface {
	Balance(ctx context.Context, asset string) (decimal.Decimal, error)
}

// Runner 执行单个策略的一次定投：查余额、校验、下单、通知。
type Runner struct {
	strategy *config.Strategy
	balances BalanceReader
	trader   execution.Trader
	notifier notify.Notifier
	monitor  *monitor.Service
	logger   *zap.Logger

	now      func() time.Time
	newRunID func() string
}

// NewRunner 创建策略执行器，monitor 可为空。
func NewRunner(
	strategy *config.Strategy,
	balances BalanceReader,
	trader execution.Trader,
	notifier notify.Notifier,
	recorder *monitor.Service,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		strategy: strategy,
		balances: balances,
		trader:   trader,
		notifier: notifier,
		monitor:  recorder,
		logger:   logger.With(zap.String("strategy", strategy.Name)),
		now:      time.Now,
		newRunID: uuid.NewString,
	}
}

// Strategy 返回策略配置。
func (r *Runner) Strategy() *config.Strategy {
	return r.strategy
}

// RunOnce 执行一次定投并恰好发送一条通知。任何错误或 panic 都转为 failed 结果，不向上传播。
func (r *Runner) RunOnce(ctx context.Context) (outcome execution.Outcome) {
	dca := r.strategy.DCA
	outcome = execution.Outcome{
		Strategy:  r.strategy.Name,
		RunID:     r.newRunID(),
		Pair:      dca.Pair,
		Currency:  dca.Currency,
		Amount:    decimal.NewFromFloat(dca.Amount),
		Threshold: decimal.NewFromFloat(dca.LowBalanceThreshold),
		StartedAt: r.now(),
	}
	logger := r.logger.With(zap.String("run_id", outcome.RunID))

	defer func() {
		if p := recover(); p != nil {
			logger.Error("定投执行发生 panic", zap.Any("panic", p), zap.Stack("stack"))
			outcome = failOutcome(outcome, fmt.Errorf("panic: %v", p))
		}
		outcome.FinishedAt = r.now()
		r.finish(ctx, logger, outcome)
	}()

	return r.run(ctx, logger, outcome)
}

func (r *Runner) run(ctx context.Context, logger *zap.Logger, outcome execution.Outcome) execution.Outcome {
	logger.Info("开始检查余额", zap.String("currency", outcome.Currency))
	balance, err := r.balances.Balance(ctx, outcome.Currency)
	if err != nil {
		logger.Error("余额查询失败", zap.Error(err))
		return failOutcome(outcome, fmt.Errorf("查询 %s 余额失败: %w", outcome.Currency, err))
	}
	outcome.Balance = balance
	logger.Info("余额已获取",
		zap.String("currency", outcome.Currency),
		zap.String("balance", balance.String()),
	)

	decision := risk.Decide(balance, outcome.Amount, outcome.Threshold)
	if r.monitor != nil {
		r.monitor.RecordBalanceCheck(ctx, outcome.Strategy, outcome.RunID, decision)
	}
	if !decision.Proceed() {
		outcome.Kind = execution.OutcomeSkipped
		outcome.Reasons = decision.Reasons
		logger.Warn("余额不足，跳过本次下单",
			zap.String("balance", balance.String()),
			zap.String("threshold", outcome.Threshold.String()),
			zap.String("amount", outcome.Amount.String()),
			zap.Any("reasons", decision.Reasons),
		)
		return outcome
	}

	order := kraken.MarketBuy{
		Pair:          outcome.Pair,
		Amount:        outcome.Amount,
		QuoteCurrency: outcome.Currency,
		UserRef:       r.strategy.DCA.UserRef,
	}
	logger.Info("提交市价买单",
		zap.String("pair", order.Pair),
		zap.String("amount", order.Amount.String()),
		zap.String("currency", order.QuoteCurrency),
	)

	result, err := r.trader.Execute(ctx, order)
	if err != nil {
		return failOutcome(outcome, err)
	}

	outcome.Handle = result.Handle
	outcome.Status = result.Status
	outcome.Polls = result.Polls
	if result.LastPollErr != nil {
		outcome.PollError = result.LastPollErr.Error()
	}
	if result.Confirmed {
		outcome.Kind = execution.OutcomeFilled
	} else {
		outcome.Kind = execution.OutcomeUnconfirmed
	}
	return outcome
}

// finish 发送通知并记录结果。通知失败或 panic 只记录日志。
func (r *Runner) finish(ctx context.Context, logger *zap.Logger, outcome execution.Outcome) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("通知阶段发生 panic",
				zap.String("outcome", string(outcome.Kind)),
				zap.Any("panic", p),
				zap.Stack("stack"),
			)
		}
	}()

	if r.monitor != nil {
		r.monitor.RecordOutcome(ctx, outcome)
		if outcome.Kind == execution.OutcomeFailed {
			r.monitor.RecordError(ctx, outcome.Strategy, "定投执行失败", outcome.Err, map[string]interface{}{
				"run_id": outcome.RunID,
				"pair":   outcome.Pair,
			})
		}
	}

	severity, msg := buildMessage(outcome)
	notifyCtx := context.WithoutCancel(ctx)
	if err := r.notifier.Notify(notifyCtx, severity, msg); err != nil {
		logger.Error("通知发送失败",
			zap.String("outcome", string(outcome.Kind)),
			zap.Error(err),
		)
		return
	}
	logger.Info("本次定投结束",
		zap.String("outcome", string(outcome.Kind)),
		zap.String("severity", severity.String()),
		zap.Duration("elapsed", outcome.FinishedAt.Sub(outcome.StartedAt)),
	)
}

func failOutcome(outcome execution.Outcome, err error) execution.Outcome {
	outcome.Kind = execution.OutcomeFailed
	outcome.Err = err
	outcome.ErrorText = err.Error()
	return outcome
}
