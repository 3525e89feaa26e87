package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"kraken-dca/internal/kraken"
)

type orderClient interface {
	PlaceMarketBuy(ctx context.Context, order kraken.MarketBuy) (kraken.OrderHandle, error)
	QueryOrders(ctx context.Context, txids []string) (map[string]kraken.OrderStatus, error)
}

// Executor 负责下单并在限定时间内轮询成交确认。
type Executor struct {
	client orderClient
	logger *zap.Logger
	opts   Options

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor 创建执行器。
func NewExecutor(client orderClient, opts Options, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		client: client,
		logger: logger,
		opts:   opts.normalize(),
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// Execute 提交市价单并等待成交确认。
// 下单失败直接返回错误且不重试；确认超时不视为错误，返回 Confirmed=false。
// 一旦进入下单流程即与上层取消信号解绑，保证以 closed 或 timed_out 结束。
func (e *Executor) Execute(ctx context.Context, order kraken.MarketBuy) (Result, error) {
	ctx = context.WithoutCancel(ctx)

	result := Result{Order: order}

	handle, err := e.client.PlaceMarketBuy(ctx, order)
	if err != nil {
		e.logger.Error("下单失败，本次不重试",
			zap.String("pair", order.Pair),
			zap.String("amount", order.Amount.String()),
			zap.Error(err),
		)
		return result, fmt.Errorf("execution: 提交市价单失败: %w", err)
	}

	result.Handle = handle
	result.State = StatePlaced
	result.PlacedAt = e.now()
	e.logger.Info("订单已受理，等待成交",
		zap.String("state", string(result.State)),
		zap.Strings("txids", handle.TxIDs),
	)

	poll, waitErr := e.waitUntilClosed(ctx, handle)
	status, polls := poll.status, poll.polls
	result.Status = status
	result.Polls = polls
	result.LastPollErr = poll.lastErr
	result.Elapsed = e.now().Sub(result.PlacedAt)

	if waitErr != nil {
		if !errors.Is(waitErr, ErrConfirmTimeout) {
			return result, waitErr
		}
		result.State = StateTimedOut
		e.logger.Warn("成交确认超时，订单可能已成交",
			zap.String("state", string(result.State)),
			zap.String("txid", handle.Primary()),
			zap.Int("polls", polls),
			zap.Duration("elapsed", result.Elapsed),
			zap.String("last_status", string(status.Status)),
		)
		return result, nil
	}

	result.State = StateClosed
	result.Confirmed = true
	e.logger.Info("订单已成交",
		zap.String("state", string(result.State)),
		zap.String("txid", handle.Primary()),
		zap.Int("polls", polls),
		zap.String("price", status.Price.String()),
		zap.String("volume", status.VolumeExecuted.String()),
		zap.String("cost", status.Cost.String()),
		zap.String("fee", status.Fee.String()),
	)
	return result, nil
}

type pollState struct {
	status  kraken.OrderStatus
	polls   int
	lastErr error
}

func (e *Executor) waitUntilClosed(ctx context.Context, handle kraken.OrderHandle) (pollState, error) {
	state := pollState{status: kraken.OrderStatus{Status: kraken.StatusUnknown}}

	txid := handle.Primary()
	if txid == "" {
		e.logger.Warn("交易所未返回 txid，无法确认成交")
		return state, ErrConfirmTimeout
	}

	start := e.now()
	for e.now().Sub(start) < e.opts.PollTimeout {
		state.polls++
		statuses, err := e.client.QueryOrders(ctx, handle.TxIDs)
		if err != nil {
			// 查询是只读操作，失败后继续轮询直至超时
			state.lastErr = err
			e.logger.Warn("查询订单状态失败",
				zap.String("state", string(StatePolling)),
				zap.String("txid", txid),
				zap.Int("poll", state.polls),
				zap.Error(err),
			)
		} else if status, ok := statuses[txid]; ok {
			state.status = status
			if status.Status == kraken.StatusClosed {
				return state, nil
			}
			e.logger.Debug("订单尚未成交",
				zap.String("state", string(StatePolling)),
				zap.String("txid", txid),
				zap.String("status", string(status.Status)),
				zap.Int("poll", state.polls),
			)
		}

		if err := e.sleep(ctx, e.opts.PollInterval); err != nil {
			return state, err
		}
	}

	return state, fmt.Errorf("%w: txid=%s polls=%d", ErrConfirmTimeout, txid, state.polls)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
