package execution

import (
	"context"

	"kraken-dca/internal/kraken"
)

// Trader 抽象执行器接口，方便替换为测试桩。
type Trader interface {
	Execute(ctx context.Context, order kraken.MarketBuy) (Result, error)
}

var _ Trader = (*Executor)(nil)
