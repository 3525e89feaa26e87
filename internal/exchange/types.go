package exchange

import (
	"time"

	"github.com/shopspring/decimal"
)

// Market 为交易对元数据。
type Market struct {
	// Symbol 为统一符号，例如 BTC/USD。
	Symbol string
	// AltName 为 Kraken 私有接口使用的名称，例如 XBTUSD。
	AltName string
	WSName  string
	Base    string
	Quote   string
}

// Quote 为最新成交价快照。
type Quote struct {
	Symbol    string
	Last      decimal.Decimal
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Timestamp time.Time
}

// PairReport 为单个交易对的校验结果。
type PairReport struct {
	Pair   string
	Market Market
	Quote  Quote
	Err    error
}

// OK 表示交易对存在且获取到报价。
func (r PairReport) OK() bool {
	return r.Err == nil
}
