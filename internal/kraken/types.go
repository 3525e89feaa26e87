package kraken

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DefaultBaseURL 为 Kraken REST 入口。
	DefaultBaseURL = "https://api.kraken.com"
	// FiatPrefix 为部分法币资产代码的前缀，如 ZUSD。
	FiatPrefix = "Z"
	// OrderFlagQuoteVolume 让 volume 按计价货币解释。
	OrderFlagQuoteVolume = "viqc"

	apiVersion = "0"
)

// Credentials 为私有接口凭据，进程生命周期内不可变。
type Credentials struct {
	APIKey    string
	APISecret string
	BaseURL   string
}

// BalanceSnapshot 为资产代码到余额的映射。
type BalanceSnapshot map[string]decimal.Decimal

// Lookup 先查带前缀的代码，再查原代码，均不存在时返回零。
func (b BalanceSnapshot) Lookup(asset string) decimal.Decimal {
	if v, ok := b[FiatPrefix+asset]; ok {
		return v
	}
	if v, ok := b[asset]; ok {
		return v
	}
	return decimal.Zero
}

// MarketBuy 为一笔按计价货币金额下单的市价买单意图。
type MarketBuy struct {
	Pair          string
	Amount        decimal.Decimal
	QuoteCurrency string
	// UserRef 为可选的关联标签，0 表示不携带，不具备去重能力。
	UserRef int32
}

// OrderHandle 为交易所受理后的订单标识。
type OrderHandle struct {
	TxIDs       []string
	Description string
}

// Primary 返回首个 txid。
func (h OrderHandle) Primary() string {
	if len(h.TxIDs) == 0 {
		return ""
	}
	return h.TxIDs[0]
}

// Status 为订单状态。
type Status string

const (
	StatusPending  Status = "pending"
	StatusOpen     Status = "open"
	StatusClosed   Status = "closed"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
	StatusUnknown  Status = "unknown"
)

// OrderStatus 为某一时刻观察到的订单快照。
type OrderStatus struct {
	Status         Status
	Description    string
	VolumeExecuted decimal.Decimal
	Cost           decimal.Decimal
	Fee            decimal.Decimal
	Price          decimal.Decimal
	OpenedAt       time.Time
	ClosedAt       time.Time
}

type envelope struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

type addOrderResult struct {
	Descr struct {
		Order string `json:"order"`
	} `json:"descr"`
	TxID []string `json:"txid"`
}

type orderInfo struct {
	Status  string  `json:"status"`
	VolExec string  `json:"vol_exec"`
	Cost    string  `json:"cost"`
	Fee     string  `json:"fee"`
	Price   string  `json:"price"`
	OpenTM  float64 `json:"opentm"`
	CloseTM float64 `json:"closetm"`
	Descr   struct {
		Order string `json:"order"`
	} `json:"descr"`
}

func (o orderInfo) toStatus() (OrderStatus, error) {
	status := OrderStatus{
		Status:      normalizeStatus(o.Status),
		Description: o.Descr.Order,
		OpenedAt:    unixSeconds(o.OpenTM),
		ClosedAt:    unixSeconds(o.CloseTM),
	}

	var err error
	if status.VolumeExecuted, err = parseAmount(o.VolExec); err != nil {
		return OrderStatus{}, fmt.Errorf("vol_exec: %w", err)
	}
	if status.Cost, err = parseAmount(o.Cost); err != nil {
		return OrderStatus{}, fmt.Errorf("cost: %w", err)
	}
	if status.Fee, err = parseAmount(o.Fee); err != nil {
		return OrderStatus{}, fmt.Errorf("fee: %w", err)
	}
	if status.Price, err = parseAmount(o.Price); err != nil {
		return OrderStatus{}, fmt.Errorf("price: %w", err)
	}
	return status, nil
}

func normalizeStatus(raw string) Status {
	switch s := Status(raw); s {
	case StatusPending, StatusOpen, StatusClosed, StatusCanceled, StatusExpired:
		return s
	default:
		return StatusUnknown
	}
}

func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func unixSeconds(ts float64) time.Time {
	if ts <= 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}
