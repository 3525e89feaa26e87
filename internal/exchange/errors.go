package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

// 公开行情校验的错误分类。ErrUnknownPair 需要修正配置，ErrMaintenance 不重试。
var (
	ErrMaintenance = errors.New("exchange: 交易所维护中")
	ErrUnknownPair = errors.New("exchange: 未知交易对")
)

func unknownPair(pair string) error {
	return fmt.Errorf("%w: %s", ErrUnknownPair, pair)
}

// IsUnknownPair 判断校验失败是否因为交易对不存在。
func IsUnknownPair(err error) bool {
	return errors.Is(err, ErrUnknownPair)
}

// IsMaintenance 判断交易所是否处于维护状态。
func IsMaintenance(err error) bool {
	return errors.Is(err, ErrMaintenance)
}

// IsRetryable 判断公开行情调用失败后是否值得重试：网络、超时、限流与空响应可重试。
func IsRetryable(err error) bool {
	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return true
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// classifyError 归一化 ccxt 错误，返回归类后的错误与是否重试。
func classifyError(err error) (error, bool) {
	if err == nil {
		return nil, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err, false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) && ccxtErr.Type == ccxt.OnMaintenanceErrType {
		message := strings.TrimSpace(ccxtErr.Message)
		if message == "" {
			message = "exchange under maintenance"
		}
		return fmt.Errorf("%w: %s", ErrMaintenance, message), false
	}
	return err, IsRetryable(err)
}
