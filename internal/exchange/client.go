package exchange

import (
	"context"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kraken-dca/internal/config"
)

// marketSource 为 ccxt 公开接口的最小子集。
type marketSource interface {
	LoadMarkets(params ...interface{}) (map[string]ccxt.MarketInterface, error)
	FetchTicker(symbol string, options ...ccxt.FetchTickerOptions) (ccxt.Ticker, error)
}

// Client 通过 ccxt 访问 Kraken 公开行情并实现重试机制。不需要凭据。
type Client struct {
	cfg    config.RetryConfig
	logger *zap.Logger
	source marketSource

	marketsMu sync.Mutex
	markets   []Market
}

// NewClient 构造 Kraken 公开行情客户端。
func NewClient(cfg config.MarketConfig, logger *zap.Logger) *Client {
	userConfig := map[string]interface{}{
		"enableRateLimit": true,
	}
	return newClient(cfg.Retry, ccxt.NewKraken(userConfig), logger)
}

func newClient(cfg config.RetryConfig, source marketSource, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		logger: logger.Named("exchange"),
		source: source,
	}
}

// ResolvePair 按统一符号、altname 或 wsname 查找交易对。
func (c *Client) ResolvePair(ctx context.Context, pair string) (Market, error) {
	markets, err := c.ensureMarketsLoaded(ctx)
	if err != nil {
		return Market{}, err
	}

	want := normalizePair(pair)
	for _, m := range markets {
		for _, candidate := range []string{m.Symbol, m.AltName, m.WSName} {
			if candidate != "" && normalizePair(candidate) == want {
				return m, nil
			}
		}
	}
	return Market{}, unknownPair(pair)
}

// FetchQuote 获取统一符号的最新报价。
func (c *Client) FetchQuote(ctx context.Context, symbol string) (Quote, error) {
	var raw ccxt.Ticker
	err := c.callWithRetry(ctx, "fetch_ticker", func() error {
		ticker, err := c.source.FetchTicker(symbol)
		if err != nil {
			return err
		}
		raw = ticker
		return nil
	})
	if err != nil {
		return Quote{}, err
	}
	return convertTicker(symbol, raw), nil
}

func (c *Client) ensureMarketsLoaded(ctx context.Context) ([]Market, error) {
	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	if c.markets != nil {
		return c.markets, nil
	}

	var raw map[string]ccxt.MarketInterface
	loadErr := c.callWithRetry(ctx, "load_markets", func() error {
		result, err := c.source.LoadMarkets()
		if err != nil {
			return err
		}
		raw = result
		return nil
	})
	if loadErr != nil {
		return nil, loadErr
	}

	markets := make([]Market, 0, len(raw))
	for symbol, m := range raw {
		markets = append(markets, convertMarket(symbol, m))
	}
	c.markets = markets
	c.logger.Info("已完成市场元数据加载", zap.Int("markets", len(markets)))
	return markets, nil
}

func (c *Client) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	attempt := 0
	maxAttempts := c.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	delay := c.cfg.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := c.cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		start := time.Now()
		err := fn()
		duration := time.Since(start)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("交易所调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", duration),
				)
			}
			return nil
		}

		normalizedErr, retry := classifyError(err)

		if IsMaintenance(normalizedErr) {
			c.logger.Warn("交易所维护中",
				zap.String("operation", operation),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		if !retry || attempt >= maxAttempts {
			c.logger.Error("交易所调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", duration),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		wait := delay
		if wait > maxDelay {
			wait = maxDelay
		}

		c.logger.Warn("交易所调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(normalizedErr),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func convertMarket(symbol string, m ccxt.MarketInterface) Market {
	market := Market{Symbol: symbol}
	if m.Info != nil {
		market.AltName = stringField(m.Info, "altname")
		market.WSName = stringField(m.Info, "wsname")
	}
	if base, quote, ok := strings.Cut(symbol, "/"); ok {
		market.Base = base
		market.Quote = strings.SplitN(quote, ":", 2)[0]
	}
	return market
}

func convertTicker(symbol string, t ccxt.Ticker) Quote {
	quote := Quote{
		Symbol: symbol,
		Last:   floatPtr(t.Last),
		Bid:    floatPtr(t.Bid),
		Ask:    floatPtr(t.Ask),
	}
	if t.Timestamp != nil {
		quote.Timestamp = time.UnixMilli(*t.Timestamp).UTC()
	} else {
		quote.Timestamp = time.Now().UTC()
	}
	return quote
}

func floatPtr(v *float64) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*v)
}

func stringField(info map[string]interface{}, key string) string {
	if v, ok := info[key].(string); ok {
		return v
	}
	return ""
}

// normalizePair 去掉分隔符并把 XBT 统一为 BTC，便于比较。
func normalizePair(pair string) string {
	p := strings.ToUpper(strings.TrimSpace(pair))
	p = strings.NewReplacer("/", "", "-", "", "_", "").Replace(p)
	return strings.ReplaceAll(p, "XBT", "BTC")
}
