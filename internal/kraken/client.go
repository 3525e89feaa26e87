package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kraken-dca/internal/config"
)

const (
	userAgent       = "kraken-dca/1.0"
	maxResponseSize = 1 << 20
)

// Client 封装 Kraken 私有接口，每次调用都重新签名。
// 私有调用不做重试。
type Client struct {
	creds  Credentials
	http   *http.Client
	nonces NonceSource
	logger *zap.Logger
}

// Option 调整客户端行为。
type Option func(*Client)

// WithHTTPClient 替换底层 HTTP 客户端。
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithNonceSource 注入 nonce 生成器，默认使用进程级生成器。
func WithNonceSource(n NonceSource) Option {
	return func(c *Client) {
		if n != nil {
			c.nonces = n
		}
	}
}

// NewClient 根据配置创建私有接口客户端。
func NewClient(cfg config.KrakenConfig, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	baseURL := strings.TrimRight(cfg.APIURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		creds: Credentials{
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
			BaseURL:   baseURL,
		},
		http:   &http.Client{Timeout: timeout},
		nonces: ProcessNonce(),
		logger: logger.Named("kraken"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Balances 返回账户全部资产余额。
func (c *Client) Balances(ctx context.Context) (BalanceSnapshot, error) {
	var raw map[string]string
	if err := c.privateRequest(ctx, "Balance", url.Values{}, &raw); err != nil {
		return nil, err
	}

	snapshot := make(BalanceSnapshot, len(raw))
	for asset, value := range raw {
		amount, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("kraken: 解析 %s 余额 %q 失败: %w", asset, value, err)
		}
		snapshot[asset] = amount
	}
	return snapshot, nil
}

// Balance 返回单一资产余额，先查 Z 前缀代码，再查原代码，缺失视为零。
func (c *Client) Balance(ctx context.Context, asset string) (decimal.Decimal, error) {
	snapshot, err := c.Balances(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return snapshot.Lookup(asset), nil
}

// PlaceMarketBuy 提交市价买单，金额按计价货币解释 (oflags=viqc)。
func (c *Client) PlaceMarketBuy(ctx context.Context, order MarketBuy) (OrderHandle, error) {
	if order.Pair == "" {
		return OrderHandle{}, fmt.Errorf("kraken: 交易对不能为空")
	}
	if !order.Amount.IsPositive() {
		return OrderHandle{}, fmt.Errorf("kraken: 下单金额必须为正，当前 %s", order.Amount)
	}

	params := url.Values{}
	params.Set("pair", order.Pair)
	params.Set("type", "buy")
	params.Set("ordertype", "market")
	params.Set("volume", order.Amount.String())
	params.Set("oflags", OrderFlagQuoteVolume)
	if order.UserRef != 0 {
		params.Set("userref", strconv.FormatInt(int64(order.UserRef), 10))
	}

	var result addOrderResult
	if err := c.privateRequest(ctx, "AddOrder", params, &result); err != nil {
		return OrderHandle{}, err
	}

	handle := OrderHandle{
		TxIDs:       result.TxID,
		Description: result.Descr.Order,
	}
	c.logger.Info("市价买单已受理",
		zap.String("pair", order.Pair),
		zap.String("amount", order.Amount.String()),
		zap.String("quote", order.QuoteCurrency),
		zap.Strings("txids", handle.TxIDs),
		zap.String("descr", handle.Description),
	)
	return handle, nil
}

// QueryOrders 查询订单状态，返回 txid 到状态的映射。
func (c *Client) QueryOrders(ctx context.Context, txids []string) (map[string]OrderStatus, error) {
	if len(txids) == 0 {
		return map[string]OrderStatus{}, nil
	}

	params := url.Values{}
	params.Set("txid", strings.Join(txids, ","))

	var raw map[string]orderInfo
	if err := c.privateRequest(ctx, "QueryOrders", params, &raw); err != nil {
		return nil, err
	}

	statuses := make(map[string]OrderStatus, len(raw))
	for id, info := range raw {
		status, err := info.toStatus()
		if err != nil {
			return nil, fmt.Errorf("kraken: 解析订单 %s 失败: %w", id, err)
		}
		statuses[id] = status
	}
	return statuses, nil
}

func (c *Client) privateRequest(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	path := fmt.Sprintf("/%s/private/%s", apiVersion, endpoint)
	nonce := c.nonces.Next()
	params.Set("nonce", strconv.FormatInt(nonce, 10))

	signed, err := signRequest(c.creds, path, nonce, params.Encode())
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.creds.BaseURL+signed.Path, strings.NewReader(signed.Body))
	if err != nil {
		return fmt.Errorf("kraken: 构造 %s 请求失败: %w", endpoint, err)
	}
	req.Header.Set("API-Key", c.creds.APIKey)
	req.Header.Set("API-Sign", signed.Signature)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("kraken: 调用 %s 失败: %w", endpoint, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("kraken: 读取 %s 响应失败: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("Kraken HTTP 错误",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", payload),
		)
		return &HTTPError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(payload)}
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("kraken: 解析 %s 响应失败: %w", endpoint, err)
	}
	if len(env.Error) > 0 {
		c.logger.Error("Kraken 接口错误",
			zap.String("endpoint", endpoint),
			zap.Strings("errors", env.Error),
		)
		return &APIError{Endpoint: endpoint, Messages: env.Error}
	}

	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("kraken: 解析 %s 结果失败: %w", endpoint, err)
		}
	}

	c.logger.Debug("Kraken 接口调用成功",
		zap.String("endpoint", endpoint),
		zap.Int64("nonce", nonce),
		zap.Duration("latency", time.Since(start)),
	)
	return nil
}
