package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"kraken-dca/internal/config"
)

const defaultBaseURL = "https://ntfy.sh"

// Notifier 为推送抽象，便于在运行流程中替换。
type Notifier interface {
	Notify(ctx context.Context, severity Severity, msg Message) error
}

// Client 向 ntfy 主题推送纯文本消息。投递至多一次，失败只上报不重试。
type Client struct {
	cfg    config.NotifyConfig
	http   *http.Client
	logger *zap.Logger
}

var _ Notifier = (*Client)(nil)

// NewClient 创建 ntfy 客户端。
func NewClient(cfg config.NotifyConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.URL == "" {
		cfg.URL = defaultBaseURL
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		logger: logger.Named("notify"),
	}
}

// Notify 按级别加上标题前缀与标签后发送。
func (c *Client) Notify(ctx context.Context, severity Severity, msg Message) error {
	return c.Send(ctx, Decorate(severity, msg))
}

// Decorate 根据级别表补全标题前缀、标签与优先级。
func Decorate(severity Severity, msg Message) Message {
	st, ok := severityStyles[severity]
	if !ok {
		st = severityStyles[SeverityInfo]
	}
	msg.Title = st.prefix + " " + msg.Title
	msg.Tags = append(append([]string(nil), msg.Tags...), st.tag)
	if msg.Priority == 0 {
		msg.Priority = st.priority
	}
	return msg
}

// Send 投递消息，非 2xx 返回 *DeliveryError。
func (c *Client) Send(ctx context.Context, msg Message) error {
	endpoint := fmt.Sprintf("%s/%s", c.cfg.URL, c.cfg.Topic)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(msg.Body))
	if err != nil {
		return fmt.Errorf("notify: 构造请求失败: %w", err)
	}

	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Title", msg.Title)
	if len(msg.Tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.Tags, ","))
	}
	if msg.Priority > 0 {
		req.Header.Set("Priority", strconv.Itoa(msg.Priority))
	}
	click := msg.Click
	if click == "" {
		click = c.cfg.Click
	}
	if click != "" {
		req.Header.Set("Click", click)
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("ntfy 推送失败", zap.String("title", msg.Title), zap.Error(err))
		return fmt.Errorf("notify: 推送失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		deliveryErr := &DeliveryError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		c.logger.Error("ntfy 推送失败", zap.String("title", msg.Title), zap.Error(deliveryErr))
		return deliveryErr
	}

	c.logger.Info("通知已发送", zap.String("title", msg.Title), zap.Strings("tags", msg.Tags))
	return nil
}
