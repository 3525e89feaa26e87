package kraken

import (
	"fmt"
	"strings"
)

// SignatureError 表示 API secret 无法按 base64 解码。
type SignatureError struct {
	Err error
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("kraken: API secret 不是有效的 base64: %v", e.Err)
}

func (e *SignatureError) Unwrap() error {
	return e.Err
}

// HTTPError 表示传输层返回非 2xx 状态码。
type HTTPError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("kraken: %s HTTP %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// APIError 表示 2xx 响应中携带了交易所错误列表。
type APIError struct {
	Endpoint string
	Messages []string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kraken: %s 返回错误: %s", e.Endpoint, strings.Join(e.Messages, "; "))
}
