package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
)

// Strategy 描述单个定投策略文件的内容。
type Strategy struct {
	Name        string         `mapstructure:"name"`
	Description string         `mapstructure:"description"`
	DCA         DCAConfig      `mapstructure:"dca"`
	Schedule    ScheduleConfig `mapstructure:"schedule"`

	// Path 为策略文件路径，加载后填充。
	Path string `mapstructure:"-"`
}

// DCAConfig 控制单次买入参数。
type DCAConfig struct {
	Pair                string  `mapstructure:"pair"`
	Amount              float64 `mapstructure:"amount"`
	Currency            string  `mapstructure:"currency"`
	LowBalanceThreshold float64 `mapstructure:"low_balance_threshold"`
	UserRef             int32   `mapstructure:"userref"`
}

// ScheduleConfig 为 cron 表达式与时区。
type ScheduleConfig struct {
	Cron     string `mapstructure:"cron"`
	Timezone string `mapstructure:"timezone"`
}

// Runtime 聚合来自环境变量的运行时配置。
type Runtime struct {
	Kraken    KrakenConfig    `mapstructure:"kraken"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Market    MarketConfig    `mapstructure:"market"`
}

// KrakenConfig 描述私有接口凭据。
type KrakenConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	APISecret   string        `mapstructure:"api_secret"`
	APIURL      string        `mapstructure:"api_url"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
}

// NotifyConfig 描述 ntfy 推送目标。
type NotifyConfig struct {
	URL     string        `mapstructure:"url"`
	Topic   string        `mapstructure:"topic"`
	Token   string        `mapstructure:"token"`
	Click   string        `mapstructure:"click"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ExecutionConfig 控制成交确认轮询。
type ExecutionConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PollTimeout  time.Duration `mapstructure:"poll_timeout"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// MonitorConfig 控制状态查询接口，端口为 0 时关闭。
type MonitorConfig struct {
	Port int `mapstructure:"port"`
}

// MarketConfig 控制公开行情校验。
type MarketConfig struct {
	CheckPair bool        `mapstructure:"check_pair"`
	Retry     RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制公开接口的重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// Validate 对策略进行基本校验。
func (s *Strategy) Validate() error {
	var err error

	if strings.TrimSpace(s.Name) == "" {
		err = multierr.Append(err, errors.New("name 不能为空"))
	}
	if strings.TrimSpace(s.DCA.Pair) == "" {
		err = multierr.Append(err, errors.New("dca.pair 不能为空"))
	}
	if s.DCA.Amount <= 0 {
		err = multierr.Append(err, errors.New("dca.amount 必须大于0"))
	}
	if strings.TrimSpace(s.DCA.Currency) == "" {
		err = multierr.Append(err, errors.New("dca.currency 不能为空"))
	}
	if s.DCA.LowBalanceThreshold <= 0 {
		err = multierr.Append(err, errors.New("dca.low_balance_threshold 必须大于0"))
	}
	if s.DCA.UserRef < 0 {
		err = multierr.Append(err, errors.New("dca.userref 不能为负"))
	}
	if cronErr := validateCron(s.Schedule.Cron); cronErr != nil {
		err = multierr.Append(err, cronErr)
	}
	if s.Schedule.Timezone == "" {
		err = multierr.Append(err, errors.New("schedule.timezone 不能为空"))
	} else if _, locErr := time.LoadLocation(s.Schedule.Timezone); locErr != nil {
		err = multierr.Append(err, fmt.Errorf("schedule.timezone 无效: %w", locErr))
	}

	if err != nil {
		return fmt.Errorf("策略校验失败: %w", err)
	}
	return nil
}

// Location 返回策略时区，调用前需通过 Validate。
func (s *Strategy) Location() *time.Location {
	loc, err := time.LoadLocation(s.Schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func validateCron(expr string) error {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return errors.New("schedule.cron 不能为空")
	}
	if fields := strings.Fields(expr); len(fields) != 5 {
		return fmt.Errorf("schedule.cron %q 必须包含5段: 分 时 日 月 周", expr)
	}
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("schedule.cron %q 解析失败: %w", expr, err)
	}
	return nil
}

// Validate 校验运行时配置。
func (r *Runtime) Validate() error {
	var err error

	if r.Kraken.APIKey == "" || r.Kraken.APISecret == "" {
		err = multierr.Append(err, errors.New("缺少 Kraken 凭据: KRAKEN_API_KEY 与 KRAKEN_API_SECRET"))
	}
	if r.Kraken.APIURL == "" {
		err = multierr.Append(err, errors.New("KRAKEN_API_URL 不能为空"))
	}
	if r.Notify.Topic == "" {
		err = multierr.Append(err, errors.New("NTFY_TOPIC 不能为空"))
	}
	if r.Execution.PollInterval <= 0 {
		err = multierr.Append(err, errors.New("DCA_POLL_INTERVAL 必须大于0"))
	}
	if r.Execution.PollTimeout <= 0 {
		err = multierr.Append(err, errors.New("DCA_POLL_TIMEOUT 必须大于0"))
	}
	if r.Execution.PollInterval > r.Execution.PollTimeout {
		err = multierr.Append(err, errors.New("DCA_POLL_INTERVAL 不应大于 DCA_POLL_TIMEOUT"))
	}
	if r.Logging.Level == "" {
		err = multierr.Append(err, errors.New("LOG_LEVEL 不能为空"))
	}
	if r.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("LOG_ENCODING 不能为空"))
	}
	if r.Monitor.Port < 0 || r.Monitor.Port > 65535 {
		err = multierr.Append(err, errors.New("MONITOR_PORT 必须位于[0,65535]"))
	}
	if r.Market.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("market.retry.max_attempts 必须大于0"))
	}
	if r.Market.Retry.MinDelay > r.Market.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("market.retry.min_delay 不能大于 max_delay"))
	}

	if err != nil {
		return fmt.Errorf("运行时配置校验失败: %w", err)
	}
	return nil
}

// ValidateCredentials 仅校验交易所凭据，供只读命令使用。
func (r *Runtime) ValidateCredentials() error {
	if r.Kraken.APIKey == "" || r.Kraken.APISecret == "" {
		return errors.New("缺少 Kraken 凭据: KRAKEN_API_KEY 与 KRAKEN_API_SECRET")
	}
	return nil
}
