package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// DefaultEnvFile 为默认的 dotenv 文件，缺失时忽略。
	DefaultEnvFile = ".env"
	// DefaultConfigDir 为策略文件目录。
	DefaultConfigDir = "configs"
)

// envBinding 把配置键映射到环境变量名。
type envBinding struct {
	key string
	env string
}

var runtimeBindings = []envBinding{
	{"kraken.api_key", "KRAKEN_API_KEY"},
	{"kraken.api_secret", "KRAKEN_API_SECRET"},
	{"kraken.api_url", "KRAKEN_API_URL"},
	{"kraken.http_timeout", "KRAKEN_HTTP_TIMEOUT"},
	{"notify.url", "NTFY_URL"},
	{"notify.topic", "NTFY_TOPIC"},
	{"notify.token", "NTFY_TOKEN"},
	{"notify.click", "NTFY_CLICK"},
	{"notify.timeout", "NTFY_TIMEOUT"},
	{"execution.poll_interval", "DCA_POLL_INTERVAL"},
	{"execution.poll_timeout", "DCA_POLL_TIMEOUT"},
	{"logging.level", "LOG_LEVEL"},
	{"logging.encoding", "LOG_ENCODING"},
	{"logging.development", "LOG_DEVELOPMENT"},
	{"logging.output_paths", "LOG_OUTPUT_PATHS"},
	{"logging.error_output_paths", "LOG_ERROR_OUTPUT_PATHS"},
	{"monitor.port", "MONITOR_PORT"},
	{"market.check_pair", "MARKET_CHECK_PAIR"},
	{"market.retry.max_attempts", "MARKET_RETRY_MAX_ATTEMPTS"},
	{"market.retry.min_delay", "MARKET_RETRY_MIN_DELAY"},
	{"market.retry.max_delay", "MARKET_RETRY_MAX_DELAY"},
}

// LoadStrategy 读取 JSON 或 YAML 策略文件并校验。
func LoadStrategy(path string) (*Strategy, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("策略文件路径不能为空")
	}

	configType, err := configTypeFor(path)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType(configType)
	setStrategyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取策略文件 %q 失败: %w", path, err)
	}

	var s Strategy
	if err := v.Unmarshal(&s, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析策略文件 %q 失败: %w", path, err)
	}
	s.Path = path
	s.DCA.Currency = strings.ToUpper(strings.TrimSpace(s.DCA.Currency))

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &s, nil
}

// LoadRuntime 从环境变量及可选的 dotenv 文件读取运行时配置。
// 返回值未经校验，调用方按需调用 Validate 或 ValidateCredentials。
func LoadRuntime(envFile string) (*Runtime, error) {
	v := viper.New()
	setRuntimeDefaults(v)

	dotenv, err := readDotenv(envFile)
	if err != nil {
		return nil, err
	}

	for _, b := range runtimeBindings {
		if dotenv != nil {
			if value := dotenv.GetString(strings.ToLower(b.env)); value != "" {
				v.SetDefault(b.key, value)
			}
		}
		if err := v.BindEnv(b.key, b.env); err != nil {
			return nil, fmt.Errorf("绑定环境变量 %s 失败: %w", b.env, err)
		}
	}

	var r Runtime
	if err := v.Unmarshal(&r, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析运行时配置失败: %w", err)
	}
	r.Kraken.APIURL = strings.TrimRight(r.Kraken.APIURL, "/")
	r.Notify.URL = strings.TrimRight(r.Notify.URL, "/")

	return &r, nil
}

// ListStrategies 列出目录下的策略文件。
func ListStrategies(dir string) ([]string, error) {
	if dir == "" {
		dir = DefaultConfigDir
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("读取策略目录 %q 失败: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, typeErr := configTypeFor(entry.Name()); typeErr != nil {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func readDotenv(path string) (*viper.Viper, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && path == DefaultEnvFile {
			return nil, nil
		}
		return nil, fmt.Errorf("读取环境文件 %q 失败: %w", path, err)
	}

	d := viper.New()
	d.SetConfigFile(path)
	d.SetConfigType("env")
	if err := d.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("解析环境文件 %q 失败: %w", path, err)
	}
	return d, nil
}

func configTypeFor(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json", nil
	case ".yaml", ".yml":
		return "yaml", nil
	default:
		return "", fmt.Errorf("不支持的策略文件格式 %q，仅支持 json/yaml", path)
	}
}

func setStrategyDefaults(v *viper.Viper) {
	v.SetDefault("dca.currency", "USD")
	v.SetDefault("dca.userref", 0)
	v.SetDefault("schedule.timezone", "UTC")
}

func setRuntimeDefaults(v *viper.Viper) {
	v.SetDefault("kraken.api_url", "https://api.kraken.com")
	v.SetDefault("kraken.http_timeout", "30s")

	v.SetDefault("notify.url", "https://ntfy.sh")
	v.SetDefault("notify.timeout", "10s")

	v.SetDefault("execution.poll_interval", "1500ms")
	v.SetDefault("execution.poll_timeout", "30s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("monitor.port", 0)

	v.SetDefault("market.check_pair", true)
	v.SetDefault("market.retry.max_attempts", 3)
	v.SetDefault("market.retry.min_delay", "500ms")
	v.SetDefault("market.retry.max_delay", "5s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
