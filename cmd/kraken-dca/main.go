package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kraken-dca/internal/config"
	"kraken-dca/internal/log"
)

type rootOptions struct {
	envFile string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "kraken-dca",
		Short:         "Kraken 定投工具：按 cron 定时买入固定金额并推送通知",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "环境变量文件路径，默认尝试 .env")

	root.AddCommand(
		newRunCommand(opts),
		newBalanceCommand(opts),
		newListCommand(),
		newValidateCommand(opts),
		newGenerateServiceCommand(opts),
	)
	return root
}

// loadRuntime 读取运行时配置并创建日志实例。
func (o *rootOptions) loadRuntime() (*config.Runtime, *zap.Logger, error) {
	runtime, err := config.LoadRuntime(o.envFile)
	if err != nil {
		return nil, nil, fmt.Errorf("加载运行时配置失败: %w", err)
	}
	logger, err := log.NewLogger(runtime.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return runtime, logger, nil
}

// loadStrategies 加载全部策略文件，任何一个失败都返回错误。
func loadStrategies(paths []string) ([]*config.Strategy, error) {
	strategies := make([]*config.Strategy, 0, len(paths))
	for _, path := range paths {
		strategy, err := config.LoadStrategy(path)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, strategy)
	}
	return strategies, nil
}
