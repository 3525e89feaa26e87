package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"kraken-dca/internal/app"
	"kraken-dca/internal/config"
	"kraken-dca/internal/exchange"
	"kraken-dca/internal/kraken"
	"kraken-dca/internal/service"
)

func newRunCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <config...>",
		Short: "启动时执行一次定投，然后按 cron 持续调度",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			strategies, err := loadStrategies(args)
			if err != nil {
				return err
			}
			runtime, logger, err := root.loadRuntime()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			dcaApp, err := app.New(runtime, strategies, logger)
			if err != nil {
				logger.Error("初始化失败", zap.Error(err))
				return err
			}
			if err := dcaApp.Run(cmd.Context()); err != nil {
				logger.Error("系统运行异常", zap.Error(err))
				return err
			}
			logger.Info("系统已安全退出")
			return nil
		},
	}
}

func newBalanceCommand(root *rootOptions) *cobra.Command {
	var (
		currency string
		verbose  bool
	)

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "查询 Kraken 账户余额",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runtime, logger, err := root.loadRuntime()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if err := runtime.ValidateCredentials(); err != nil {
				return err
			}

			client := kraken.NewClient(runtime.Kraken, logger)
			out := cmd.OutOrStdout()

			if !verbose {
				balance, err := client.Balance(cmd.Context(), strings.ToUpper(currency))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s %s\n", balance.StringFixed(2), strings.ToUpper(currency))
				return nil
			}

			snapshot, err := client.Balances(cmd.Context())
			if err != nil {
				return err
			}
			assets := make([]string, 0, len(snapshot))
			for asset := range snapshot {
				assets = append(assets, asset)
			}
			sort.Strings(assets)

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ASSET\tBALANCE")
			for _, asset := range assets {
				fmt.Fprintf(w, "%s\t%s\n", asset, snapshot[asset].String())
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&currency, "currency", "USD", "计价币种")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "列出全部资产")
	return cmd
}

func newListCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "列出策略目录中的全部策略",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := config.ListStrategies(dir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(paths) == 0 {
				fmt.Fprintf(out, "%s 中没有策略文件\n", dir)
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "FILE\tNAME\tPAIR\tAMOUNT\tTHRESHOLD\tSCHEDULE")
			for _, path := range paths {
				strategy, loadErr := config.LoadStrategy(path)
				if loadErr != nil {
					fmt.Fprintf(w, "%s\t(无效: %v)\t\t\t\t\n", filepath.Base(path), loadErr)
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%.2f %s\t%.2f\t%s (%s)\n",
					filepath.Base(path),
					strategy.Name,
					strategy.DCA.Pair,
					strategy.DCA.Amount, strategy.DCA.Currency,
					strategy.DCA.LowBalanceThreshold,
					strategy.Schedule.Cron, strategy.Schedule.Timezone,
				)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&dir, "dir", config.DefaultConfigDir, "策略目录")
	return cmd
}

func newValidateCommand(root *rootOptions) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "validate <config...>",
		Short: "校验策略文件，并通过公开行情确认交易对存在",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			var (
				strategies []*config.Strategy
				errs       error
			)
			for _, path := range args {
				strategy, err := config.LoadStrategy(path)
				if err != nil {
					errs = multierr.Append(errs, fmt.Errorf("%s: %w", path, err))
					continue
				}
				fmt.Fprintf(out, "✓ %s: %s (%s, %.2f %s)\n", path, strategy.Name, strategy.DCA.Pair, strategy.DCA.Amount, strategy.DCA.Currency)
				strategies = append(strategies, strategy)
			}
			if offline || len(strategies) == 0 {
				return errs
			}

			runtime, logger, err := root.loadRuntime()
			if err != nil {
				return multierr.Append(errs, err)
			}
			defer func() { _ = logger.Sync() }()

			pairs := make([]string, 0, len(strategies))
			for _, s := range strategies {
				pairs = append(pairs, s.DCA.Pair)
			}
			svc := exchange.NewPairService(exchange.NewClient(runtime.Market, logger), logger)
			reports, err := svc.CheckAll(cmd.Context(), pairs)
			if err != nil {
				return multierr.Append(errs, err)
			}
			for _, report := range reports {
				if exchange.IsUnknownPair(report.Err) {
					errs = multierr.Append(errs, fmt.Errorf("交易对 %s 不存在，请检查 dca.pair: %w", report.Pair, report.Err))
					continue
				}
				if !report.OK() {
					errs = multierr.Append(errs, fmt.Errorf("交易对 %s: %w", report.Pair, report.Err))
					continue
				}
				fmt.Fprintf(out, "✓ %s → %s 最新价 %s\n", report.Pair, report.Market.Symbol, report.Quote.Last.String())
			}
			return errs
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "只校验文件，不访问交易所")
	return cmd
}

func newGenerateServiceCommand(root *rootOptions) *cobra.Command {
	var (
		format     string
		output     string
		executable string
		label      string
		user       string
	)

	cmd := &cobra.Command{
		Use:   "generate-service <config...>",
		Short: "生成 launchd plist 或 systemd unit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadStrategies(args); err != nil {
				return err
			}
			parsed, err := service.ParseFormat(format)
			if err != nil {
				return err
			}

			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("获取工作目录失败: %w", err)
			}
			if executable == "" {
				if executable, err = os.Executable(); err != nil {
					return fmt.Errorf("获取可执行文件路径失败: %w", err)
				}
			}

			opts := service.Options{
				Label:      label,
				Executable: executable,
				WorkingDir: cwd,
				Configs:    args,
				EnvFile:    root.envFile,
				User:       user,
			}

			if output == "-" {
				return service.Render(cmd.OutOrStdout(), parsed, opts)
			}
			if output == "" {
				output = filepath.Join(cwd, service.FileName(parsed, label))
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("创建 %s 失败: %w", output, err)
			}
			if err := service.Render(f, parsed, opts); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("写入 %s 失败: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "已生成 %s (%s, %d 个策略)\n", output, parsed, len(args))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", string(service.FormatLaunchd), "launchd 或 systemd")
	cmd.Flags().StringVarP(&output, "output", "o", "", "输出路径，- 表示标准输出")
	cmd.Flags().StringVar(&executable, "executable", "", "可执行文件路径，默认当前程序")
	cmd.Flags().StringVar(&label, "label", service.DefaultLabel, "服务标签")
	cmd.Flags().StringVar(&user, "user", "", "systemd 运行用户")
	return cmd
}
