package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"kraken-dca/internal/config"
	"kraken-dca/internal/exchange"
	"kraken-dca/internal/execution"
	"kraken-dca/internal/kraken"
	applog "kraken-dca/internal/log"
	"kraken-dca/internal/monitor"
	"kraken-dca/internal/notify"
)

// pairChecker 通过公开行情校验交易对。
type pairChecker interface {
	CheckAll(ctx context.Context, pairs []string) ([]exchange.PairReport, error)
}

// App 聚合核心依赖并驱动定投调度的生命周期。
type App struct {
	runtime *config.Runtime
	runners []*Runner
	monitor *monitor.Service
	pairs   pairChecker
	logger  *zap.Logger
}

// New 根据运行时配置与策略列表创建 App。所有策略共享同一个 Kraken 客户端与进程级 nonce。
func New(runtime *config.Runtime, strategies []*config.Strategy, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(strategies) == 0 {
		return nil, fmt.Errorf("app: 至少需要一个策略")
	}
	if err := runtime.Validate(); err != nil {
		return nil, err
	}

	client := kraken.NewClient(runtime.Kraken, logger)
	notifier := notify.NewClient(runtime.Notify, logger)
	recorder := monitor.NewService(0, logger)

	runners := make([]*Runner, 0, len(strategies))
	for _, strategy := range strategies {
		strategyLogger := logger.With(zap.String("strategy", strategy.Name))
		executor := execution.NewExecutor(client, execution.Options{
			PollInterval: runtime.Execution.PollInterval,
			PollTimeout:  runtime.Execution.PollTimeout,
		}, strategyLogger.Named("execution"))
		runners = append(runners, NewRunner(strategy, client, executor, notifier, recorder, logger))
	}

	var pairs pairChecker
	if runtime.Market.CheckPair {
		pairs = exchange.NewPairService(exchange.NewClient(runtime.Market, logger), logger)
	}

	return newApp(runtime, runners, recorder, pairs, logger), nil
}

func newApp(runtime *config.Runtime, runners []*Runner, recorder *monitor.Service, pairs pairChecker, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		runtime: runtime,
		runners: runners,
		monitor: recorder,
		pairs:   pairs,
		logger:  logger,
	}
}

// Run 启动时为每个策略立即执行一次，然后按 cron 调度，直到 ctx 取消。
// 退出时停止接收新触发并等待进行中的定投完成。
func (a *App) Run(ctx context.Context) error {
	for _, r := range a.runners {
		s := r.Strategy()
		a.logger.Info("加载定投策略",
			zap.String("strategy", s.Name),
			zap.String("description", s.Description),
			zap.String("pair", s.DCA.Pair),
			zap.Float64("amount", s.DCA.Amount),
			zap.String("currency", s.DCA.Currency),
			zap.Float64("threshold", s.DCA.LowBalanceThreshold),
			zap.String("schedule", s.Schedule.Cron),
			zap.String("timezone", s.Schedule.Timezone),
			zap.String("topic", a.runtime.Notify.Topic),
		)
	}

	if a.runtime.Monitor.Port > 0 && a.monitor != nil {
		if err := startMonitorServer(ctx, a.monitor, a.runtime.Monitor.Port, a.logger); err != nil {
			return err
		}
	}

	// 交易对校验不阻塞启动时的定投
	go a.checkPairs(ctx)

	// 进行中的定投不受退出信号影响
	runCtx := context.WithoutCancel(ctx)

	var startup errgroup.Group
	for _, r := range a.runners {
		startup.Go(func() error {
			r.RunOnce(runCtx)
			return nil
		})
	}
	_ = startup.Wait()

	cronLogger := applog.NewCronLogger(a.logger)
	scheduler := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger)),
	)
	for _, r := range a.runners {
		if err := a.schedule(runCtx, scheduler, r); err != nil {
			return err
		}
	}

	scheduler.Start()
	a.logger.Info("定投调度已启动", zap.Int("strategies", len(a.runners)))

	<-ctx.Done()
	a.logger.Info("收到退出信号，等待进行中的定投完成")
	<-scheduler.Stop().Done()
	a.logger.Info("定投调度已停止")
	return nil
}

func (a *App) schedule(ctx context.Context, scheduler *cron.Cron, r *Runner) error {
	s := r.Strategy()
	spec := cronSpec(s)
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("app: 策略 %s 的 cron 表达式无效: %w", s.Name, err)
	}

	scheduler.Schedule(sched, cron.FuncJob(func() {
		r.RunOnce(ctx)
		a.recordNextRun(s, sched)
	}))
	a.recordNextRun(s, sched)
	return nil
}

func (a *App) recordNextRun(s *config.Strategy, sched cron.Schedule) {
	next := sched.Next(time.Now())
	if a.monitor != nil {
		a.monitor.SetNextRun(s.Name, next)
	}
	a.logger.Info("下一次定投时间",
		zap.String("strategy", s.Name),
		zap.Time("next_run", next),
		zap.String("next_run_local", next.In(s.Location()).Format(time.RFC3339)),
	)
}

// checkPairs 通过公开行情校验交易对，仅记录告警不阻止启动。
func (a *App) checkPairs(ctx context.Context) {
	if a.pairs == nil {
		return
	}
	pairs := make([]string, 0, len(a.runners))
	for _, r := range a.runners {
		pairs = append(pairs, r.Strategy().DCA.Pair)
	}

	reports, err := a.pairs.CheckAll(ctx, pairs)
	if err != nil {
		a.logger.Warn("交易对校验中断", zap.Error(err))
		return
	}
	for _, report := range reports {
		switch {
		case exchange.IsUnknownPair(report.Err):
			a.logger.Warn("交易所未列出该交易对，请检查策略配置", zap.String("pair", report.Pair), zap.Error(report.Err))
			continue
		case !report.OK():
			a.logger.Warn("交易对校验失败，将继续按配置下单", zap.String("pair", report.Pair), zap.Error(report.Err))
			continue
		}
		a.logger.Info("交易对校验通过",
			zap.String("pair", report.Pair),
			zap.String("symbol", report.Market.Symbol),
			zap.String("last", report.Quote.Last.String()),
		)
	}
}

// cronSpec 生成带时区前缀的 cron 表达式。
func cronSpec(s *config.Strategy) string {
	tz := s.Schedule.Timezone
	if tz == "" {
		tz = "UTC"
	}
	return fmt.Sprintf("CRON_TZ=%s %s", tz, s.Schedule.Cron)
}
