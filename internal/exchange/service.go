package exchange

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PairService 并发校验多个交易对。
type PairService struct {
	client *Client
	logger *zap.Logger
}

// NewPairService 创建交易对校验服务。
func NewPairService(client *Client, logger *zap.Logger) *PairService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PairService{
		client: client,
		logger: logger,
	}
}

// Check 解析交易对并拉取最新报价。
func (s *PairService) Check(ctx context.Context, pair string) PairReport {
	report := PairReport{Pair: pair}

	market, err := s.client.ResolvePair(ctx, pair)
	if err != nil {
		report.Err = err
		return report
	}
	report.Market = market

	quote, err := s.client.FetchQuote(ctx, market.Symbol)
	if err != nil {
		report.Err = err
		return report
	}
	report.Quote = quote
	return report
}

// CheckAll 对每个交易对执行 Check，结果顺序与入参一致。单个失败记录在报告中而不中断其他校验。
func (s *PairService) CheckAll(ctx context.Context, pairs []string) ([]PairReport, error) {
	reports := make([]PairReport, len(pairs))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(4)
	for i, pair := range pairs {
		group.Go(func() error {
			reports[i] = s.Check(groupCtx, pair)
			if reports[i].Err != nil {
				s.logger.Warn("交易对校验失败", zap.String("pair", pair), zap.Error(reports[i].Err))
			}
			return groupCtx.Err()
		})
	}

	if err := group.Wait(); err != nil {
		return reports, err
	}
	return reports, nil
}
