package monitor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"kraken-dca/internal/execution"
	"kraken-dca/internal/risk"
)

const defaultCapacity = 500

// Service 在内存中保存最近的监控事件，进程重启后清空。
type Service struct {
	mu       sync.RWMutex
	events   []Event
	capacity int
	statuses map[string]*StrategyStatus
	logger   *zap.Logger
}

// NewService 初始化监控服务，capacity 为保留的事件条数上限。
func NewService(capacity int, logger *zap.Logger) *Service {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		events:   make([]Event, 0, capacity),
		capacity: capacity,
		statuses: make(map[string]*StrategyStatus),
		logger:   logger,
	}
}

// Record 写入单个事件，超出容量时丢弃最旧的事件。
func (s *Service) Record(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("monitor: 写入事件失败: %w", err)
	}
	if event.Type == "" {
		return fmt.Errorf("monitor: 事件类型不能为空")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.events) == s.capacity {
		copy(s.events, s.events[1:])
		s.events = s.events[:len(s.events)-1]
	}
	s.events = append(s.events, event)
	return nil
}

// RecordBalanceCheck 记录余额校验。
func (s *Service) RecordBalanceCheck(ctx context.Context, strategy, runID string, decision risk.Decision) {
	if err := s.Record(ctx, Event{
		Type:     EventBalanceCheck,
		Strategy: strategy,
		RunID:    runID,
		Payload:  BalanceCheckPayload{Decision: decision},
	}); err != nil {
		s.logger.Warn("记录余额事件失败", zap.Error(err))
	}
}

// RecordOutcome 记录运行结果并更新策略状态。
func (s *Service) RecordOutcome(ctx context.Context, outcome execution.Outcome) {
	if err := s.Record(ctx, Event{
		Type:      EventOutcome,
		Strategy:  outcome.Strategy,
		RunID:     outcome.RunID,
		Timestamp: outcome.FinishedAt,
		Payload:   OutcomePayload{Outcome: outcome},
	}); err != nil {
		s.logger.Warn("记录运行结果失败", zap.Error(err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	status := s.statusLocked(outcome.Strategy)
	status.Runs++
	status.LastOutcome = outcome
}

// RecordError 记录异常。
func (s *Service) RecordError(ctx context.Context, strategy, msg string, err error, ctxMap map[string]interface{}) {
	payload := ErrorPayload{
		Message: msg,
		Context: ctxMap,
	}
	if err != nil {
		payload.Error = err.Error()
	}
	if recErr := s.Record(ctx, Event{
		Type:     EventError,
		Strategy: strategy,
		Payload:  payload,
	}); recErr != nil {
		s.logger.Warn("记录异常事件失败", zap.Error(recErr))
	}
}

// SetNextRun 更新策略的下一次触发时间。
func (s *Service) SetNextRun(strategy string, next time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := s.statusLocked(strategy)
	if next.IsZero() {
		status.NextRun = nil
		return
	}
	n := next
	status.NextRun = &n
}

func (s *Service) statusLocked(strategy string) *StrategyStatus {
	status, ok := s.statuses[strategy]
	if !ok {
		status = &StrategyStatus{Strategy: strategy}
		s.statuses[strategy] = status
	}
	return status
}

// ListEvents 按类型检索最近事件，最新的在前。
func (s *Service) ListEvents(ctx context.Context, eventType EventType, limit int) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("monitor: 查询事件失败: %w", err)
	}
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]Event, 0, min(limit, len(s.events)))
	for i := len(s.events) - 1; i >= 0 && len(events) < limit; i-- {
		if eventType != "" && s.events[i].Type != eventType {
			continue
		}
		events = append(events, s.events[i])
	}
	return events, nil
}

// Statuses 返回各策略的最近状态，按策略名排序。
func (s *Service) Statuses() []StrategyStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]StrategyStatus, 0, len(s.statuses))
	for _, status := range s.statuses {
		out = append(out, *status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strategy < out[j].Strategy })
	return out
}
