package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"kraken-dca/internal/config"
	"kraken-dca/internal/execution"
	"kraken-dca/internal/kraken"
	"kraken-dca/internal/monitor"
	"kraken-dca/internal/notify"
)

type fakeBalances struct {
	balance decimal.Decimal
	err     error
	assets  []string
}

func (f *fakeBalances) Balance(ctx context.Context, asset string) (decimal.Decimal, error) {
	f.assets = append(f.assets, asset)
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return f.balance, nil
}

type fakeTrader struct {
	mu     sync.Mutex
	result execution.Result
	err    error
	panics bool
	orders []kraken.MarketBuy
}

func (f *fakeTrader) Execute(ctx context.Context, order kraken.MarketBuy) (execution.Result, error) {
	f.mu.Lock()
	f.orders = append(f.orders, order)
	f.mu.Unlock()
	if f.panics {
		panic("nil map write")
	}
	return f.result, f.err
}

func (f *fakeTrader) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

type sentNotification struct {
	severity notify.Severity
	msg      notify.Message
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
	hook func()
}

func (n *recordingNotifier) Notify(ctx context.Context, severity notify.Severity, msg notify.Message) error {
	n.mu.Lock()
	n.sent = append(n.sent, sentNotification{severity: severity, msg: msg})
	hook := n.hook
	n.mu.Unlock()
	if hook != nil {
		hook()
	}
	return n.err
}

func (n *recordingNotifier) all() []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentNotification(nil), n.sent...)
}

func testStrategy() *config.Strategy {
	return &config.Strategy{
		Name: "bitcoin-weekly",
		DCA: config.DCAConfig{
			Pair:                "XBTUSD",
			Amount:              50,
			Currency:            "USD",
			LowBalanceThreshold: 100,
			UserRef:             42,
		},
		Schedule: config.ScheduleConfig{Cron: "0 9 * * 1", Timezone: "UTC"},
	}
}

func filledResult() execution.Result {
	return execution.Result{
		Handle: kraken.OrderHandle{TxIDs: []string{"OQCLML-BW3P3-BUCMWZ"}, Description: "buy 50.00 XBTUSD @ market"},
		Status: kraken.OrderStatus{
			Status:         kraken.StatusClosed,
			Price:          decimal.NewFromInt(50000),
			VolumeExecuted: decimal.RequireFromString("0.001"),
			Cost:           decimal.NewFromInt(50),
			Fee:            decimal.RequireFromString("0.13"),
		},
		State:     execution.StateClosed,
		Confirmed: true,
		Polls:     3,
	}
}

func newTestRunner(balances BalanceReader, trader execution.Trader, notifier notify.Notifier, recorder *monitor.Service, logger *zap.Logger) *Runner {
	r := NewRunner(testStrategy(), balances, trader, notifier, recorder, logger)
	r.newRunID = func() string { return "run-1" }
	return r
}

func TestRunOnce_ProceedsAndReportsSuccess(t *testing.T) {
	balances := &fakeBalances{balance: decimal.NewFromInt(500)}
	trader := &fakeTrader{result: filledResult()}
	notifier := &recordingNotifier{}
	recorder := monitor.NewService(0, nil)

	outcome := newTestRunner(balances, trader, notifier, recorder, nil).RunOnce(context.Background())

	if outcome.Kind != execution.OutcomeFilled {
		t.Fatalf("expected filled outcome, got %s (%s)", outcome.Kind, outcome.ErrorText)
	}
	if len(balances.assets) != 1 || balances.assets[0] != "USD" {
		t.Fatalf("expected one USD balance lookup, got %v", balances.assets)
	}
	if trader.calls() != 1 {
		t.Fatalf("expected exactly one placement, got %d", trader.calls())
	}
	order := trader.orders[0]
	if order.Pair != "XBTUSD" || !order.Amount.Equal(decimal.NewFromInt(50)) || order.QuoteCurrency != "USD" || order.UserRef != 42 {
		t.Fatalf("unexpected order %+v", order)
	}

	sent := notifier.all()
	if len(sent) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(sent))
	}
	if sent[0].severity != notify.SeveritySuccess {
		t.Errorf("expected success severity, got %s", sent[0].severity)
	}
	if !strings.Contains(sent[0].msg.Body, "OQCLML-BW3P3-BUCMWZ") {
		t.Errorf("expected txid in body, got %q", sent[0].msg.Body)
	}
	if !strings.Contains(sent[0].msg.Body, "50000.00 USD") {
		t.Errorf("expected avg price in body, got %q", sent[0].msg.Body)
	}

	statuses := recorder.Statuses()
	if len(statuses) != 1 || statuses[0].LastOutcome.Kind != execution.OutcomeFilled {
		t.Errorf("expected monitor to record filled outcome, got %+v", statuses)
	}
}

func TestRunOnce_LowBalanceSkips(t *testing.T) {
	trader := &fakeTrader{result: filledResult()}
	notifier := &recordingNotifier{}

	outcome := newTestRunner(&fakeBalances{balance: decimal.NewFromInt(80)}, trader, notifier, nil, nil).RunOnce(context.Background())

	if outcome.Kind != execution.OutcomeSkipped {
		t.Fatalf("expected skipped outcome, got %s", outcome.Kind)
	}
	if trader.calls() != 0 {
		t.Fatalf("expected no placement, got %d", trader.calls())
	}
	sent := notifier.all()
	if len(sent) != 1 || sent[0].severity != notify.SeverityWarning {
		t.Fatalf("expected a single warning, got %+v", sent)
	}
	for _, want := range []string{"80.00 USD", "100.00 USD", "50.00 USD", "No order was placed."} {
		if !strings.Contains(sent[0].msg.Body, want) {
			t.Errorf("expected %q in body, got %q", want, sent[0].msg.Body)
		}
	}
	if sent[0].msg.Title != "Kraken DCA: Low USD balance" {
		t.Errorf("unexpected title %q", sent[0].msg.Title)
	}
}

func TestRunOnce_BalanceErrorReportsError(t *testing.T) {
	trader := &fakeTrader{}
	notifier := &recordingNotifier{}
	apiErr := &kraken.APIError{Endpoint: "Balance", Messages: []string{"EAPI:Invalid key"}}

	outcome := newTestRunner(&fakeBalances{err: apiErr}, trader, notifier, nil, nil).RunOnce(context.Background())

	if outcome.Kind != execution.OutcomeFailed {
		t.Fatalf("expected failed outcome, got %s", outcome.Kind)
	}
	var target *kraken.APIError
	if !errors.As(outcome.Err, &target) {
		t.Fatalf("expected APIError in outcome, got %v", outcome.Err)
	}
	if trader.calls() != 0 {
		t.Fatalf("expected no placement after balance failure")
	}
	sent := notifier.all()
	if len(sent) != 1 || sent[0].severity != notify.SeverityError {
		t.Fatalf("expected a single error notification, got %+v", sent)
	}
	if !strings.Contains(sent[0].msg.Body, "EAPI:Invalid key") {
		t.Errorf("expected api error text in body, got %q", sent[0].msg.Body)
	}
}

func TestRunOnce_PanicStillNotifiesOnce(t *testing.T) {
	notifier := &recordingNotifier{}
	core, logs := observer.New(zapcore.ErrorLevel)

	outcome := newTestRunner(
		&fakeBalances{balance: decimal.NewFromInt(500)},
		&fakeTrader{panics: true},
		notifier, nil, zap.New(core),
	).RunOnce(context.Background())

	if outcome.Kind != execution.OutcomeFailed || !strings.Contains(outcome.ErrorText, "nil map write") {
		t.Fatalf("expected failed outcome from panic, got %s %q", outcome.Kind, outcome.ErrorText)
	}
	sent := notifier.all()
	if len(sent) != 1 || sent[0].severity != notify.SeverityError {
		t.Fatalf("expected a single error notification, got %+v", sent)
	}
	if logs.FilterMessage("定投执行发生 panic").Len() != 1 {
		t.Errorf("expected panic to be logged")
	}
}

func TestRunOnce_UnconfirmedIsInfo(t *testing.T) {
	result := filledResult()
	result.Confirmed = false
	result.State = execution.StateTimedOut
	result.Status = kraken.OrderStatus{Status: kraken.StatusOpen}
	notifier := &recordingNotifier{}

	outcome := newTestRunner(&fakeBalances{balance: decimal.NewFromInt(500)}, &fakeTrader{result: result}, notifier, nil, nil).RunOnce(context.Background())

	if outcome.Kind != execution.OutcomeUnconfirmed {
		t.Fatalf("expected unconfirmed outcome, got %s", outcome.Kind)
	}
	sent := notifier.all()
	if len(sent) != 1 || sent[0].severity != notify.SeverityInfo {
		t.Fatalf("expected a single info notification, got %+v", sent)
	}
	if !strings.Contains(sent[0].msg.Body, "OQCLML-BW3P3-BUCMWZ") {
		t.Errorf("expected txid in unconfirmed body")
	}
}

func TestRunOnce_UnconfirmedCarriesLastQueryError(t *testing.T) {
	result := filledResult()
	result.Confirmed = false
	result.State = execution.StateTimedOut
	result.Status = kraken.OrderStatus{Status: kraken.StatusUnknown}
	result.LastPollErr = &kraken.APIError{Endpoint: "QueryOrders", Messages: []string{"EGeneral:Permission denied"}}
	notifier := &recordingNotifier{}

	outcome := newTestRunner(&fakeBalances{balance: decimal.NewFromInt(500)}, &fakeTrader{result: result}, notifier, nil, nil).RunOnce(context.Background())

	if outcome.Kind != execution.OutcomeUnconfirmed {
		t.Fatalf("expected unconfirmed outcome, got %s", outcome.Kind)
	}
	if !strings.Contains(outcome.PollError, "EGeneral:Permission denied") {
		t.Errorf("expected poll error on outcome, got %q", outcome.PollError)
	}
	sent := notifier.all()
	if len(sent) != 1 || sent[0].severity != notify.SeverityInfo {
		t.Fatalf("expected a single info notification, got %+v", sent)
	}
	if !strings.Contains(sent[0].msg.Body, "• Last query error: ") || !strings.Contains(sent[0].msg.Body, "EGeneral:Permission denied") {
		t.Errorf("expected venue message in unconfirmed body:\n%s", sent[0].msg.Body)
	}
}

func TestRunOnce_PlacementErrorReportsError(t *testing.T) {
	trader := &fakeTrader{err: errors.New("execution: 提交市价单失败: EOrder:Insufficient funds")}
	notifier := &recordingNotifier{}

	outcome := newTestRunner(&fakeBalances{balance: decimal.NewFromInt(500)}, trader, notifier, nil, nil).RunOnce(context.Background())

	if outcome.Kind != execution.OutcomeFailed {
		t.Fatalf("expected failed outcome, got %s", outcome.Kind)
	}
	if trader.calls() != 1 {
		t.Fatalf("expected a single placement attempt, got %d", trader.calls())
	}
	if sent := notifier.all(); len(sent) != 1 || sent[0].severity != notify.SeverityError {
		t.Fatalf("expected a single error notification, got %+v", sent)
	}
}

func TestRunOnce_NotificationFailureIsLoggedOnly(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	notifier := &recordingNotifier{err: &notify.DeliveryError{StatusCode: 500, Body: "down"}}

	outcome := newTestRunner(&fakeBalances{balance: decimal.NewFromInt(80)}, &fakeTrader{}, notifier, nil, zap.New(core)).RunOnce(context.Background())

	if outcome.Kind != execution.OutcomeSkipped {
		t.Fatalf("expected skipped outcome despite delivery failure, got %s", outcome.Kind)
	}
	if len(notifier.all()) != 1 {
		t.Fatalf("expected delivery attempted once")
	}
	if logs.FilterMessage("通知发送失败").Len() != 1 {
		t.Errorf("expected delivery failure to be logged")
	}
}

func TestRunOnce_NotifierPanicIsContained(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	notifier := &recordingNotifier{hook: func() { panic("ntfy client exploded") }}

	outcome := newTestRunner(&fakeBalances{balance: decimal.NewFromInt(80)}, &fakeTrader{}, notifier, monitor.NewService(0, nil), zap.New(core)).RunOnce(context.Background())

	if outcome.Kind != execution.OutcomeSkipped {
		t.Fatalf("expected skipped outcome, got %s", outcome.Kind)
	}
	if len(notifier.all()) != 1 {
		t.Fatalf("expected delivery attempted once")
	}
	if logs.FilterMessage("通知阶段发生 panic").Len() != 1 {
		t.Errorf("expected notifier panic to be logged")
	}
}

func TestRunOnce_SetsTimestampsAndRunID(t *testing.T) {
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	ticks := []time.Time{start, start.Add(2 * time.Second)}
	r := newTestRunner(&fakeBalances{balance: decimal.NewFromInt(80)}, &fakeTrader{}, &recordingNotifier{}, nil, nil)
	r.now = func() time.Time {
		next := ticks[0]
		if len(ticks) > 1 {
			ticks = ticks[1:]
		}
		return next
	}

	outcome := r.RunOnce(context.Background())
	if outcome.RunID != "run-1" {
		t.Errorf("unexpected run id %q", outcome.RunID)
	}
	if !outcome.StartedAt.Equal(start) || outcome.FinishedAt.Sub(outcome.StartedAt) != 2*time.Second {
		t.Errorf("unexpected timestamps %s -> %s", outcome.StartedAt, outcome.FinishedAt)
	}
}
