package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"trade-manager/internal/engine"
	"trade-manager/internal/notice"
)

// Orchestrator is the set of report operations the dispatcher drives.
type Orchestrator interface {
	BuyAll(ctx context.Context, coin string, amount decimal.Decimal) string
	SellAll(ctx context.Context, coin string) string
	ShowTrades(ctx context.Context, coin string) string
	ShowPnL(ctx context.Context, coin string) string
	ShowBalances(ctx context.Context, mode engine.BalanceMode) string
}

type helpEntry struct {
	cmd  string
	desc string
}

var helpEntries = []helpEntry{
	{"notice_test", "테스트 공지 발행"},
	{"buy.COIN.value", "COIN을 USDT로 value만큼 매수 (예: buy.BTC.100)"},
	{"sell.COIN", "COIN 전량 매도 (예: sell.ETH)"},
	{"show_trx.COIN", "COIN 거래내역 조회 (예: show_trx.BTC)"},
	{"show_pnl.COIN", "COIN 손익 평가 (예: show_pnl.BTC)"},
	{"show_bal", "모든 계좌 잔고 조회 (1개 이하인 코인 제외)"},
	{"show_bal_all", "모든 계좌 잔고 조회 (모든 코인 표시)"},
	{"명령어, help", "사용 가능한 명령어 목록 표시"},
}

// Dispatcher is the single text-in, text-out entry point for operator commands.
type Dispatcher struct {
	engine   Orchestrator
	notices  notice.Publisher
	location *time.Location
	log      *logrus.Entry
	now      func() time.Time
}

// NewDispatcher wires the orchestrator and an optional notice publisher. A nil
// publisher makes notice_test report that publishing is not configured.
func NewDispatcher(orchestrator Orchestrator, notices notice.Publisher, loc *time.Location, log *logrus.Entry) *Dispatcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Dispatcher{
		engine:   orchestrator,
		notices:  notices,
		location: loc,
		log:      log.WithField("component", "command"),
		now:      time.Now,
	}
}

// Execute runs one command and returns the whole report, starting with the
// echoed command text.
func (d *Dispatcher) Execute(ctx context.Context, text string) string {
	text = strings.TrimSpace(text)
	var b strings.Builder
	fmt.Fprintf(&b, "Received command: %s\n\n", text)

	cmd, err := Parse(text)
	if err != nil {
		var usage *UsageError
		if errors.As(err, &usage) {
			d.log.WithFields(logrus.Fields{"event": "command_usage", "text": text}).Info(usage.Hint)
		}
		b.WriteString(err.Error())
		b.WriteString("\n")
		return b.String()
	}

	started := d.now()
	b.WriteString(d.run(ctx, cmd))
	d.log.WithFields(logrus.Fields{
		"event":       "command_done",
		"text":        text,
		"duration_ms": d.now().Sub(started).Milliseconds(),
	}).Info("command executed")
	return b.String()
}

func (d *Dispatcher) run(ctx context.Context, cmd Command) string {
	switch cmd.Kind {
	case KindNoticeTest:
		return d.noticeTest(ctx)
	case KindBuy:
		return d.engine.BuyAll(ctx, cmd.Coin, cmd.Amount)
	case KindSell:
		return d.engine.SellAll(ctx, cmd.Coin)
	case KindShowTrades:
		return d.engine.ShowTrades(ctx, cmd.Coin)
	case KindShowPnL:
		return d.engine.ShowPnL(ctx, cmd.Coin)
	case KindShowBalances:
		return d.engine.ShowBalances(ctx, engine.BalanceFiltered)
	case KindShowBalancesAll:
		return d.engine.ShowBalances(ctx, engine.BalanceAll)
	case KindHelp:
		return helpText()
	}
	return "No such feature.\n"
}

func (d *Dispatcher) noticeTest(ctx context.Context) string {
	if d.notices == nil {
		return "Executing test notices\nerror: notice publisher is not configured\n"
	}
	out, err := notice.PublishTest(ctx, d.notices, d.now(), d.location)
	if err != nil {
		d.log.WithField("event", "notice_publish_failed").WithError(err).Error("notice_test failed")
		return "Executing test notices\nerror: " + err.Error() + "\n"
	}
	return out
}

func helpText() string {
	var b strings.Builder
	b.WriteString("=== 사용 가능한 명령어 목록 ===\n\n")
	for _, e := range helpEntries {
		fmt.Fprintf(&b, "%s : %s\n", e.cmd, e.desc)
	}
	return b.String()
}
