package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"trade-manager/internal/account"
	"trade-manager/internal/config"
	"trade-manager/internal/core"
	"trade-manager/internal/exchange"
	"trade-manager/internal/exchange/connect"
)

type checkStatus string

const (
	statusPass checkStatus = "PASS"
	statusFail checkStatus = "FAIL"
)

type checkResult struct {
	Account    string      `json:"account"`
	Name       string      `json:"name"`
	Status     checkStatus `json:"status"`
	DurationMs int64       `json:"duration_ms"`
	Detail     string      `json:"detail,omitempty"`
	Error      string      `json:"error,omitempty"`
}

type report struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Mode       config.Mode   `json:"mode"`
	Coin       string        `json:"coin"`
	Checks     []checkResult `json:"checks"`
}

func (r report) failed() int {
	n := 0
	for _, c := range r.Checks {
		if c.Status != statusPass {
			n++
		}
	}
	return n
}

func main() {
	var (
		configPath  string
		coin        string
		provider    string
		timeoutSec  int
		outJSONPath string
	)
	flag.StringVar(&configPath, "config", "config/config.yaml", "config yaml path")
	flag.StringVar(&coin, "coin", "BTC", "coin whose USDT pair is probed")
	flag.StringVar(&provider, "provider", "", "only check accounts of this provider")
	flag.IntVar(&timeoutSec, "timeout-sec", 120, "total timeout seconds")
	flag.StringVar(&outJSONPath, "out-json", "", "optional output report path")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err.Error())
	}
	registry, err := account.NewRegistry(cfg.CoreAccounts())
	if err != nil {
		fatal(err.Error())
	}
	accounts := registry.All()
	if provider != "" {
		p, ok := core.ParseProvider(provider)
		if !ok {
			fatal("provider must be binance, bybit, or bitget")
		}
		accounts = registry.Accounts(p)
	}
	if timeoutSec < 10 {
		timeoutSec = 10
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSec)*time.Second)
	defer cancel()

	r := runChecks(ctx, accounts, connect.NewFactory(cfg), strings.ToUpper(strings.TrimSpace(coin)), os.Stdout)
	r.Mode = cfg.Mode
	printSummary(os.Stdout, r)
	if outJSONPath != "" {
		if err := writeReport(outJSONPath, r); err != nil {
			fatal(err.Error())
		}
	}
	if r.failed() > 0 {
		os.Exit(1)
	}
}

// runChecks probes every account with read-only calls. No order is placed.
func runChecks(ctx context.Context, accounts []core.Account, factory exchange.Factory, coin string, out io.Writer) report {
	r := report{StartedAt: time.Now().UTC(), Coin: coin}
	for _, acct := range accounts {
		run := func(name string, fn func() (string, error)) {
			start := time.Now()
			detail, err := fn()
			cr := checkResult{
				Account:    acct.Tag(),
				Name:       name,
				DurationMs: time.Since(start).Milliseconds(),
				Detail:     detail,
				Status:     statusPass,
			}
			if err != nil {
				cr.Status = statusFail
				cr.Error = strings.ReplaceAll(err.Error(), "\n", "; ")
			}
			r.Checks = append(r.Checks, cr)
			if cr.Status == statusPass {
				fmt.Fprintf(out, "[PASS] %s %s (%dms)", cr.Account, name, cr.DurationMs)
				if cr.Detail != "" {
					fmt.Fprintf(out, " - %s", cr.Detail)
				}
				fmt.Fprintln(out)
			} else {
				fmt.Fprintf(out, "[FAIL] %s %s (%dms) - %s\n", cr.Account, name, cr.DurationMs, cr.Error)
			}
		}

		ex, err := factory(acct)
		if err != nil {
			run("connect", func() (string, error) { return "", err })
			continue
		}
		run("price", func() (string, error) {
			price, err := ex.Price(ctx, coin)
			if err != nil {
				return "", err
			}
			return "price=" + price.String(), nil
		})
		run("rules", func() (string, error) {
			rules, err := ex.Rules(ctx, coin)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("minQty=%s qtyStep=%s minNotional=%s", rules.MinQty, rules.QtyStep, rules.MinNotional), nil
		})
		run("balances", func() (string, error) {
			balances, err := ex.Balances(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("assets=%d usdt=%s", len(balances), exchange.FindBalance(balances, core.QuoteAsset).Available), nil
		})
		run("trades", func() (string, error) {
			trades, err := ex.RecentTrades(ctx, coin, core.DefaultTradeLimit(acct.Provider))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("fills=%d", len(trades)), nil
		})
		_ = ex.Close()
	}
	r.FinishedAt = time.Now().UTC()
	return r
}

func printSummary(out io.Writer, r report) {
	fmt.Fprintf(out, "\nsummary mode=%s coin=%s pass=%d fail=%d duration=%s\n",
		r.Mode,
		r.Coin,
		len(r.Checks)-r.failed(),
		r.failed(),
		r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
	)
}

func writeReport(path string, r report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, strings.TrimSpace(msg))
	os.Exit(1)
}
