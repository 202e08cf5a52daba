package command

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"trade-manager/internal/core"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNoticeTest
	KindBuy
	KindSell
	KindShowTrades
	KindShowPnL
	KindShowBalances
	KindShowBalancesAll
	KindHelp
)

// Command is one parsed operator instruction.
type Command struct {
	Kind   Kind
	Coin   string
	Amount decimal.Decimal
}

// UsageError carries the hint shown for a malformed command.
type UsageError struct {
	Hint string
}

func (e *UsageError) Error() string { return e.Hint }

func (e *UsageError) Unwrap() error { return core.ErrUsage }

const (
	hintBuy          = "format: buy.COIN.value"
	hintInvalidValue = "invalid value"
	hintSell         = "format: sell.COIN"
	hintShowTrades   = "format: show_trx.COIN"
	hintShowPnL      = "format: show_pnl.COIN"
)

// Parse reads verb(.arg)* text. Unknown verbs yield KindUnknown without error.
func Parse(text string) (Command, error) {
	text = strings.TrimSpace(text)
	switch text {
	case "notice_test":
		return Command{Kind: KindNoticeTest}, nil
	case "show_bal":
		return Command{Kind: KindShowBalances}, nil
	case "show_bal_all":
		return Command{Kind: KindShowBalancesAll}, nil
	case "help", "명령어":
		return Command{Kind: KindHelp}, nil
	}
	verb, _, _ := strings.Cut(text, ".")
	parts := strings.Split(text, ".")
	switch verb {
	case "buy":
		if len(parts) != 3 {
			return Command{}, &UsageError{Hint: hintBuy}
		}
		coin, err := parseCoin(parts[1], hintBuy)
		if err != nil {
			return Command{}, err
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(parts[2]))
		if err != nil || amount.Sign() <= 0 {
			return Command{}, &UsageError{Hint: hintInvalidValue}
		}
		return Command{Kind: KindBuy, Coin: coin, Amount: amount}, nil
	case "sell":
		return coinCommand(KindSell, parts, hintSell)
	case "show_trx":
		return coinCommand(KindShowTrades, parts, hintShowTrades)
	case "show_pnl":
		return coinCommand(KindShowPnL, parts, hintShowPnL)
	}
	return Command{Kind: KindUnknown}, nil
}

func coinCommand(kind Kind, parts []string, hint string) (Command, error) {
	if len(parts) != 2 {
		return Command{}, &UsageError{Hint: hint}
	}
	coin, err := parseCoin(parts[1], hint)
	if err != nil {
		return Command{}, err
	}
	return Command{Kind: kind, Coin: coin}, nil
}

func parseCoin(raw, hint string) (string, error) {
	coin := strings.ToUpper(strings.TrimSpace(raw))
	if coin == "" {
		return "", &UsageError{Hint: hint}
	}
	for _, r := range coin {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", &UsageError{Hint: fmt.Sprintf("%s (invalid coin %q)", hint, raw)}
		}
	}
	return coin, nil
}
