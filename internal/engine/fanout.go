package engine

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"trade-manager/internal/core"
	"trade-manager/internal/exchange"
)

type accountResult[T any] struct {
	account core.Account
	value   T
	err     error
}

type accountCall[T any] func(ctx context.Context, ex exchange.Exchange, acct core.Account) (T, error)

// fanOut runs call for every account with at most MaxParallel in flight and
// returns the results in the order of accounts. Errors stay in their slot.
func fanOut[T any](ctx context.Context, m *Manager, accounts []core.Account, call accountCall[T]) []accountResult[T] {
	out := make([]accountResult[T], len(accounts))
	var g errgroup.Group
	g.SetLimit(m.opts.MaxParallel)
	for i, acct := range accounts {
		out[i].account = acct
		g.Go(func() error {
			out[i].value, out[i].err = callAccount(ctx, m, acct, call)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func callAccount[T any](ctx context.Context, m *Manager, acct core.Account, call accountCall[T]) (T, error) {
	var zero T
	ex, err := m.factory(acct)
	if err != nil {
		return zero, err
	}
	defer func() {
		if err := ex.Close(); err != nil {
			m.log.WithFields(logrus.Fields{
				"event":    "adapter_close_failed",
				"provider": acct.Provider,
				"account":  acct.Name,
			}).WithError(err).Warn("close adapter")
		}
	}()
	callCtx, cancel := context.WithTimeout(ctx, m.opts.CallTimeout)
	defer cancel()
	return call(callCtx, ex, acct)
}
