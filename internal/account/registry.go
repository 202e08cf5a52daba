package account

import (
	"fmt"

	"trade-manager/internal/core"
)

// Registry holds the configured accounts grouped by provider in registration order.
// It is read-only after NewRegistry returns.
type Registry struct {
	byProvider map[core.Provider][]core.Account
}

func NewRegistry(accounts []core.Account) (*Registry, error) {
	r := &Registry{byProvider: make(map[core.Provider][]core.Account, len(core.Providers))}
	seen := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		if _, ok := core.ParseProvider(string(a.Provider)); !ok {
			return nil, fmt.Errorf("%w: unknown provider %q", core.ErrConfiguration, a.Provider)
		}
		if a.Name == "" {
			return nil, fmt.Errorf("%w: %s account without name", core.ErrConfiguration, a.Provider)
		}
		key := string(a.Provider) + "/" + a.Name
		if seen[key] {
			return nil, fmt.Errorf("%w: duplicate account %s", core.ErrConfiguration, a.Tag())
		}
		seen[key] = true
		r.byProvider[a.Provider] = append(r.byProvider[a.Provider], a)
	}
	return r, nil
}

// Accounts returns a copy of the accounts of p.
func (r *Registry) Accounts(p core.Provider) []core.Account {
	src := r.byProvider[p]
	out := make([]core.Account, len(src))
	copy(out, src)
	return out
}

// All returns every account in report order: provider order, then registration order.
func (r *Registry) All() []core.Account {
	out := make([]core.Account, 0, r.Len())
	for _, p := range core.Providers {
		out = append(out, r.byProvider[p]...)
	}
	return out
}

// First returns the first registered account of p.
func (r *Registry) First(p core.Provider) (core.Account, error) {
	accounts := r.byProvider[p]
	if len(accounts) == 0 {
		return core.Account{}, fmt.Errorf("%w: no %s accounts configured", core.ErrConfiguration, p.DisplayName())
	}
	return accounts[0], nil
}

func (r *Registry) Len() int {
	n := 0
	for _, accounts := range r.byProvider {
		n += len(accounts)
	}
	return n
}
