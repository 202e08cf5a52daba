package connect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-manager/internal/config"
	"trade-manager/internal/core"
)

func TestDialBuildsProviderAdapters(t *testing.T) {
	cfg := config.ExchangeConfig{RestBaseURL: "https://example.invalid", HTTPTimeoutSec: 5}
	creds := core.Credentials{APIKey: "k", APISecret: "s", Passphrase: "p"}

	for _, p := range core.Providers {
		ex, err := Dial(cfg, core.Account{Provider: p, Name: "main", Credentials: creds})
		require.NoError(t, err)
		assert.Equal(t, string(p), ex.Name())
		require.NoError(t, ex.Close())
	}
}

func TestDialRejectsMissingCredentials(t *testing.T) {
	cfg := config.ExchangeConfig{RestBaseURL: "https://example.invalid"}

	_, err := Dial(cfg, core.Account{Provider: core.Bitget, Name: "main", Credentials: core.Credentials{APIKey: "k", APISecret: "s"}})
	assert.ErrorIs(t, err, core.ErrConfiguration)

	_, err = Dial(cfg, core.Account{Provider: "kraken", Name: "main"})
	assert.ErrorIs(t, err, core.ErrConfiguration)
}
