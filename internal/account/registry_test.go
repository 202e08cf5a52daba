package account

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-manager/internal/core"
)

func TestRegistryAllFollowsProviderThenRegistrationOrder(t *testing.T) {
	reg, err := NewRegistry([]core.Account{
		{Provider: core.Bitget, Name: "g1"},
		{Provider: core.Binance, Name: "b2"},
		{Provider: core.Bybit, Name: "y1"},
		{Provider: core.Binance, Name: "b1"},
	})
	require.NoError(t, err)

	var tags []string
	for _, a := range reg.All() {
		tags = append(tags, a.Tag())
	}
	assert.Equal(t, []string{"[BN-b2]", "[BN-b1]", "[BB-y1]", "[BG-g1]"}, tags)
	assert.Equal(t, 4, reg.Len())
}

func TestRegistryFirstWithoutAccounts(t *testing.T) {
	reg, err := NewRegistry([]core.Account{{Provider: core.Binance, Name: "main"}})
	require.NoError(t, err)

	first, err := reg.First(core.Binance)
	require.NoError(t, err)
	assert.Equal(t, "main", first.Name)

	_, err = reg.First(core.Bitget)
	assert.True(t, errors.Is(err, core.ErrConfiguration))
	assert.Empty(t, reg.Accounts(core.Bitget))
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry([]core.Account{
		{Provider: core.Bybit, Name: "main"},
		{Provider: core.Bybit, Name: "main"},
	})
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestRegistryAccountsReturnsCopy(t *testing.T) {
	reg, err := NewRegistry([]core.Account{{Provider: core.Bybit, Name: "main"}})
	require.NoError(t, err)

	accounts := reg.Accounts(core.Bybit)
	accounts[0].Name = "changed"
	assert.Equal(t, "main", reg.Accounts(core.Bybit)[0].Name)
}
