package bybit

import (
	"errors"
	"fmt"

	"trade-manager/internal/core"
)

var apiErrorCodeKinds = map[int]error{
	170121: core.ErrSymbolInfoNotFound,
	170131: core.ErrInsufficientBalance,
	170136: core.ErrQuantityTooSmall,
	170140: core.ErrAmountTooSmall,
}

func classifyAPIError(apiErr APIError) error {
	kind, ok := apiErrorCodeKinds[apiErr.Code]
	if !ok {
		return apiErr
	}
	return errors.Join(apiErr, kind)
}

func asOrderRejected(err error) error {
	if err == nil || errors.Is(err, core.ErrOrderRejected) {
		return err
	}
	return fmt.Errorf("%w: %w", core.ErrOrderRejected, err)
}
