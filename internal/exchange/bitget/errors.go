package bitget

import (
	"errors"
	"fmt"

	"trade-manager/internal/core"
)

var apiErrorCodeKinds = map[string]error{
	"40034": core.ErrSymbolInfoNotFound,
	"43012": core.ErrInsufficientBalance,
	"45110": core.ErrAmountTooSmall,
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
