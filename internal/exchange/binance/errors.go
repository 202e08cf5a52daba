package binance

import (
	"errors"
	"fmt"
	"strings"

	"trade-manager/internal/core"
)

const (
	apiCodeFilterFailure    = -1013
	apiCodeInvalidSymbol    = -1121
	apiCodeNewOrderRejected = -2010
)

var apiErrorMessageKinds = map[string]error{
	"account has insufficient balance for requested action.": core.ErrInsufficientBalance,
	"balance is insufficient.":                               core.ErrInsufficientBalance,
	"invalid symbol.":                                        core.ErrSymbolInfoNotFound,
	"filter failure: lot_size":                               core.ErrQuantityTooSmall,
	"filter failure: min_notional":                           core.ErrAmountTooSmall,
	"filter failure: notional":                               core.ErrAmountTooSmall,
}

func wrapAPIError(code int, msg string) error {
	return classifyAPIError(APIError{Code: code, Msg: msg})
}

func classifyAPIError(apiErr APIError) error {
	kinds := classifyAPIErrorKinds(apiErr)
	if len(kinds) == 0 {
		return apiErr
	}
	errChain := make([]error, 0, 1+len(kinds))
	errChain = append(errChain, apiErr)
	errChain = append(errChain, kinds...)
	return errors.Join(errChain...)
}

func classifyAPIErrorKinds(apiErr APIError) []error {
	kinds := make([]error, 0, 2)
	normalizedMsg := normalizeAPIErrorMsg(apiErr.Msg)

	switch apiErr.Code {
	case apiCodeInvalidSymbol:
		kinds = appendErrorKind(kinds, core.ErrSymbolInfoNotFound)
	case apiCodeNewOrderRejected, apiCodeFilterFailure:
		kinds = appendErrorKind(kinds, core.ErrOrderRejected)
	}

	if kind, ok := apiErrorMessageKinds[normalizedMsg]; ok {
		kinds = appendErrorKind(kinds, kind)
	}

	return kinds
}

func appendErrorKind(kinds []error, kind error) []error {
	if kind == nil {
		return kinds
	}
	for _, existing := range kinds {
		if existing == kind {
			return kinds
		}
	}
	return append(kinds, kind)
}

func normalizeAPIErrorMsg(msg string) string {
	return strings.ToLower(strings.TrimSpace(msg))
}

// asOrderRejected marks any order placement failure as rejected, keeping the cause.
func asOrderRejected(err error) error {
	if err == nil || errors.Is(err, core.ErrOrderRejected) {
		return err
	}
	return fmt.Errorf("%w: %w", core.ErrOrderRejected, err)
}

func AsAPIError(err error) (APIError, bool) {
	if err == nil {
		return APIError{}, false
	}
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		return APIError{}, false
	}
	return apiErr, true
}
