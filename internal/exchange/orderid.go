package exchange

import (
	"strings"

	"github.com/google/uuid"
)

const maxClientOrderIDLen = 36

// NewClientOrderID returns prefix-<random hex> capped at 36 characters, the
// shortest client id limit among the supported providers.
func NewClientOrderID(prefix string) string {
	if prefix == "" {
		prefix = "tm"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	maxSuffix := maxClientOrderIDLen - 1 - len(prefix)
	if maxSuffix < 8 {
		prefix = prefix[:maxClientOrderIDLen-1-8]
		maxSuffix = 8
	}
	if len(suffix) > maxSuffix {
		suffix = suffix[:maxSuffix]
	}
	return prefix + "-" + suffix
}
