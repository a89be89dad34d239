package addresses

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidAddress marks input that fails canonical address validation.
// It is detected locally, before any store round trip.
var ErrInvalidAddress = errors.New("invalid ethereum address")

// Normalize validates an Ethereum address and returns its canonical form:
// 0x prefix plus 40 lowercase hex digits. Normalize is idempotent.
func Normalize(value string) (string, error) {
	addr := strings.TrimSpace(value)
	if !strings.HasPrefix(addr, "0x") || !common.IsHexAddress(addr) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, value)
	}
	return strings.ToLower(addr), nil
}

// NormalizeAll normalizes a batch, silently dropping invalid entries and
// deduplicating the survivors. Order of first occurrence is preserved.
func NormalizeAll(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, raw := range values {
		addr, err := Normalize(raw)
		if err != nil {
			continue
		}
		if !seen[addr] {
			seen[addr] = true
			out = append(out, addr)
		}
	}
	return out
}
