// Package identifier derives the deterministic payment reference attached to
// every outbound payment so that chain and bank confirmations can be matched
// back to the transfer that produced them.
package identifier

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const (
	PrefixProduction  = "PLREF"
	PrefixDevelopment = "PLREFD"
	PrefixRelease     = "PLREFR"
)

// Pattern matches every identifier Generate can return.
var Pattern = regexp.MustCompile(`^(PLREF|PLREFD|PLREFR):[0-9a-f]{40}$`)

var (
	ErrAmountNotNumeric = errors.New("amount is not numeric")
	ErrInvalidAddress   = errors.New("address must be a 0x-prefixed 20 byte hex address")
)

// Prefix maps a deployment environment to its identifier prefix.
func Prefix(env string) string {
	switch env {
	case "development":
		return PrefixDevelopment
	case "release":
		return PrefixRelease
	default:
		return PrefixProduction
	}
}

// payload field order is part of the identifier; do not reorder.
type payload struct {
	To        string `json:"to"`
	Value     string `json:"value"`
	CreatedAt int64  `json:"created_at"`
	Email     string `json:"email"`
}

// Generate returns "<prefix>:<sha1 hex>" for the payment intent. Equal inputs
// always give the same identifier.
func Generate(env, address string, amount interface{}, createdAt time.Time, email string) (string, error) {
	value, err := CanonicalAmount(amount)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(address, "0x") || !common.IsHexAddress(address) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	b, err := json.Marshal(payload{
		To:        address,
		Value:     value,
		CreatedAt: createdAt.UnixMilli(),
		Email:     email,
	})
	if err != nil {
		return "", err
	}
	sum := sha1.Sum(b)
	return Prefix(env) + ":" + hex.EncodeToString(sum[:]), nil
}

// IsPaymentIdentifier reports whether ref was produced by Generate in any
// environment. Any PLREF-prefixed reference counts so that a malformed one
// is never treated as a free manual reference.
func IsPaymentIdentifier(ref string) bool {
	return strings.HasPrefix(ref, PrefixProduction)
}

// CanonicalAmount renders a number-like value as its shortest decimal string,
// so 100, "100", "100.00" and json.Number("1e2") all hash identically.
func CanonicalAmount(amount interface{}) (string, error) {
	var d decimal.Decimal
	switch v := amount.(type) {
	case decimal.Decimal:
		d = v
	case *decimal.Decimal:
		if v == nil {
			return "", ErrAmountNotNumeric
		}
		d = *v
	case string:
		parsed, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return "", fmt.Errorf("%w: %q", ErrAmountNotNumeric, v)
		}
		d = parsed
	case json.Number:
		parsed, err := decimal.NewFromString(v.String())
		if err != nil {
			return "", fmt.Errorf("%w: %q", ErrAmountNotNumeric, v)
		}
		d = parsed
	case int:
		d = decimal.NewFromInt(int64(v))
	case int32:
		d = decimal.NewFromInt32(v)
	case int64:
		d = decimal.NewFromInt(v)
	case uint:
		d = decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(v)), 0)
	case uint32:
		d = decimal.NewFromInt(int64(v))
	case uint64:
		d = decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
	case float32:
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return "", fmt.Errorf("%w: %v", ErrAmountNotNumeric, v)
		}
		d = decimal.NewFromFloat32(v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", fmt.Errorf("%w: %v", ErrAmountNotNumeric, v)
		}
		d = decimal.NewFromFloat(v)
	default:
		return "", fmt.Errorf("%w: %T", ErrAmountNotNumeric, amount)
	}
	return d.String(), nil
}
