package model

import (
	"math/big"
	"strings"
)

// FormatAmount renders a native amount with the given decimals.
func FormatAmount(value uint64, decimals uint8) string {
	v := new(big.Int).SetUint64(value)
	if decimals == 0 {
		return v.String()
	}
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	text := new(big.Rat).SetFrac(v, denom).FloatString(int(decimals))
	text = strings.TrimRight(text, "0")
	return strings.TrimSuffix(text, ".")
}
