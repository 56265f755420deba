package money

import (
	"math/big"
	"sync"
)

// Amounts are int64 micro-units: 1.0 unit of stake == 1_000_000.
const (
	DecimalPrecision = 6
	Scale            = 1_000_000
)

// BpsDenominator is the basis-point denominator for fee math.
const BpsDenominator = 10_000

// Intermediate products of two int64 amounts need 128 bits; big.Ints are
// pooled to keep the hot settlement path allocation-free.
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0)
	int128Pool.Put(v)
}

// MulDivFloor computes a * b / denom with the 128-bit intermediate and
// truncation toward zero. Truncation only removes value, never adds — the
// residual dust stays in the pool.
func MulDivFloor(a, b, denom int64) int64 {
	num := getInt128()
	num.Mul(big.NewInt(a), big.NewInt(b))

	quo := getInt128()
	quo.Quo(num, big.NewInt(denom))
	result := quo.Int64()

	putInt128(num)
	putInt128(quo)

	return result
}

// FeeCut returns floor(total * bps / 10000).
func FeeCut(total, bps int64) int64 {
	return MulDivFloor(total, bps, BpsDenominator)
}
