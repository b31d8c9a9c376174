package stableswap

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCalcDBalancedEqualsSum(t *testing.T) {
	d, ok := CalcD(1_000_000_000, 1_000_000_000, AmpCoefficient)
	require.True(t, ok)
	require.Equal(t, uint64(2_000_000_000), d)
}

func TestCalcDConvergesForImbalancedReserves(t *testing.T) {
	x, y := uint64(1_020_000_000), uint64(990_000_000)
	d, ok := CalcD(x, y, AmpCoefficient)
	require.True(t, ok)
	require.Equal(t, uint64(2_009_979_643), d)

	sum := float64(x + y)
	require.GreaterOrEqual(t, float64(d), 0.99*sum)
	require.LessOrEqual(t, d, x+y)
}

func TestCalcDBounds(t *testing.T) {
	cases := [][2]uint64{
		{1_000_000, 1_000_000},
		{1_000_000_000, 1_200_000_000},
		{5_000_000_000_000, 4_000_000_000_000},
	}
	for _, c := range cases {
		d, ok := CalcD(c[0], c[1], AmpCoefficient)
		require.True(t, ok)
		require.GreaterOrEqual(t, float64(d), 0.99*float64(c[0]+c[1]))
		require.LessOrEqual(t, d, c[0]+c[1])
	}
}

func TestCalcDRejectsEmptySide(t *testing.T) {
	for _, c := range [][2]uint64{{0, 1_000_000_000}, {1_000_000_000, 0}, {0, 0}} {
		d, ok := CalcD(c[0], c[1], AmpCoefficient)
		require.False(t, ok, "x=%d y=%d", c[0], c[1])
		require.Zero(t, d)
	}
}

func TestLPMintedOneSidedFirstDeposit(t *testing.T) {
	_, err := LPMinted(0, 0, 0, 1_000_000_000, 0, 6, 6)
	require.ErrorIs(t, err, ErrInvariant)
}

func TestCalcDSaturatesAtTopOfRange(t *testing.T) {
	d, ok := CalcD(1<<63, 1<<63, AmpCoefficient)
	require.True(t, ok)
	require.Equal(t, uint64(math.MaxUint64), d)

	_, ok = CalcD(math.MaxUint64, math.MaxUint64, AmpCoefficient)
	require.False(t, ok)
}

func TestCalcDyRejectsDrainingTrade(t *testing.T) {
	d, _ := CalcD(1_000_000_000, 1_000_000_000, AmpCoefficient)
	_, ok := CalcDy(1_000_000_000, 1_000_000_000, AmpCoefficient, d, 1_000_000_000)
	require.False(t, ok)
	_, ok = CalcDy(1_000_000_000, 1_000_000_000, AmpCoefficient, d, 2_000_000_000)
	require.False(t, ok)
}

func TestCalcDyKnownValue(t *testing.T) {
	d, _ := CalcD(1_000_000_000, 1_000_000_000, AmpCoefficient)
	dy, ok := CalcDy(1_000_000_000, 1_000_000_000, AmpCoefficient, d, 1_000_000)
	require.True(t, ok)
	require.Equal(t, uint64(1_000_091), dy)
}

func TestCalcDyInverseConsistency(t *testing.T) {
	const r = uint64(1_000_000_000)
	d, _ := CalcD(r, r, AmpCoefficient)
	for _, dx := range []uint64{1_000, 100_000, 10_000_000, 100_000_000} {
		dy, ok := CalcDy(r, r, AmpCoefficient, d, dx)
		require.True(t, ok)
		back, ok := CalcDy(r+dy, r-dx, AmpCoefficient, d, dy)
		require.True(t, ok)
		require.InDelta(t, float64(dx), float64(back), 1, "dx=%d", dx)
	}
}

func TestDecimalFactors(t *testing.T) {
	bf, qf, err := DecimalFactors(9, 6)
	require.NoError(t, err)
	require.Equal(t, uint64(1), bf)
	require.Equal(t, uint64(1_000), qf)

	bf, qf, err = DecimalFactors(6, 9)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), bf)
	require.Equal(t, uint64(1), qf)

	bf, qf, err = DecimalFactors(6, 6)
	require.NoError(t, err)
	require.Equal(t, uint64(1), bf)
	require.Equal(t, uint64(1), qf)

	_, _, err = DecimalFactors(0, 30)
	require.Error(t, err)
}

func TestNormalizeOverflow(t *testing.T) {
	_, _, err := Normalize(math.MaxUint64, 1, 0, 9)
	require.Error(t, err)
}

func TestLPMinted(t *testing.T) {
	lp, err := LPMinted(0, 0, 0, 1_000_000_000_000, 1_000_000_000_000, 6, 6)
	require.NoError(t, err)
	require.Equal(t, uint64(2_000_000_000_000), lp)

	lp, err = LPMinted(2_000_000_000_000, 1_000_000_000_000, 1_000_000_000_000, 100_000_000_000, 100_000_000_000, 6, 6)
	require.NoError(t, err)
	require.Equal(t, uint64(200_000_000_000), lp)
}
