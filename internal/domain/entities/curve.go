package entities

import (
	"math/big"
)

const bpsDenominator = 10000

// RateScale is the fixed-point scale of vault exchange rates
var RateScale = big.NewInt(1e18)

// Curve prices one direction of a pool. Implementations are limited to the
// three venue kinds of this package.
type Curve interface {
	// AmountOut is the exact, unrounded output for amountIn.
	AmountOut(amountIn *big.Int) *big.Rat
	// SpotPrice is the marginal output per unit of input before the trade, fee excluded.
	SpotPrice() *big.Rat
	// ReserveOut is the output-side balance, nil for vaults.
	ReserveOut() *big.Int
	// Authoritative reports whether every input of the curve came from a verified read.
	Authoritative() bool
	Kind() VenueKind
}

type constantProductCurve struct {
	reserveIn  *big.Int
	reserveOut *big.Int
	feeBps     uint64
}

// amountOut = reserveOut - reserveIn*reserveOut / (reserveIn + amountIn*(1-fee))
func (c *constantProductCurve) AmountOut(amountIn *big.Int) *big.Rat {
	inAfterFee := afterFee(amountIn, c.feeBps)
	denominator := new(big.Rat).Add(new(big.Rat).SetInt(c.reserveIn), inAfterFee)
	out := new(big.Rat).Mul(new(big.Rat).SetInt(c.reserveOut), inAfterFee)
	return out.Quo(out, denominator)
}

func (c *constantProductCurve) SpotPrice() *big.Rat {
	return new(big.Rat).SetFrac(c.reserveOut, c.reserveIn)
}

func (c *constantProductCurve) ReserveOut() *big.Int { return c.reserveOut }
func (c *constantProductCurve) Authoritative() bool  { return true }
func (c *constantProductCurve) Kind() VenueKind      { return ConstantProduct }

type weightedCurve struct {
	balanceIn  *big.Int
	balanceOut *big.Int
	weightIn   uint64
	weightOut  uint64
	feeBps     uint64
}

// amountOut = balanceOut * (1 - (balanceIn / (balanceIn + amountIn*(1-fee)))^(weightIn/weightOut))
func (c *weightedCurve) AmountOut(amountIn *big.Int) *big.Rat {
	inAfterFee := afterFee(amountIn, c.feeBps)
	balanceIn := new(big.Rat).SetInt(c.balanceIn)
	base := new(big.Rat).Quo(balanceIn, new(big.Rat).Add(balanceIn, inAfterFee))

	exponent := new(big.Rat).SetFrac64(int64(c.weightIn), int64(c.weightOut))
	power := powRatUp(base, exponent)

	complement := new(big.Rat).Sub(big.NewRat(1, 1), power)
	if complement.Sign() <= 0 {
		return new(big.Rat)
	}
	return complement.Mul(complement, new(big.Rat).SetInt(c.balanceOut))
}

// SpotPrice = (balanceOut / weightOut) / (balanceIn / weightIn)
func (c *weightedCurve) SpotPrice() *big.Rat {
	num := new(big.Int).Mul(c.balanceOut, new(big.Int).SetUint64(c.weightIn))
	den := new(big.Int).Mul(c.balanceIn, new(big.Int).SetUint64(c.weightOut))
	return new(big.Rat).SetFrac(num, den)
}

func (c *weightedCurve) ReserveOut() *big.Int { return c.balanceOut }
func (c *weightedCurve) Authoritative() bool  { return true }
func (c *weightedCurve) Kind() VenueKind      { return WeightedPool }

// powRatUp raises base (0 < base <= 1) to exponent. Integer exponents are
// exact. Fractional ones are evaluated as exp(exponent*ln(base)) at powPrec
// bits and then raised by 2^-powSlack, so an output derived from the result
// sits below the true curve by far less than one unit.
func powRatUp(base, exponent *big.Rat) *big.Rat {
	if exponent.IsInt() {
		n := exponent.Num()
		num := new(big.Int).Exp(base.Num(), n, nil)
		den := new(big.Int).Exp(base.Denom(), n, nil)
		return new(big.Rat).SetFrac(num, den)
	}

	if base.Sign() <= 0 {
		return new(big.Rat)
	}
	b := newFloat().SetRat(base)
	y := newFloat().SetRat(exponent)
	y.Mul(y, lnFloat(b))

	p := expFloat(y)
	p.Add(p, newFloat().SetMantExp(newFloat().SetInt64(1), -powSlack))
	if one := newFloat().SetInt64(1); p.Cmp(one) > 0 {
		p = one
	}
	r, _ := p.Rat(nil)
	return r
}

const (
	powPrec  = 512
	powSlack = 400
)

func newFloat() *big.Float {
	return new(big.Float).SetPrec(powPrec)
}

// lnFloat returns ln(x) for x > 0 as ln(m) + k*ln(2), where x = m * 2^k and
// 0.5 <= m < 1.
func lnFloat(x *big.Float) *big.Float {
	m := newFloat()
	k := x.MantExp(m)
	result := lnMantissa(m)
	if k != 0 {
		ln2 := lnMantissa(newFloat().SetFloat64(0.5))
		ln2.Neg(ln2)
		result.Add(result, ln2.Mul(ln2, newFloat().SetInt64(int64(k))))
	}
	return result
}

// lnMantissa evaluates ln(m) = 2*atanh((m-1)/(m+1)). For m in [0.5, 1) the
// series argument stays within [-1/3, 0).
func lnMantissa(m *big.Float) *big.Float {
	one := newFloat().SetInt64(1)
	z := newFloat().Sub(m, one)
	z.Quo(z, newFloat().Add(m, one))
	z2 := newFloat().Mul(z, z)
	eps := newFloat().SetMantExp(one, -powPrec)

	sum := newFloat().Set(z)
	power := newFloat().Set(z)
	for k := int64(3); ; k += 2 {
		power.Mul(power, z2)
		term := newFloat().Quo(power, newFloat().SetInt64(k))
		if term.Sign() == 0 || newFloat().Abs(term).Cmp(eps) < 0 {
			break
		}
		sum.Add(sum, term)
	}
	return sum.Mul(sum, newFloat().SetInt64(2))
}

// expFloat halves y until |y| < 2^-8, sums the Taylor series and squares
// the result back.
func expFloat(y *big.Float) *big.Float {
	one := newFloat().SetInt64(1)
	half := newFloat().SetFloat64(0.5)
	limit := newFloat().SetMantExp(one, -8)
	eps := newFloat().SetMantExp(one, -powPrec)

	r := newFloat().Set(y)
	squarings := 0
	for newFloat().Abs(r).Cmp(limit) > 0 {
		r.Mul(r, half)
		squarings++
	}

	sum := newFloat().Set(one)
	term := newFloat().Set(one)
	for k := int64(1); ; k++ {
		term.Mul(term, r)
		term.Quo(term, newFloat().SetInt64(k))
		if term.Sign() == 0 || newFloat().Abs(term).Cmp(eps) < 0 {
			break
		}
		sum.Add(sum, term)
	}
	for i := 0; i < squarings; i++ {
		sum.Mul(sum, sum)
	}
	return sum
}

type vaultCurve struct {
	rate          *big.Rat
	authoritative bool
}

func newVaultCurve(assetsPerShare *big.Int, d Direction, authoritative bool) *vaultCurve {
	rate := new(big.Rat).SetFrac(assetsPerShare, RateScale)
	if d == Wrap {
		rate.Inv(rate)
	}
	return &vaultCurve{rate: rate, authoritative: authoritative}
}

// amountOut = amountIn * exchangeRate
func (c *vaultCurve) AmountOut(amountIn *big.Int) *big.Rat {
	return new(big.Rat).Mul(new(big.Rat).SetInt(amountIn), c.rate)
}

func (c *vaultCurve) SpotPrice() *big.Rat  { return new(big.Rat).Set(c.rate) }
func (c *vaultCurve) ReserveOut() *big.Int { return nil }
func (c *vaultCurve) Authoritative() bool  { return c.authoritative }
func (c *vaultCurve) Kind() VenueKind      { return WrapVault }

func afterFee(amountIn *big.Int, feeBps uint64) *big.Rat {
	r := new(big.Rat).SetInt(amountIn)
	return r.Mul(r, big.NewRat(int64(bpsDenominator-feeBps), bpsDenominator))
}

// FloorRat rounds a non-negative rational toward zero
func FloorRat(r *big.Rat) *big.Int {
	return new(big.Int).Quo(r.Num(), r.Denom())
}
