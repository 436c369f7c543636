package fixed

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"
)

// FracBits is the number of fractional bits in a Fixed64 (Q32.32).
const FracBits = 32

const (
	one      = int64(1) << FracBits
	fracMask = uint64(1)<<FracBits - 1
)

var (
	ErrDivByZero = errors.New("fixed: division by zero")
	ErrOverflow  = errors.New("fixed: overflow")
	ErrSyntax    = errors.New("fixed: invalid decimal")
)

// Fixed64 is a signed Q32.32 fixed-point decimal. The raw int64 is the
// canonical representation: equal raws are equal values on every platform.
type Fixed64 struct {
	raw int64
}

var (
	Zero = Fixed64{}
	One  = Fixed64{raw: one}
)

func FromRaw(raw int64) Fixed64 { return Fixed64{raw: raw} }

// FromInt converts an integer. Values outside the 32-bit integer range wrap.
func FromInt(n int32) Fixed64 { return Fixed64{raw: int64(n) << FracBits} }

func (f Fixed64) Raw() int64        { return f.raw }
func (f Fixed64) IsZero() bool      { return f.raw == 0 }
func (f Fixed64) Neg() Fixed64      { return Fixed64{raw: -f.raw} }
func (f Fixed64) Cmp(g Fixed64) int { return cmpInt(f.raw, g.raw) }

// Add and Sub wrap on overflow like the underlying int64.
func (f Fixed64) Add(g Fixed64) Fixed64 { return Fixed64{raw: f.raw + g.raw} }
func (f Fixed64) Sub(g Fixed64) Fixed64 { return Fixed64{raw: f.raw - g.raw} }

// CheckedMul returns f*g truncated toward zero.
func (f Fixed64) CheckedMul(g Fixed64) (Fixed64, error) {
	neg := (f.raw < 0) != (g.raw < 0)
	hi, lo := bits.Mul64(absU(f.raw), absU(g.raw))
	// shift the 128-bit product right by FracBits
	if hi>>FracBits != 0 {
		return Zero, ErrOverflow
	}
	mag := hi<<(64-FracBits) | lo>>FracBits
	return fromMagnitude(mag, neg)
}

// CheckedDiv returns f/g truncated toward zero.
func (f Fixed64) CheckedDiv(g Fixed64) (Fixed64, error) {
	if g.raw == 0 {
		return Zero, ErrDivByZero
	}
	neg := (f.raw < 0) != (g.raw < 0)
	a, b := absU(f.raw), absU(g.raw)
	// numerator is a << FracBits as a 128-bit value
	hi, lo := a>>(64-FracBits), a<<FracBits
	if hi >= b {
		return Zero, ErrOverflow
	}
	q, _ := bits.Div64(hi, lo, b)
	return fromMagnitude(q, neg)
}

func fromMagnitude(mag uint64, neg bool) (Fixed64, error) {
	if neg {
		if mag > 1<<63 {
			return Zero, ErrOverflow
		}
		return Fixed64{raw: int64(-mag)}, nil
	}
	if mag > math.MaxInt64 {
		return Zero, ErrOverflow
	}
	return Fixed64{raw: int64(mag)}, nil
}

// String renders the exact decimal expansion. Every Q32.32 fraction has a
// finite decimal form of at most 32 digits.
func (f Fixed64) String() string {
	mag := absU(f.raw)
	var sb strings.Builder
	if f.raw < 0 {
		sb.WriteByte('-')
	}
	sb.WriteString(strconv.FormatUint(mag>>FracBits, 10))
	frac := mag & fracMask
	if frac == 0 {
		return sb.String()
	}
	sb.WriteByte('.')
	for frac != 0 {
		frac *= 10
		sb.WriteByte(byte('0' + frac>>FracBits))
		frac &= fracMask
	}
	return sb.String()
}

func (f Fixed64) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

func (f *Fixed64) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Parse reads a decimal such as "-12.375". Fractional digits beyond what
// Q32.32 can hold are truncated toward zero.
func Parse(s string) (Fixed64, error) {
	str := strings.TrimSpace(s)
	neg := false
	switch {
	case strings.HasPrefix(str, "-"):
		neg = true
		str = str[1:]
	case strings.HasPrefix(str, "+"):
		str = str[1:]
	}
	intPart, fracPart, hasDot := strings.Cut(str, ".")
	if intPart == "" && (!hasDot || fracPart == "") {
		return Zero, fmt.Errorf("parse %q: %w", s, ErrSyntax)
	}
	var whole uint64
	if intPart != "" {
		n, err := strconv.ParseUint(intPart, 10, 64)
		if err != nil || n > math.MaxInt32+1 {
			return Zero, fmt.Errorf("parse %q: %w", s, ErrSyntax)
		}
		whole = n
	}
	var frac uint64
	if fracPart != "" {
		if len(fracPart) > 19 {
			fracPart = fracPart[:19]
		}
		num, err := strconv.ParseUint(fracPart, 10, 64)
		if err != nil {
			return Zero, fmt.Errorf("parse %q: %w", s, ErrSyntax)
		}
		den := uint64(1)
		for i := 0; i < len(fracPart); i++ {
			den *= 10
		}
		// frac = num * 2^32 / den, num < den so the quotient fits in 32 bits
		hi, lo := bits.Mul64(num, 1<<FracBits)
		frac, _ = bits.Div64(hi, lo, den)
	}
	mag := whole<<FracBits | frac
	v, err := fromMagnitude(mag, neg)
	if err != nil {
		return Zero, fmt.Errorf("parse %q: %w", s, err)
	}
	return v, nil
}

// MustParse is Parse for constants; it panics on malformed input.
func MustParse(s string) Fixed64 {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func absU(n int64) uint64 {
	if n < 0 {
		return uint64(-n)
	}
	return uint64(n)
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
