package music

import (
	"fmt"
	"strconv"
	"strings"
)

// Proportion is an exact rational number used for musical time.
// The zero value is 0/1.
type Proportion struct {
	num int
	den int
}

// Zero is the empty duration.
var Zero = Proportion{0, 1}

// NewProportion returns i1/i2 with the sign carried by the numerator.
// It panics if i2 is zero.
func NewProportion(i1, i2 int) Proportion {
	if i2 == 0 {
		panic("music: proportion with zero denominator")
	}
	if i2 < 0 {
		i1, i2 = -i1, -i2
	}
	return Proportion{num: i1, den: i2}
}

// Whole returns n/1.
func Whole(n int) Proportion {
	return Proportion{num: n, den: 1}
}

// ParseProportion parses "n/d" or "n".
func ParseProportion(s string) (Proportion, error) {
	s = strings.TrimSpace(s)
	n, d, found := strings.Cut(s, "/")
	i1, err := strconv.Atoi(n)
	if err != nil {
		return Zero, fmt.Errorf("invalid proportion %q: %w", s, err)
	}
	if !found {
		return Whole(i1), nil
	}
	i2, err := strconv.Atoi(d)
	if err != nil {
		return Zero, fmt.Errorf("invalid proportion %q: %w", s, err)
	}
	if i2 == 0 {
		return Zero, fmt.Errorf("invalid proportion %q: zero denominator", s)
	}
	return NewProportion(i1, i2), nil
}

// Num returns the numerator.
func (p Proportion) Num() int { return p.num }

// Den returns the denominator, treating the zero value as 1.
func (p Proportion) Den() int {
	if p.den == 0 {
		return 1
	}
	return p.den
}

// IsZero reports whether p equals zero.
func (p Proportion) IsZero() bool { return p.num == 0 }

// Reduce returns p in lowest terms.
func (p Proportion) Reduce() Proportion {
	d := p.Den()
	g := gcd(abs(p.num), d)
	if g == 0 {
		return Zero
	}
	return Proportion{num: p.num / g, den: d / g}
}

// Add returns p+q without reducing.
func (p Proportion) Add(q Proportion) Proportion {
	return Proportion{num: p.num*q.Den() + q.num*p.Den(), den: p.Den() * q.Den()}
}

// Sub returns p-q without reducing.
func (p Proportion) Sub(q Proportion) Proportion {
	return Proportion{num: p.num*q.Den() - q.num*p.Den(), den: p.Den() * q.Den()}
}

// Mul returns p*q without reducing.
func (p Proportion) Mul(q Proportion) Proportion {
	return Proportion{num: p.num * q.num, den: p.Den() * q.Den()}
}

// Div returns p/q without reducing. It panics if q is zero.
func (p Proportion) Div(q Proportion) Proportion {
	return NewProportion(p.num*q.Den(), p.Den()*q.num)
}

// Cmp compares p and q exactly, returning -1, 0 or 1.
func (p Proportion) Cmp(q Proportion) int {
	l, r := p.num*q.Den(), q.num*p.Den()
	switch {
	case l < r:
		return -1
	case l > r:
		return 1
	}
	return 0
}

// Equal reports whether p and q denote the same rational value.
func (p Proportion) Equal(q Proportion) bool { return p.Cmp(q) == 0 }

// Less reports whether p < q.
func (p Proportion) Less(q Proportion) bool { return p.Cmp(q) < 0 }

// Float64 returns the value as a float.
func (p Proportion) Float64() float64 {
	return float64(p.num) / float64(p.Den())
}

func (p Proportion) String() string {
	if p.Den() == 1 {
		return strconv.Itoa(p.num)
	}
	return fmt.Sprintf("%d/%d", p.num, p.Den())
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func abs(a int) int {
	if a < 0 {
		return -a
	}
	return a
}
