package program

import (
	"fmt"
	"math/big"
	"strings"
)

// PrimeHex is the field modulus of the target VM, 2^251 + 17*2^192 + 1,
// serialized the way the loader expects it in the artifact header.
const PrimeHex = "0x800000000000011000000000000000000000000000000000000000000000001"

var prime = mustPrime()

func mustPrime() *big.Int {
	p, ok := new(big.Int).SetString(strings.TrimPrefix(PrimeHex, "0x"), 16)
	if !ok {
		panic("bad prime constant")
	}
	return p
}

// Prime returns the field modulus. Callers must not mutate the result.
func Prime() *big.Int {
	return prime
}

// Felt is a field element in canonical form, always in [0, prime).
type Felt struct {
	v big.Int
}

func NewFelt(x uint64) *Felt {
	f := &Felt{}
	f.v.SetUint64(x)
	return f
}

// FeltFromBytes interprets b as a big-endian integer reduced modulo the
// prime. Any byte slice, including the empty one, yields a valid felt.
func FeltFromBytes(b []byte) *Felt {
	f := &Felt{}
	f.v.SetBytes(b)
	f.v.Mod(&f.v, prime)
	return f
}

// FeltFromBig reduces x modulo the prime. x is not modified.
func FeltFromBig(x *big.Int) *Felt {
	f := &Felt{}
	f.v.Mod(x, prime)
	if f.v.Sign() < 0 {
		f.v.Add(&f.v, prime)
	}
	return f
}

// FeltFromHex parses a 0x-prefixed hex string into a felt. It fails on a
// missing prefix, empty or non-hex digits, and values >= prime; leading
// zeros are tolerated.
func FeltFromHex(s string) (*Felt, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return nil, fmt.Errorf("felt %q missing 0x prefix", s)
	}
	digits := s[2:]
	if digits == "" {
		return nil, fmt.Errorf("felt %q has no digits", s)
	}
	f := &Felt{}
	// big.Int.SetString tolerates a sign, which is not a hex digit here.
	if strings.ContainsAny(digits, "+-") {
		return nil, fmt.Errorf("felt %q is not hexadecimal", s)
	}
	if _, ok := f.v.SetString(digits, 16); !ok {
		return nil, fmt.Errorf("felt %q is not hexadecimal", s)
	}
	if f.v.Cmp(prime) >= 0 {
		return nil, fmt.Errorf("felt %q is not below the prime", s)
	}
	return f, nil
}

// Hex renders the felt as minimal lowercase 0x-prefixed hex, the canonical
// form used in artifact data words.
func (f *Felt) Hex() string {
	return "0x" + f.v.Text(16)
}

func (f *Felt) Equal(o *Felt) bool {
	if f == nil || o == nil {
		return f == o
	}
	return f.v.Cmp(&o.v) == 0
}

func (f *Felt) IsZero() bool {
	return f.v.Sign() == 0
}

// Uint64 reports the low word and whether the felt fits in 64 bits.
func (f *Felt) Uint64() (uint64, bool) {
	return f.v.Uint64(), f.v.IsUint64()
}

// Big returns a copy of the underlying integer.
func (f *Felt) Big() *big.Int {
	return new(big.Int).Set(&f.v)
}

func (f *Felt) String() string {
	return f.Hex()
}
