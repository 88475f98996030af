package program

import (
	"math/big"
	"strings"
	"testing"
)

func TestFeltFromHex(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
	}{
		{"0x0", false},
		{"0x1", false},
		{"0x000001", false},
		{"0X2a", false},
		{PrimeHex, true},
		{"0x800000000000011000000000000000000000000000000000000000000000000", false},
		{"7", true},
		{"0x", true},
		{"0xzz", true},
		{"0x-1", true},
		{"0x+1", true},
		{"", true},
	}
	for _, c := range cases {
		_, err := FeltFromHex(c.in)
		if (err != nil) != c.wantErr {
			t.Errorf("FeltFromHex(%q) err = %v, wantErr = %v", c.in, err, c.wantErr)
		}
	}
}

func TestFeltHexCanonical(t *testing.T) {
	f, err := FeltFromHex("0x0000ff")
	if err != nil {
		t.Fatal(err)
	}
	if got := f.Hex(); got != "0xff" {
		t.Fatalf("Hex() = %q, want minimal form 0xff", got)
	}
	if got := NewFelt(0).Hex(); got != "0x0" {
		t.Fatalf("zero Hex() = %q, want 0x0", got)
	}
}

func TestFeltFromBytesReduces(t *testing.T) {
	over := new(big.Int).Add(Prime(), big.NewInt(5))
	f := FeltFromBytes(over.Bytes())
	if got, _ := f.Uint64(); got != 5 {
		t.Fatalf("FeltFromBytes(prime+5) = %s, want 0x5", f.Hex())
	}
	if !FeltFromBytes(nil).IsZero() {
		t.Fatal("FeltFromBytes(nil) should be zero")
	}
}

func TestFeltEqualNil(t *testing.T) {
	var a *Felt
	if !a.Equal(nil) {
		t.Error("nil.Equal(nil) should be true")
	}
	if a.Equal(NewFelt(0)) {
		t.Error("nil.Equal(zero) should be false")
	}
	if !NewFelt(3).Equal(NewFelt(3)) {
		t.Error("3.Equal(3) should be true")
	}
}

func validProgram() *Program {
	return &Program{
		Instructions: []Instruction{
			{Op: AssertEq, Dst: Operand{AP, 0}, Src: Operand{FP, -3}, Imm: NewFelt(7)},
			{Op: AddAp, Imm: NewFelt(1)},
			{Op: Jump, Dst: Operand{AP, 0}, Src: Operand{AP, 0}},
			{Op: Ret},
		},
		Relocations: []Relocation{{Site: 2, Target: 0}},
		Hints:       []Hint{{PC: 1, Code: HintCodes[0]}},
		Builtins:    []string{"output", "range_check"},
		Entrypoint:  0,
	}
}

func TestValidateAccepts(t *testing.T) {
	if err := validProgram().Validate(); err != nil {
		t.Fatalf("valid program rejected: %v", err)
	}
	empty := &Program{Entrypoint: -1}
	if err := empty.Validate(); err != nil {
		t.Fatalf("empty program rejected: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Program)
		want   string
	}{
		{"reloc target oob", func(p *Program) { p.Relocations[0].Target = 9 }, "target"},
		{"reloc site oob", func(p *Program) { p.Relocations[0].Site = -1 }, "site"},
		{"reloc on ret", func(p *Program) { p.Relocations[0].Site = 3 }, "no target"},
		{"missing reloc", func(p *Program) { p.Relocations = nil }, "no relocation"},
		{"dup reloc", func(p *Program) { p.Relocations = append(p.Relocations, Relocation{2, 1}) }, "duplicate"},
		{"hint pc oob", func(p *Program) { p.Hints[0].PC = 4 }, "hint pc"},
		{"unknown hint", func(p *Program) { p.Hints[0].Code = "import os" }, "hint code"},
		{"unknown builtin", func(p *Program) { p.Builtins[0] = "segment_arena" }, "builtin"},
		{"dup builtin", func(p *Program) { p.Builtins = []string{"output", "output"} }, "duplicate builtin"},
		{"entrypoint oob", func(p *Program) { p.Entrypoint = 4 }, "entrypoint"},
		{"imm on ret", func(p *Program) { p.Instructions[3].Imm = NewFelt(1) }, "immediate"},
		{"add_ap without imm", func(p *Program) { p.Instructions[1].Imm = nil }, "missing its immediate"},
		{"bad opcode", func(p *Program) { p.Instructions[0].Op = Opcode(42) }, "invalid opcode"},
	}
	for _, c := range cases {
		p := validProgram()
		c.mutate(p)
		err := p.Validate()
		if err == nil {
			t.Errorf("%s: Validate accepted a broken program", c.name)
			continue
		}
		if !strings.Contains(err.Error(), c.want) {
			t.Errorf("%s: error %q does not mention %q", c.name, err, c.want)
		}
	}
}

func TestProgramEqual(t *testing.T) {
	a, b := validProgram(), validProgram()
	if !a.Equal(b) {
		t.Fatal("identical programs compare unequal")
	}
	b.Instructions[0].Imm = NewFelt(8)
	if a.Equal(b) {
		t.Fatal("programs with different immediates compare equal")
	}

	nilSlices := &Program{Entrypoint: -1}
	emptySlices := &Program{
		Instructions: []Instruction{},
		Relocations:  []Relocation{},
		Hints:        []Hint{},
		Builtins:     []string{},
		Entrypoint:   -1,
	}
	if !nilSlices.Equal(emptySlices) {
		t.Fatal("nil and empty slices should compare equal")
	}
}

func TestOpcodeShape(t *testing.T) {
	for op := Opcode(0); op < NumOpcodes; op++ {
		if op.HasTarget() && op.AllowsImm() {
			t.Errorf("%s both targets and takes an immediate", op)
		}
	}
	if !Jump.HasTarget() || Ret.HasTarget() {
		t.Error("target predicate wrong for jump/ret")
	}
	if !AddAp.RequiresImm() || AssertEq.RequiresImm() {
		t.Error("immediate predicate wrong for add_ap/assert_eq")
	}
}
