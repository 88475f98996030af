// Package gen builds a well-typed program from an arbitrary byte stream.
// Construction is total and deterministic: any input, including the empty
// one, yields a program that satisfies the structural invariants, because
// every offset reference is drawn only from the range already emitted and
// every vocabulary draw is index-bounded. Exhaustion of the stream ends
// construction with whatever has been built so far.
package gen

import (
	"math/big"
	"sort"

	"feltfuzz/internal/bytestream"
	"feltfuzz/internal/program"
)

const (
	DefaultMaxInstructions = 40
	DefaultMaxHints        = 4
	DefaultFeltDepth       = 3
)

type Options struct {
	MaxInstructions int
	MaxHints        int
	FeltDepth       int
}

func (o Options) withDefaults() Options {
	if o.MaxInstructions <= 0 {
		o.MaxInstructions = DefaultMaxInstructions
	}
	if o.MaxHints <= 0 {
		o.MaxHints = DefaultMaxHints
	}
	if o.FeltDepth <= 0 {
		o.FeltDepth = DefaultFeltDepth
	}
	return o
}

// specialFelts are boundary values worth hitting far more often than a
// uniform draw would: field edges, word edges, and small counters.
var specialFelts = []*program.Felt{
	program.NewFelt(0),
	program.NewFelt(1),
	program.NewFelt(2),
	program.NewFelt(3),
	program.NewFelt(0xffff),
	program.NewFelt(1 << 31),
	program.NewFelt(^uint64(0)),
	program.FeltFromBig(primeMinus(1)),
	program.FeltFromBig(primeMinus(2)),
	program.FeltFromBig(halfPrime()),
}

// Generate consumes the stream into a structured program. Instructions are
// appended until the stream is exhausted or the instruction cap is reached;
// relocation targets are chosen among offsets emitted so far, hints and
// builtins are drawn from their closed vocabularies, and the entrypoint,
// when present, is a valid offset.
func Generate(s *bytestream.Stream, opts Options) *program.Program {
	opts = opts.withDefaults()
	p := &program.Program{Entrypoint: -1}

	for !s.Exhausted() && len(p.Instructions) < opts.MaxInstructions {
		genInstruction(s, p, opts)
	}

	genBuiltins(s, p)
	genHints(s, p, opts)

	if len(p.Instructions) > 0 && s.Bool() {
		p.Entrypoint = s.ChooseIndex(len(p.Instructions))
	}
	return p
}

func genInstruction(s *bytestream.Stream, p *program.Program, opts Options) {
	op := program.Opcode(s.ChooseIndex(program.NumOpcodes))
	ins := program.Instruction{Op: op}
	site := len(p.Instructions)

	switch op {
	case program.AssertEq:
		ins.Dst = genOperand(s)
		if s.Bool() {
			ins.Imm = genFelt(s, opts.FeltDepth)
		} else {
			ins.Src = genOperand(s)
		}
	case program.AddAp:
		ins.Imm = genFelt(s, opts.FeltDepth)
	case program.Jnz:
		ins.Dst = genOperand(s)
	}

	p.Instructions = append(p.Instructions, ins)
	if op.HasTarget() {
		p.Relocations = append(p.Relocations, program.Relocation{
			Site:   site,
			Target: s.ChooseIndex(site + 1),
		})
	}
}

func genOperand(s *bytestream.Stream) program.Operand {
	reg := program.AP
	if s.Bool() {
		reg = program.FP
	}
	var off int16
	switch s.ChooseIndex(4) {
	case 0:
		off = 0
	case 1:
		off = int16(s.ChooseIndex(8))
	case 2:
		off = -1 - int16(s.ChooseIndex(8))
	case 3:
		off = int16(s.Uint16())
	}
	return program.Operand{Reg: reg, Off: off}
}

// genFelt draws a field element: usually a boundary value or a short raw
// draw, occasionally the sum of two recursive draws. depth bounds the
// recursion so adversarial inputs cannot build unbounded towers.
func genFelt(s *bytestream.Stream, depth int) *program.Felt {
	if depth <= 0 {
		return specialFelts[0]
	}
	k := s.ChooseIndex(len(specialFelts) + 2)
	switch {
	case k < len(specialFelts):
		return specialFelts[k]
	case k == len(specialFelts):
		return program.FeltFromBytes(s.TakeBytes(8))
	default:
		a := genFelt(s, depth-1)
		b := genFelt(s, depth-1)
		sum := a.Big()
		sum.Add(sum, b.Big())
		return program.FeltFromBig(sum)
	}
}

func genBuiltins(s *bytestream.Stream, p *program.Program) {
	mask := s.Byte()
	for i, name := range program.BuiltinNames {
		if mask>>uint(i)&1 == 1 {
			p.Builtins = append(p.Builtins, name)
		}
	}
}

func genHints(s *bytestream.Stream, p *program.Program, opts Options) {
	n := len(p.Instructions)
	if n == 0 {
		return
	}
	count := s.ChooseIndex(opts.MaxHints + 1)
	taken := make(map[int]bool, count)
	for i := 0; i < count; i++ {
		pc := s.ChooseIndex(n)
		code := program.HintCodes[s.ChooseIndex(len(program.HintCodes))]
		if taken[pc] {
			continue
		}
		taken[pc] = true
		p.Hints = append(p.Hints, program.Hint{PC: pc, Code: code})
	}
	sort.Slice(p.Hints, func(i, j int) bool { return p.Hints[i].PC < p.Hints[j].PC })
}

func primeMinus(d int64) *big.Int {
	return new(big.Int).Sub(program.Prime(), big.NewInt(d))
}

func halfPrime() *big.Int {
	return new(big.Int).Rsh(program.Prime(), 1)
}
