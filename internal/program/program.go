// Package program defines the typed abstract representation of a VM-loadable
// program: an ordered instruction sequence over a closed opcode set, operand
// register references, relocation entries between instruction offsets, loader
// hints from a fixed vocabulary, builtin requirements and an optional
// entrypoint. The generator constructs these by construction-valid rules; the
// encoder turns them into the loader's JSON artifact.
package program

import "fmt"

type Register uint8

const (
	AP Register = iota
	FP
)

func (r Register) String() string {
	if r == FP {
		return "fp"
	}
	return "ap"
}

// Operand is a register-relative memory reference, [reg + off].
type Operand struct {
	Reg Register
	Off int16
}

type Opcode uint8

const (
	AssertEq Opcode = iota
	AddAp
	Jump
	JumpRel
	Jnz
	Call
	Ret

	NumOpcodes = 7
)

var opcodeNames = [NumOpcodes]string{"assert_eq", "add_ap", "jump", "jump_rel", "jnz", "call", "ret"}

func (op Opcode) String() string {
	if op < NumOpcodes {
		return opcodeNames[op]
	}
	return fmt.Sprintf("opcode(%d)", uint8(op))
}

func (op Opcode) Valid() bool {
	return op < NumOpcodes
}

// HasTarget reports whether instructions of this kind carry a relocation
// entry naming their destination offset.
func (op Opcode) HasTarget() bool {
	switch op {
	case Jump, JumpRel, Jnz, Call:
		return true
	}
	return false
}

// RequiresImm reports whether the immediate operand is mandatory. AssertEq
// takes an optional immediate; every other non-target opcode takes none.
func (op Opcode) RequiresImm() bool {
	return op == AddAp
}

func (op Opcode) AllowsImm() bool {
	return op == AddAp || op == AssertEq
}

// Instruction is one element of the program body. Imm is nil when the
// instruction carries no immediate; target-carrying instructions never have
// one, their destination lives in the matching Relocation entry.
type Instruction struct {
	Op  Opcode
	Dst Operand
	Src Operand
	Imm *Felt
}

func (i Instruction) Equal(o Instruction) bool {
	return i.Op == o.Op && i.Dst == o.Dst && i.Src == o.Src && i.Imm.Equal(o.Imm)
}

// Relocation records that the instruction at offset Site references the
// instruction at offset Target. Both are indices into Instructions.
type Relocation struct {
	Site   int
	Target int
}

// Hint attaches loader-interpreted code to the instruction at offset PC.
// Code is always one of HintCodes.
type Hint struct {
	PC   int
	Code string
}

// BuiltinNames is the closed vocabulary of builtin requirements, in the
// canonical emission order the loader expects.
var BuiltinNames = []string{
	"output",
	"pedersen",
	"range_check",
	"ecdsa",
	"bitwise",
	"ec_op",
	"keccak",
	"poseidon",
}

// HintCodes is the closed vocabulary of hint bodies the loader recognizes.
// Unknown hint code is a load error, so the generator only draws from here.
var HintCodes = []string{
	"memory[ap] = segments.add()",
	"memory[ap] = to_felt_or_relocatable(ids.value)",
	"assert ids.value == 0",
	"vm_enter_scope()",
	"vm_exit_scope()",
}

func BuiltinIndex(name string) int {
	for i, b := range BuiltinNames {
		if b == name {
			return i
		}
	}
	return -1
}

func HintCodeIndex(code string) int {
	for i, c := range HintCodes {
		if c == code {
			return i
		}
	}
	return -1
}

// Program is the structured form of a VM-loadable program. Entrypoint is an
// instruction offset, or -1 when the program declares no main.
type Program struct {
	Instructions []Instruction
	Relocations  []Relocation
	Hints        []Hint
	Builtins     []string
	Entrypoint   int
}

// Validate checks the structural invariants: every relocation site and
// target, hint pc and the entrypoint resolve within the instruction
// sequence, builtins and hint codes come from their vocabularies, and
// operand shapes match their opcodes. Generator output always passes;
// a failure here on a generated program is a harness bug.
func (p *Program) Validate() error {
	n := len(p.Instructions)
	for i, ins := range p.Instructions {
		if !ins.Op.Valid() {
			return fmt.Errorf("instruction %d: invalid opcode %d", i, uint8(ins.Op))
		}
		if ins.Imm != nil && !ins.Op.AllowsImm() {
			return fmt.Errorf("instruction %d: %s carries an immediate", i, ins.Op)
		}
		if ins.Imm == nil && ins.Op.RequiresImm() {
			return fmt.Errorf("instruction %d: %s is missing its immediate", i, ins.Op)
		}
	}
	sites := make(map[int]bool, len(p.Relocations))
	for _, r := range p.Relocations {
		if r.Site < 0 || r.Site >= n {
			return fmt.Errorf("relocation site %d out of range [0,%d)", r.Site, n)
		}
		if r.Target < 0 || r.Target >= n {
			return fmt.Errorf("relocation target %d out of range [0,%d)", r.Target, n)
		}
		if !p.Instructions[r.Site].Op.HasTarget() {
			return fmt.Errorf("relocation site %d is a %s, which takes no target", r.Site, p.Instructions[r.Site].Op)
		}
		if sites[r.Site] {
			return fmt.Errorf("duplicate relocation for site %d", r.Site)
		}
		sites[r.Site] = true
	}
	for i, ins := range p.Instructions {
		if ins.Op.HasTarget() && !sites[i] {
			return fmt.Errorf("instruction %d: %s has no relocation entry", i, ins.Op)
		}
	}
	for _, h := range p.Hints {
		if h.PC < 0 || h.PC >= n {
			return fmt.Errorf("hint pc %d out of range [0,%d)", h.PC, n)
		}
		if HintCodeIndex(h.Code) < 0 {
			return fmt.Errorf("hint pc %d: unknown hint code %q", h.PC, h.Code)
		}
	}
	seen := make(map[string]bool, len(p.Builtins))
	for _, b := range p.Builtins {
		if BuiltinIndex(b) < 0 {
			return fmt.Errorf("unknown builtin %q", b)
		}
		if seen[b] {
			return fmt.Errorf("duplicate builtin %q", b)
		}
		seen[b] = true
	}
	if p.Entrypoint != -1 && (p.Entrypoint < 0 || p.Entrypoint >= n) {
		return fmt.Errorf("entrypoint %d out of range [0,%d)", p.Entrypoint, n)
	}
	return nil
}

// Equal reports structural equality. Nil and empty slices compare equal.
func (p *Program) Equal(o *Program) bool {
	if p == nil || o == nil {
		return p == o
	}
	if len(p.Instructions) != len(o.Instructions) ||
		len(p.Relocations) != len(o.Relocations) ||
		len(p.Hints) != len(o.Hints) ||
		len(p.Builtins) != len(o.Builtins) ||
		p.Entrypoint != o.Entrypoint {
		return false
	}
	for i := range p.Instructions {
		if !p.Instructions[i].Equal(o.Instructions[i]) {
			return false
		}
	}
	for i := range p.Relocations {
		if p.Relocations[i] != o.Relocations[i] {
			return false
		}
	}
	for i := range p.Hints {
		if p.Hints[i] != o.Hints[i] {
			return false
		}
	}
	for i := range p.Builtins {
		if p.Builtins[i] != o.Builtins[i] {
			return false
		}
	}
	return true
}
