// Package encoding maps between the structured program representation and
// the JSON artifact the VM loader accepts. Encode is total for every
// generator-producible program and deterministic byte for byte; Decode is
// the tolerant inverse, failing with MalformedArtifactError on anything
// that does not conform. The mapping is lossless except for two documented
// fields: compiler_version is a constant stamp and attributes are emitted
// empty and ignored on decode.
package encoding

import (
	"encoding/json"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"feltfuzz/internal/program"
)

// CompilerVersion is the constant toolchain stamp written into every
// artifact. Decoders ignore it.
const CompilerVersion = "0.13.1"

// MaxDataWords bounds the data array a decoder will accept, so adversarial
// artifacts cannot force unbounded allocation.
const MaxDataWords = 4096

// Instruction word layout, low to high: two biased 16-bit operand offsets,
// a 3-bit opcode, the two register selector bits and the second-word flag.
// Bits above the flag must be zero.
const (
	offBias        = 1 << 15
	opShift        = 32
	dstFpBit       = uint64(1) << 35
	srcFpBit       = uint64(1) << 36
	wordFollowsBit = uint64(1) << 37
	maxWord        = uint64(1) << 38
)

type artifactJSON struct {
	Attributes      []json.RawMessage         `json:"attributes"`
	Builtins        []string                  `json:"builtins"`
	CompilerVersion string                    `json:"compiler_version"`
	Data            []string                  `json:"data"`
	Hints           map[string][]hintJSON     `json:"hints"`
	Identifiers     map[string]identifierJSON `json:"identifiers"`
	Prime           string                    `json:"prime"`
}

type hintJSON struct {
	Code string `json:"code"`
}

type identifierJSON struct {
	PC   *int   `json:"pc,omitempty"`
	Type string `json:"type,omitempty"`
}

const mainIdentifier = "__main__.main"

// Encode serializes p into the loader's artifact format. It returns
// *GeneratorInternalError when p violates the structural invariants and
// *EncodeError when serialization itself fails; both indicate harness bugs
// for generator-produced programs.
func Encode(p *program.Program) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, &GeneratorInternalError{Err: err}
	}

	targets := make(map[int]int, len(p.Relocations))
	for _, r := range p.Relocations {
		targets[r.Site] = r.Target
	}

	data := make([]string, 0, len(p.Instructions)*2)
	for i, ins := range p.Instructions {
		hasSecond := ins.Imm != nil || ins.Op.HasTarget()
		data = append(data, wordHex(packInstruction(ins, hasSecond)))
		if ins.Op.HasTarget() {
			data = append(data, program.NewFelt(uint64(targets[i])).Hex())
		} else if ins.Imm != nil {
			data = append(data, ins.Imm.Hex())
		}
	}

	hints := make(map[string][]hintJSON, len(p.Hints))
	for _, h := range p.Hints {
		key := strconv.Itoa(h.PC)
		hints[key] = append(hints[key], hintJSON{Code: h.Code})
	}

	identifiers := map[string]identifierJSON{}
	if p.Entrypoint >= 0 {
		pc := p.Entrypoint
		identifiers[mainIdentifier] = identifierJSON{PC: &pc, Type: "function"}
	}

	builtins := p.Builtins
	if builtins == nil {
		builtins = []string{}
	}

	out, err := json.Marshal(artifactJSON{
		Attributes:      []json.RawMessage{},
		Builtins:        builtins,
		CompilerVersion: CompilerVersion,
		Data:            data,
		Hints:           hints,
		Identifiers:     identifiers,
		Prime:           program.PrimeHex,
	})
	if err != nil {
		return nil, &EncodeError{Err: err}
	}
	return out, nil
}

func packInstruction(ins program.Instruction, hasSecond bool) uint64 {
	w := uint64(uint16(int32(ins.Dst.Off) + offBias))
	w |= uint64(uint16(int32(ins.Src.Off)+offBias)) << 16
	w |= uint64(ins.Op) << opShift
	if ins.Dst.Reg == program.FP {
		w |= dstFpBit
	}
	if ins.Src.Reg == program.FP {
		w |= srcFpBit
	}
	if hasSecond {
		w |= wordFollowsBit
	}
	return w
}

func wordHex(w uint64) string {
	return "0x" + strconv.FormatUint(w, 16)
}

// Decode parses an artifact back into a structured program. Every failure
// is a *MalformedArtifactError; arbitrary bytes never panic and never
// produce an invalid program.
func Decode(artifact []byte) (*program.Program, error) {
	var a artifactJSON
	if err := json.Unmarshal(artifact, &a); err != nil {
		return nil, malformedf("invalid json: %v", err)
	}

	if err := checkPrime(a.Prime); err != nil {
		return nil, err
	}
	if len(a.Data) > MaxDataWords {
		return nil, malformedf("data has %d words, limit is %d", len(a.Data), MaxDataWords)
	}

	p := &program.Program{Entrypoint: -1}
	if err := decodeData(a.Data, p); err != nil {
		return nil, err
	}
	n := len(p.Instructions)

	seen := make(map[string]bool, len(a.Builtins))
	for _, b := range a.Builtins {
		if program.BuiltinIndex(b) < 0 {
			return nil, malformedf("unknown builtin %q", b)
		}
		if seen[b] {
			return nil, malformedf("duplicate builtin %q", b)
		}
		seen[b] = true
		p.Builtins = append(p.Builtins, b)
	}

	if err := decodeHints(a.Hints, n, p); err != nil {
		return nil, err
	}

	if id, ok := a.Identifiers[mainIdentifier]; ok {
		if id.PC == nil {
			return nil, malformedf("main identifier has no pc")
		}
		if id.Type != "function" {
			return nil, malformedf("main identifier has type %q", id.Type)
		}
		if *id.PC < 0 || *id.PC >= n {
			return nil, malformedf("entrypoint pc %d out of range [0,%d)", *id.PC, n)
		}
		p.Entrypoint = *id.PC
	}

	return p, nil
}

func checkPrime(s string) error {
	if s == "" {
		return malformedf("missing prime")
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return malformedf("prime %q missing 0x prefix", s)
	}
	v, ok := new(big.Int).SetString(s[2:], 16)
	if !ok {
		return malformedf("prime %q is not hexadecimal", s)
	}
	if v.Cmp(program.Prime()) != 0 {
		return malformedf("prime mismatch: %s", s)
	}
	return nil
}

func decodeData(data []string, p *program.Program) error {
	for i := 0; i < len(data); i++ {
		word, err := program.FeltFromHex(data[i])
		if err != nil {
			return malformedf("data word %d: %v", i, err)
		}
		w, ok := word.Uint64()
		if !ok || w >= maxWord {
			return malformedf("data word %d is not an instruction word", i)
		}

		op := program.Opcode(w >> opShift & 0x7)
		if !op.Valid() {
			return malformedf("data word %d: unknown opcode bits %d", i, w>>opShift&0x7)
		}
		ins := program.Instruction{
			Op:  op,
			Dst: program.Operand{Reg: regOf(w&dstFpBit != 0), Off: unbias(w & 0xffff)},
			Src: program.Operand{Reg: regOf(w&srcFpBit != 0), Off: unbias(w >> 16 & 0xffff)},
		}

		hasSecond := w&wordFollowsBit != 0
		switch {
		case op.HasTarget() && !hasSecond:
			return malformedf("data word %d: %s missing its target word", i, op)
		case op.RequiresImm() && !hasSecond:
			return malformedf("data word %d: %s missing its immediate", i, op)
		case !op.HasTarget() && !op.AllowsImm() && hasSecond:
			return malformedf("data word %d: %s cannot carry a second word", i, op)
		}

		site := len(p.Instructions)
		if hasSecond {
			i++
			if i >= len(data) {
				return malformedf("data truncated: word %d promises a second word", i-1)
			}
			second, err := program.FeltFromHex(data[i])
			if err != nil {
				return malformedf("data word %d: %v", i, err)
			}
			if op.HasTarget() {
				t, ok := second.Uint64()
				if !ok || t > uint64(MaxDataWords) {
					return malformedf("data word %d: relocation target too large", i)
				}
				p.Relocations = append(p.Relocations, program.Relocation{Site: site, Target: int(t)})
			} else {
				ins.Imm = second
			}
		}
		p.Instructions = append(p.Instructions, ins)
	}

	n := len(p.Instructions)
	for _, r := range p.Relocations {
		if r.Target >= n {
			return malformedf("relocation target %d out of range [0,%d)", r.Target, n)
		}
	}
	return nil
}

func decodeHints(hints map[string][]hintJSON, n int, p *program.Program) error {
	if len(hints) == 0 {
		return nil
	}
	pcs := make([]int, 0, len(hints))
	byPC := make(map[int][]hintJSON, len(hints))
	for key, entries := range hints {
		pc, err := strconv.Atoi(key)
		if err != nil {
			return malformedf("hint key %q is not a pc", key)
		}
		if pc < 0 || pc >= n {
			return malformedf("hint pc %d out of range [0,%d)", pc, n)
		}
		pcs = append(pcs, pc)
		byPC[pc] = entries
	}
	sort.Ints(pcs)
	for _, pc := range pcs {
		for _, h := range byPC[pc] {
			if program.HintCodeIndex(h.Code) < 0 {
				return malformedf("hint pc %d: unknown hint code %q", pc, h.Code)
			}
			p.Hints = append(p.Hints, program.Hint{PC: pc, Code: h.Code})
		}
	}
	return nil
}

func regOf(fp bool) program.Register {
	if fp {
		return program.FP
	}
	return program.AP
}

func unbias(v uint64) int16 {
	return int16(int32(v) - offBias)
}
