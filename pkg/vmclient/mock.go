package vmclient

import (
	"context"
	"fmt"
	"math/big"

	"feltfuzz/internal/encoding"
	"feltfuzz/internal/program"
)

const (
	defaultGas     = 512
	callStackLimit = 32
)

var (
	feltMinusOne = new(big.Int).Sub(program.Prime(), big.NewInt(1))
	apSegmentEnd = new(big.Int).Lsh(big.NewInt(1), 250)
)

// Mock is a small deterministic VM used by tests and by cmd/mockvm. It
// walks the instruction graph under a step budget, reports the recognized
// error families a real loader would (deserialize, runner, memory, math),
// and carries genuine defects for the harness to find: a panic when a hint
// exits a scope that was never entered, a panic when add_ap moves ap past
// the segment end, and a hang on a jump_rel that targets itself.
type Mock struct {
	Gas int
}

func (m *Mock) LoadAndRun(ctx context.Context, artifact []byte) (*Result, error) {
	p, err := encoding.Decode(artifact)
	if err != nil {
		return &Result{Status: RecognizedError, ErrKind: "deserialize", Message: err.Error()}, nil
	}
	return m.Execute(ctx, p)
}

// Execute interprets a decoded program. Identical programs always produce
// identical results and coverage token sequences.
func (m *Mock) Execute(ctx context.Context, p *program.Program) (*Result, error) {
	n := len(p.Instructions)
	if n == 0 {
		return &Result{Status: RecognizedError, ErrKind: "runner", Message: "empty program"}, nil
	}

	gas := m.Gas
	if gas <= 0 {
		gas = defaultGas
	}

	targets := make(map[int]int, len(p.Relocations))
	for _, r := range p.Relocations {
		targets[r.Site] = r.Target
	}
	hints := make(map[int][]string, len(p.Hints))
	for _, h := range p.Hints {
		hints[h.PC] = append(hints[h.PC], h.Code)
	}

	cov := &covSet{seen: make(map[uint64]struct{})}
	pc := 0
	if p.Entrypoint >= 0 {
		pc = p.Entrypoint
	}
	scopes := 0
	var stack []int

	for {
		if pc == n {
			return &Result{Status: Success, Coverage: cov.tokens}, nil
		}
		if gas == 0 {
			return &Result{Status: RecognizedError, ErrKind: "runner", Message: "step budget exhausted", Coverage: cov.tokens}, nil
		}
		gas--

		ins := p.Instructions[pc]
		cov.add(uint64(pc)<<16 | uint64(ins.Op)<<8 | 1)

		for _, code := range hints[pc] {
			cov.add(uint64(pc)<<16 | uint64(program.HintCodeIndex(code))<<8 | 3)
			switch code {
			case "vm_enter_scope()":
				scopes++
			case "vm_exit_scope()":
				scopes--
				if scopes < 0 {
					panic(fmt.Sprintf("hint scope underflow at pc %d", pc))
				}
			}
		}

		next := pc + 1
		switch ins.Op {
		case program.AssertEq:
			if ins.Imm != nil && ins.Imm.Big().Cmp(feltMinusOne) == 0 {
				return &Result{Status: RecognizedError, ErrKind: "math", Message: fmt.Sprintf("assertion failed at pc %d", pc), Coverage: cov.tokens}, nil
			}
		case program.AddAp:
			if ins.Imm.Big().Cmp(apSegmentEnd) >= 0 {
				panic(fmt.Sprintf("ap grew past segment end at pc %d", pc))
			}
		case program.Jump:
			next = targets[pc]
		case program.JumpRel:
			t := targets[pc]
			if t == pc {
				// a self jump never makes progress
				<-ctx.Done()
				return nil, ctx.Err()
			}
			next = t
		case program.Jnz:
			if ins.Dst.Off != 0 {
				next = targets[pc]
			}
		case program.Call:
			if len(stack) >= callStackLimit {
				return &Result{Status: RecognizedError, ErrKind: "memory", Message: fmt.Sprintf("call stack overflow at pc %d", pc), Coverage: cov.tokens}, nil
			}
			stack = append(stack, pc+1)
			next = targets[pc]
		case program.Ret:
			if len(stack) == 0 {
				return &Result{Status: Success, Coverage: cov.tokens}, nil
			}
			next = stack[len(stack)-1]
			stack = stack[:len(stack)-1]
		}

		cov.add(uint64(pc+1)<<32 | uint64(next+1)<<8 | 2)
		pc = next
	}
}

// covSet collects coverage tokens deduplicated in first-visit order, so
// identical runs emit identical sequences.
type covSet struct {
	seen   map[uint64]struct{}
	tokens []uint64
}

func (c *covSet) add(t uint64) {
	if _, ok := c.seen[t]; ok {
		return
	}
	c.seen[t] = struct{}{}
	c.tokens = append(c.tokens, t)
}
