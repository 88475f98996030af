package gen

import (
	"bytes"
	"testing"

	"feltfuzz/internal/bytestream"
	"feltfuzz/internal/program"
)

func TestGenerateEmptyInput(t *testing.T) {
	p := Generate(bytestream.New(nil), Options{})
	if len(p.Instructions) != 0 {
		t.Fatalf("empty input produced %d instructions, want 0", len(p.Instructions))
	}
	if p.Entrypoint != -1 {
		t.Fatalf("empty input produced entrypoint %d, want -1", p.Entrypoint)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("empty-input program invalid: %v", err)
	}
}

func TestGenerateRespectsCap(t *testing.T) {
	data := bytes.Repeat([]byte{0xa5, 0x3c, 0x7e, 0x01}, 4096)
	p := Generate(bytestream.New(data), Options{MaxInstructions: 10})
	if len(p.Instructions) > 10 {
		t.Fatalf("generated %d instructions, cap is 10", len(p.Instructions))
	}
	p = Generate(bytestream.New(data), Options{})
	if len(p.Instructions) > DefaultMaxInstructions {
		t.Fatalf("generated %d instructions, default cap is %d", len(p.Instructions), DefaultMaxInstructions)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	data := []byte{3, 1, 4, 1, 5, 9, 2, 6, 5, 3, 5, 8, 9, 7, 9, 3, 2, 3, 8, 4}
	a := Generate(bytestream.New(data), Options{})
	b := Generate(bytestream.New(data), Options{})
	if !a.Equal(b) {
		t.Fatal("same input generated different programs")
	}
}

func TestGenerateRelocationsBackward(t *testing.T) {
	data := bytes.Repeat([]byte{2, 0, 0, 0, 9, 9, 9, 9}, 64)
	p := Generate(bytestream.New(data), Options{})
	for _, r := range p.Relocations {
		if r.Target > r.Site {
			t.Fatalf("relocation %d -> %d references an offset not yet emitted", r.Site, r.Target)
		}
	}
}

func TestGenerateHintsOrderedAndBounded(t *testing.T) {
	data := bytes.Repeat([]byte{7, 13, 44, 91, 0xfe, 2, 8, 31}, 32)
	p := Generate(bytestream.New(data), Options{MaxHints: 3})
	if len(p.Hints) > 3 {
		t.Fatalf("generated %d hints, cap is 3", len(p.Hints))
	}
	seen := map[int]bool{}
	for i, h := range p.Hints {
		if i > 0 && p.Hints[i-1].PC >= h.PC {
			t.Fatal("hints are not in strictly increasing pc order")
		}
		if seen[h.PC] {
			t.Fatalf("duplicate hint pc %d", h.PC)
		}
		seen[h.PC] = true
	}
}

func TestGenerateBuiltinsCanonical(t *testing.T) {
	// One assert_eq with an immediate consumes the first 14 bytes, leaving
	// the 0xff to land on the builtin mask.
	data := []byte{
		0, 0, 0, 0, // opcode: assert_eq
		0,          // dst register
		0, 0, 0, 0, // dst offset
		1,          // take an immediate
		0, 0, 0, 0, // immediate: first table entry
		0xff,       // builtin mask: everything
		0, 0, 0, 0, // hint count: none
		0, // no entrypoint
	}
	p := Generate(bytestream.New(data), Options{MaxInstructions: 1})
	if len(p.Builtins) != len(program.BuiltinNames) {
		t.Fatalf("mask 0xff selected %d builtins, want %d", len(p.Builtins), len(program.BuiltinNames))
	}
	last := -1
	for _, b := range p.Builtins {
		idx := program.BuiltinIndex(b)
		if idx < 0 {
			t.Fatalf("unknown builtin %q", b)
		}
		if idx <= last {
			t.Fatal("builtins out of canonical order")
		}
		last = idx
	}
}

func TestGenerateTruncatedDecision(t *testing.T) {
	// One byte is not enough for a full opcode draw; construction must
	// still end with a bounds-valid program.
	for _, data := range [][]byte{{0x00}, {0xff}, {5, 4}, {1, 2, 3}} {
		p := Generate(bytestream.New(data), Options{})
		if err := p.Validate(); err != nil {
			t.Fatalf("input %v: invalid program: %v", data, err)
		}
	}
}

func FuzzGenerate(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{0x00})
	f.Add([]byte{0xff, 0xff, 0xff, 0xff})
	f.Add(bytes.Repeat([]byte{6, 1, 0, 0, 0xaa}, 50))
	f.Add([]byte("feltfuzz"))
	f.Fuzz(func(t *testing.T, data []byte) {
		p := Generate(bytestream.New(data), Options{})
		if err := p.Validate(); err != nil {
			t.Fatalf("generated program violates invariants: %v", err)
		}
		q := Generate(bytestream.New(data), Options{})
		if !p.Equal(q) {
			t.Fatal("generation is not deterministic")
		}
	})
}
