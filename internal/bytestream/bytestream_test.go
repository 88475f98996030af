package bytestream

import (
	"bytes"
	"testing"
)

func TestTakeBytesShortBuffer(t *testing.T) {
	s := New([]byte{1, 2, 3})

	got := s.TakeBytes(2)
	if !bytes.Equal(got, []byte{1, 2}) {
		t.Fatalf("TakeBytes(2) = %v, want [1 2]", got)
	}
	got = s.TakeBytes(5)
	if !bytes.Equal(got, []byte{3}) {
		t.Fatalf("TakeBytes(5) on short buffer = %v, want [3]", got)
	}
	if got = s.TakeBytes(1); got != nil {
		t.Fatalf("TakeBytes on exhausted buffer = %v, want nil", got)
	}
	if !s.Exhausted() {
		t.Fatal("stream should be exhausted")
	}
}

func TestTakeBytesCopies(t *testing.T) {
	data := []byte{0xaa, 0xbb}
	s := New(data)
	got := s.TakeBytes(2)
	got[0] = 0x00
	if data[0] != 0xaa {
		t.Fatal("TakeBytes must not alias the underlying buffer")
	}
}

func TestEmptyInputDefaults(t *testing.T) {
	s := New(nil)

	if b := s.Byte(); b != 0 {
		t.Errorf("Byte() on empty = %d, want 0", b)
	}
	if v := s.Uint16(); v != 0 {
		t.Errorf("Uint16() on empty = %d, want 0", v)
	}
	if v := s.Uint32(); v != 0 {
		t.Errorf("Uint32() on empty = %d, want 0", v)
	}
	if v := s.Uint64(); v != 0 {
		t.Errorf("Uint64() on empty = %d, want 0", v)
	}
	if i := s.ChooseIndex(7); i != 0 {
		t.Errorf("ChooseIndex(7) on empty = %d, want 0", i)
	}
	if s.Bool() {
		t.Error("Bool() on empty = true, want false")
	}
}

func TestUintZeroPadding(t *testing.T) {
	s := New([]byte{0x01, 0x02})
	if v := s.Uint32(); v != 0x0201 {
		t.Fatalf("Uint32 over 2-byte buffer = %#x, want 0x0201", v)
	}
}

func TestChooseIndexSmallK(t *testing.T) {
	s := New([]byte{0xff, 0xff})
	for _, k := range []int{-1, 0, 1} {
		if i := s.ChooseIndex(k); i != 0 {
			t.Fatalf("ChooseIndex(%d) = %d, want 0", k, i)
		}
	}
	if r := s.Remaining(); r != 2 {
		t.Fatalf("ChooseIndex with k <= 1 consumed input, %d bytes left", r)
	}
}

func TestChooseIndexBounds(t *testing.T) {
	data := []byte{0xff, 0xff, 0xff, 0xff, 0x10, 0x00, 0x00, 0x00, 0x05}
	for _, k := range []int{2, 3, 10, 255} {
		s := New(data)
		for !s.Exhausted() {
			if i := s.ChooseIndex(k); i < 0 || i >= k {
				t.Fatalf("ChooseIndex(%d) = %d, out of range", k, i)
			}
		}
	}
}

func TestDeterminism(t *testing.T) {
	data := []byte{9, 8, 7, 6, 5, 4, 3, 2, 1, 0}
	a, b := New(data), New(data)
	for i := 0; i < 8; i++ {
		if x, y := a.ChooseIndex(5), b.ChooseIndex(5); x != y {
			t.Fatalf("draw %d differs: %d vs %d", i, x, y)
		}
	}
}

func TestRemaining(t *testing.T) {
	s := New([]byte{1, 2, 3, 4})
	if r := s.Remaining(); r != 4 {
		t.Fatalf("Remaining = %d, want 4", r)
	}
	s.Byte()
	if r := s.Remaining(); r != 3 {
		t.Fatalf("Remaining after Byte = %d, want 3", r)
	}
	s.TakeBytes(10)
	if r := s.Remaining(); r != 0 {
		t.Fatalf("Remaining after drain = %d, want 0", r)
	}
}
