// Package bytestream turns the raw fuzzer-supplied buffer into a sequence of
// typed draws. Every operation is total: a short or exhausted buffer yields
// zeros and empty slices, never an error, so callers can build structure from
// any input including the empty one.
package bytestream

import "encoding/binary"

type Stream struct {
	data []byte
	pos  int
}

func New(data []byte) *Stream {
	return &Stream{data, 0}
}

// TakeBytes returns up to n bytes and advances the cursor. The returned slice
// is a copy; fewer than n bytes (possibly none) are returned once the buffer
// is exhausted.
func (s *Stream) TakeBytes(n int) []byte {
	if n <= 0 || s.pos >= len(s.data) {
		return nil
	}
	end := s.pos + n
	if end > len(s.data) {
		end = len(s.data)
	}
	out := make([]byte, end-s.pos)
	copy(out, s.data[s.pos:end])
	s.pos = end
	return out
}

func (s *Stream) Byte() byte {
	b := s.TakeBytes(1)
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

func (s *Stream) Bool() bool {
	return s.Byte()&1 == 1
}

// Uint16 consumes up to two bytes as a little-endian value, zero-padded when
// the buffer runs out mid-read.
func (s *Stream) Uint16() uint16 {
	var buf [2]byte
	copy(buf[:], s.TakeBytes(2))
	return binary.LittleEndian.Uint16(buf[:])
}

func (s *Stream) Uint32() uint32 {
	var buf [4]byte
	copy(buf[:], s.TakeBytes(4))
	return binary.LittleEndian.Uint32(buf[:])
}

func (s *Stream) Uint64() uint64 {
	var buf [8]byte
	copy(buf[:], s.TakeBytes(8))
	return binary.LittleEndian.Uint64(buf[:])
}

// ChooseIndex returns a value in [0,k) derived from the next consumed bytes.
// It returns 0 when k <= 1 or when the buffer is exhausted, so selection
// always lands on a valid alternative.
func (s *Stream) ChooseIndex(k int) int {
	if k <= 1 {
		return 0
	}
	if s.Exhausted() {
		return 0
	}
	return int(s.Uint32() % uint32(k))
}

func (s *Stream) Remaining() int {
	return len(s.data) - s.pos
}

func (s *Stream) Exhausted() bool {
	return s.pos >= len(s.data)
}
