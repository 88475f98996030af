// Package mutate derives new inputs from corpus seeds with a stack of
// byte-level operators: bit flips, arithmetic nudges, interesting-value
// overwrites, block edits, dictionary fragments and corpus splices. Every
// decision comes from the control stream, so a mutation is reproducible
// from the seed and control bytes alone.
package mutate

import (
	"encoding/binary"

	"feltfuzz/internal/bytestream"
	"feltfuzz/internal/dict"
)

const maxStackedOps = 8

var (
	interesting8  = []int8{-128, -1, 0, 1, 16, 32, 64, 100, 127}
	interesting16 = []int16{-32768, -129, 128, 255, 256, 512, 1000, 1024, 4096, 32767}
	interesting32 = []int32{-2147483648, -100663046, -32769, 32768, 65535, 65536, 100663045, 2147483647}
)

type Mutator struct {
	maxSize   int
	fragments []dict.Fragment
}

func New(maxSize int, fragments []dict.Fragment) *Mutator {
	if maxSize <= 0 {
		maxSize = 4096
	}
	return &Mutator{maxSize, fragments}
}

// Mutate produces a new input from seed without modifying it. donor is an
// optional second corpus entry used by the splice operator.
func (m *Mutator) Mutate(seed, donor []byte, ctrl *bytestream.Stream) []byte {
	data := make([]byte, len(seed))
	copy(data, seed)

	ops := 1 + ctrl.ChooseIndex(maxStackedOps)
	for i := 0; i < ops; i++ {
		switch ctrl.ChooseIndex(10) {
		case 0:
			data = flipBit(data, ctrl)
		case 1:
			data = setByte(data, ctrl)
		case 2:
			data = addToByte(data, ctrl)
		case 3:
			data = putInteresting8(data, ctrl)
		case 4:
			data = putInteresting16(data, ctrl)
		case 5:
			data = putInteresting32(data, ctrl)
		case 6:
			data = m.insertBlock(data, ctrl)
		case 7:
			data = removeBlock(data, ctrl)
		case 8:
			data = m.insertFragment(data, ctrl)
		case 9:
			data = m.splice(data, donor, ctrl)
		}
	}
	if len(data) > m.maxSize {
		data = data[:m.maxSize]
	}
	return data
}

func flipBit(data []byte, ctrl *bytestream.Stream) []byte {
	if len(data) == 0 {
		return data
	}
	bit := ctrl.ChooseIndex(len(data) * 8)
	data[bit/8] ^= 1 << (bit % 8)
	return data
}

func setByte(data []byte, ctrl *bytestream.Stream) []byte {
	if len(data) == 0 {
		return data
	}
	data[ctrl.ChooseIndex(len(data))] = ctrl.Byte()
	return data
}

func addToByte(data []byte, ctrl *bytestream.Stream) []byte {
	if len(data) == 0 {
		return data
	}
	pos := ctrl.ChooseIndex(len(data))
	delta := byte(1 + ctrl.ChooseIndex(35))
	if ctrl.Bool() {
		data[pos] += delta
	} else {
		data[pos] -= delta
	}
	return data
}

func putInteresting8(data []byte, ctrl *bytestream.Stream) []byte {
	if len(data) == 0 {
		return data
	}
	data[ctrl.ChooseIndex(len(data))] = byte(interesting8[ctrl.ChooseIndex(len(interesting8))])
	return data
}

func putInteresting16(data []byte, ctrl *bytestream.Stream) []byte {
	if len(data) < 2 {
		return data
	}
	pos := ctrl.ChooseIndex(len(data) - 1)
	binary.LittleEndian.PutUint16(data[pos:], uint16(interesting16[ctrl.ChooseIndex(len(interesting16))]))
	return data
}

func putInteresting32(data []byte, ctrl *bytestream.Stream) []byte {
	if len(data) < 4 {
		return data
	}
	pos := ctrl.ChooseIndex(len(data) - 3)
	binary.LittleEndian.PutUint32(data[pos:], uint32(interesting32[ctrl.ChooseIndex(len(interesting32))]))
	return data
}

func (m *Mutator) insertBlock(data []byte, ctrl *bytestream.Stream) []byte {
	if len(data) == 0 || len(data) >= m.maxSize {
		return data
	}
	from := ctrl.ChooseIndex(len(data))
	n := 1 + ctrl.ChooseIndex(16)
	if from+n > len(data) {
		n = len(data) - from
	}
	if len(data)+n > m.maxSize {
		n = m.maxSize - len(data)
	}
	if n <= 0 {
		return data
	}
	block := make([]byte, n)
	copy(block, data[from:from+n])
	return insertAt(data, block, ctrl.ChooseIndex(len(data)+1))
}

func removeBlock(data []byte, ctrl *bytestream.Stream) []byte {
	if len(data) < 2 {
		return data
	}
	from := ctrl.ChooseIndex(len(data))
	n := 1 + ctrl.ChooseIndex(16)
	if from+n > len(data) {
		n = len(data) - from
	}
	return append(data[:from], data[from+n:]...)
}

func (m *Mutator) insertFragment(data []byte, ctrl *bytestream.Stream) []byte {
	if len(m.fragments) == 0 {
		return data
	}
	frag := m.fragments[ctrl.ChooseIndex(len(m.fragments))].Data
	if len(data)+len(frag) > m.maxSize {
		return data
	}
	return insertAt(data, frag, ctrl.ChooseIndex(len(data)+1))
}

func (m *Mutator) splice(data, donor []byte, ctrl *bytestream.Stream) []byte {
	if len(data) == 0 || len(donor) == 0 {
		return data
	}
	cut := ctrl.ChooseIndex(len(data) + 1)
	tail := donor[ctrl.ChooseIndex(len(donor)):]
	out := make([]byte, 0, cut+len(tail))
	out = append(out, data[:cut]...)
	out = append(out, tail...)
	if len(out) > m.maxSize {
		out = out[:m.maxSize]
	}
	return out
}

func insertAt(data, block []byte, at int) []byte {
	out := make([]byte, 0, len(data)+len(block))
	out = append(out, data[:at]...)
	out = append(out, block...)
	out = append(out, data[at:]...)
	return out
}
