package bitmap

import "math/bits"

// Bitmap tracks occupancy of a fixed number of slots.
type Bitmap struct {
	data []uint64
	size int
}

func New(size int) *Bitmap {
	if size <= 0 {
		size = 1
	}

	length := (size + 63) / 64
	return &Bitmap{
		data: make([]uint64, length),
		size: size,
	}
}

func (b *Bitmap) Set(pos int) {
	if pos < 0 || pos >= b.size {
		return
	}

	idx := pos / 64
	shift := pos % 64
	b.data[idx] |= 1 << shift
}

func (b *Bitmap) Clear(pos int) {
	if pos < 0 || pos >= b.size {
		return
	}

	idx := pos / 64
	shift := pos % 64
	b.data[idx] &^= 1 << shift
}

func (b *Bitmap) IsSet(pos int) bool {
	if pos < 0 || pos >= b.size {
		return false
	}

	idx := pos / 64
	shift := pos % 64
	return (b.data[idx] & (1 << shift)) != 0
}

// FindNextClearBit returns the first unset position at or after startPos,
// wrapping around once, or -1 when every slot is set.
func (b *Bitmap) FindNextClearBit(startPos int) int {
	if b.size == 0 {
		return -1
	}

	pos := startPos
	for scanned := 0; scanned < b.size; scanned++ {
		if !b.IsSet(pos) {
			return pos
		}
		pos = (pos + 1) % b.size
	}

	return -1
}

func (b *Bitmap) Count() int {
	total := 0
	for _, word := range b.data {
		total += bits.OnesCount64(word)
	}
	return total
}
