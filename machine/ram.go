package machine

import (
	"encoding/binary"
	"math"
	"time"
)

const (
	// RAM_SIZE is the number of addressable cells.
	RAM_SIZE = 1024
	// RAM_DELAY is the default latency of one memory access.
	RAM_DELAY = 10 * time.Millisecond
)

// Ram is a byte-addressed memory with a simulated access latency.
// Every address in [0, RAM_SIZE) holds a full little-endian float64,
// so the backing array carries seven bytes of slack past the top.
type Ram struct {
	Delay time.Duration
	data  [RAM_SIZE + 7]byte
}

// address truncates value to a cell index, checking bounds before
// integer conversion so overlarge floats cannot wrap.
func (ram *Ram) address(value float64) (pos int, err error) {
	value = math.Floor(value)
	if value < 0 || value >= RAM_SIZE {
		err = AddressError(value)
		return
	}

	pos = int(value)
	return
}

// GetAt loads the float64 stored at the truncated address.
func (ram *Ram) GetAt(value float64) (out float64, err error) {
	pos, err := ram.address(value)
	if err != nil {
		return
	}

	ram.sleep()
	out = math.Float64frombits(binary.LittleEndian.Uint64(ram.data[pos : pos+8]))
	return
}

// SetAt stores a float64 at the truncated address.
func (ram *Ram) SetAt(value float64, store float64) (err error) {
	pos, err := ram.address(value)
	if err != nil {
		return
	}

	ram.sleep()
	binary.LittleEndian.PutUint64(ram.data[pos:pos+8], math.Float64bits(store))
	return
}

// Reset clears memory.
func (ram *Ram) Reset() {
	ram.data = [RAM_SIZE + 7]byte{}
}

func (ram *Ram) sleep() {
	if ram.Delay > 0 {
		time.Sleep(ram.Delay)
	}
}
