package machine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRam_GetSet(t *testing.T) {
	assert := assert.New(t)

	ram := &Ram{}
	err := ram.SetAt(100, 3.25)
	assert.NoError(err)

	value, err := ram.GetAt(100)
	assert.NoError(err)
	assert.Equal(3.25, value)
}

func TestRam_Truncates(t *testing.T) {
	assert := assert.New(t)

	ram := &Ram{}
	err := ram.SetAt(100.9, 7)
	assert.NoError(err)

	value, err := ram.GetAt(100.1)
	assert.NoError(err)
	assert.Equal(7.0, value)
}

func TestRam_Bounds(t *testing.T) {
	assert := assert.New(t)

	ram := &Ram{}
	_, err := ram.GetAt(-1)
	assert.ErrorIs(err, ErrInvalidRamAddress)

	_, err = ram.GetAt(RAM_SIZE)
	assert.ErrorIs(err, ErrInvalidRamAddress)

	err = ram.SetAt(1e300, 1)
	assert.ErrorIs(err, ErrInvalidRamAddress)

	// -0.5 floors to -1.
	_, err = ram.GetAt(-0.5)
	assert.ErrorIs(err, ErrInvalidRamAddress)
}

func TestRam_TopAddress(t *testing.T) {
	assert := assert.New(t)

	ram := &Ram{}
	err := ram.SetAt(RAM_SIZE-1, 2.5)
	assert.NoError(err)

	value, err := ram.GetAt(RAM_SIZE - 1)
	assert.NoError(err)
	assert.Equal(2.5, value)
}

func TestRam_Reset(t *testing.T) {
	assert := assert.New(t)

	ram := &Ram{}
	err := ram.SetAt(0, 9)
	assert.NoError(err)

	ram.Reset()
	value, err := ram.GetAt(0)
	assert.NoError(err)
	assert.Equal(0.0, value)
}

func TestRam_Delay(t *testing.T) {
	assert := assert.New(t)

	ram := &Ram{Delay: time.Millisecond}
	start := time.Now()
	err := ram.SetAt(0, 1)
	assert.NoError(err)
	assert.GreaterOrEqual(time.Since(start), time.Millisecond)
}
