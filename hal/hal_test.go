package hal

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTakeOnce(t *testing.T) {
	want := &Peripherals{}
	b := NewBoard(want)
	assert.False(t, b.Taken())

	p, err := b.Take()
	require.NoError(t, err)
	assert.Same(t, want, p)
	assert.True(t, b.Taken())

	p, err = b.Take()
	assert.ErrorIs(t, err, ErrPeripheralsTaken)
	assert.Nil(t, p)
}

func TestTakeRace(t *testing.T) {
	b := NewBoard(&Peripherals{})

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := b.Take(); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}
