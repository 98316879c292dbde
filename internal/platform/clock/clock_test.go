package clock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixed(t *testing.T) {
	assert.Equal(t, uint64(7), Fixed(7).Height(context.Background()))
}

func TestManual(t *testing.T) {
	ctx := context.Background()
	m := NewManual(100)
	assert.Equal(t, uint64(100), m.Height(ctx))
	assert.Equal(t, uint64(105), m.Advance(5))

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() { m.Advance(1) })
	}
	wg.Wait()
	assert.Equal(t, uint64(115), m.Height(ctx))

	m.Set(3)
	assert.Equal(t, uint64(3), m.Height(ctx))
}

func TestChain(t *testing.T) {
	genesis := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := genesis

	c := NewChain(1000, genesis, 10*time.Minute, WithNow(func() time.Time { return now }))
	ctx := context.Background()

	assert.Equal(t, uint64(1000), c.Height(ctx))

	now = genesis.Add(25 * time.Minute)
	assert.Equal(t, uint64(1002), c.Height(ctx))

	now = genesis.Add(-time.Hour)
	assert.Equal(t, uint64(1000), c.Height(ctx))

	assert.Equal(t, uint64(5), NewChain(5, genesis, 0).Height(ctx))
}

func TestFunc(t *testing.T) {
	f := Func(func(context.Context) uint64 { return 9 })
	assert.Equal(t, uint64(9), f.Height(context.Background()))
}
