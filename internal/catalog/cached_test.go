package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingCatalog struct {
	known map[string]bool
	calls int
	err   error
}

func (c *countingCatalog) ProductExists(_ context.Context, sku string) (bool, error) {
	c.calls++
	if c.err != nil {
		return false, c.err
	}
	return c.known[sku], nil
}

func TestCached_HitsAndMisses(t *testing.T) {
	t.Parallel()
	next := &countingCatalog{known: map[string]bool{"SKU-1": true}}
	c := NewCached(next, time.Minute, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := c.ProductExists(ctx, "SKU-1")
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.Equal(t, 1, next.calls)

	ok, err := c.ProductExists(ctx, "SKU-X")
	require.NoError(t, err)
	require.False(t, ok)
	_, _ = c.ProductExists(ctx, "SKU-X")
	require.Equal(t, 2, next.calls)

	c.Forget("SKU-1")
	_, _ = c.ProductExists(ctx, "SKU-1")
	require.Equal(t, 3, next.calls)
}

func TestCached_NegativeTTLExpires(t *testing.T) {
	t.Parallel()
	next := &countingCatalog{known: map[string]bool{}}
	c := NewCached(next, time.Minute, 10*time.Millisecond)
	ctx := context.Background()

	_, _ = c.ProductExists(ctx, "NEW")
	next.known["NEW"] = true
	time.Sleep(20 * time.Millisecond)
	ok, err := c.ProductExists(ctx, "NEW")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, next.calls)
}

func TestCached_ErrorsNotCached(t *testing.T) {
	t.Parallel()
	next := &countingCatalog{err: errors.New("db down")}
	c := NewCached(next, time.Minute, time.Minute)

	_, err := c.ProductExists(context.Background(), "SKU-1")
	require.Error(t, err)
	next.err = nil
	next.known = map[string]bool{"SKU-1": true}
	ok, err := c.ProductExists(context.Background(), "SKU-1")
	require.NoError(t, err)
	require.True(t, ok)
}
