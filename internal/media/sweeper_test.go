package media

import (
	"context"
	"testing"

	"threads/internal/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper_RemovesStorageIDsOnly(t *testing.T) {
	mr := miniredis.RunT(t)
	c := cache.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	store := newFakeStorage()
	store.objects["a"] = []byte("1")
	store.objects["b"] = []byte("2")
	store.failing["b"] = true
	require.NoError(t, mr.Set(cache.MediaURLKey("a"), `"https://cdn.test/a"`))

	n := NewSweeper(store, c).Sweep(context.Background(), []string{"a", "", "https://x.test/p.png", "a", "b", "missing"})
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "missing"}, store.removed)
	assert.Contains(t, store.objects, "b")
	assert.False(t, mr.Exists(cache.MediaURLKey("a")))
}

func TestSweeper_NoStorage(t *testing.T) {
	assert.Zero(t, NewSweeper(nil, nil).Sweep(context.Background(), []string{"a"}))
	var s *Sweeper
	assert.Zero(t, s.Sweep(context.Background(), []string{"a"}))
}
