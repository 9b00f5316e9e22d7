package repositories

import (
	"sync"
	"sync/atomic"
	"testing"

	"example.com/flightguild/bot/internal/models"

	"github.com/stretchr/testify/require"
)

func TestRequestRegistryTakeFirstWins(t *testing.T) {
	registry := NewRequestRegistry()
	registry.Put(models.RoleRequest{ID: "r1", UserID: "u1", RoleID: "member"})

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := registry.Take("r1"); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), wins)
	require.Zero(t, registry.Len())
}

func TestRequestRegistryDelete(t *testing.T) {
	registry := NewRequestRegistry()
	registry.Put(models.RoleRequest{ID: "r1"})
	registry.Delete("r1")

	_, ok := registry.Take("r1")
	require.False(t, ok)
}
