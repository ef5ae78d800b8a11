package cache_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/flexcard-bfa-go/internal/infra/cache"
)

func TestCache_SetIfAbsent(t *testing.T) {
	c := cache.New[int](5 * time.Minute)
	defer c.Close()

	if !c.SetIfAbsent("k", 1, time.Minute) {
		t.Fatal("expected first SetIfAbsent to store")
	}
	if c.SetIfAbsent("k", 2, time.Minute) {
		t.Fatal("expected second SetIfAbsent to be rejected")
	}
}

func TestCache_Delete(t *testing.T) {
	c := cache.New[int](5 * time.Minute)
	defer c.Close()

	c.SetIfAbsent("k", 1, time.Minute)
	c.Delete("k")

	if !c.SetIfAbsent("k", 2, time.Minute) {
		t.Fatal("expected deleted key to be storable again")
	}
}

func TestCache_SetIfAbsentAfterExpiry(t *testing.T) {
	c := cache.New[int](5 * time.Minute)
	defer c.Close()

	c.SetIfAbsent("k", 1, 20*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	if !c.SetIfAbsent("k", 2, time.Minute) {
		t.Fatal("expected expired key to be claimable again")
	}
}

func TestMemoryClaims_SingleWinner(t *testing.T) {
	claims := cache.NewMemoryClaims(time.Minute)
	defer claims.Close()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := claims.Claim(context.Background(), "view:abc:key", time.Minute)
			if err != nil {
				t.Errorf("claim: %v", err)
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("expected exactly one winner, got %d", wins.Load())
	}
}

func TestMemoryClaims_Release(t *testing.T) {
	claims := cache.NewMemoryClaims(time.Minute)
	defer claims.Close()
	ctx := context.Background()

	if ok, _ := claims.Claim(ctx, "view:abc:key", time.Minute); !ok {
		t.Fatal("expected first claim to win")
	}
	if err := claims.Release(ctx, "view:abc:key"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := claims.Claim(ctx, "view:abc:key", time.Minute); !ok {
		t.Error("expected released key to be claimable again")
	}
}
