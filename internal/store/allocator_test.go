package store_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"reelforge/internal/services"
	"reelforge/internal/testsupport"
)

func TestAllocateNextRoundRobin(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := st.AddSourceAsset(ctx, "channel-1", fmt.Sprintf("clip-%d", i), fmt.Sprintf("https://cdn.example/clip-%d.mp4", i)); err != nil {
			t.Fatalf("AddSourceAsset failed: %v", err)
		}
	}

	var got []string
	for i := 0; i < 7; i++ {
		asset, err := st.AllocateNext(ctx, "channel-1")
		if err != nil {
			t.Fatalf("AllocateNext failed: %v", err)
		}
		got = append(got, asset.Name)
	}
	want := []string{"clip-0", "clip-1", "clip-2", "clip-0", "clip-1", "clip-2", "clip-0"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("allocation %d: got %s, want %s (full sequence %v)", i, got[i], want[i], got)
		}
	}
}

func TestAllocateNextEmptyPool(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	_, err := st.AllocateNext(context.Background(), "channel-empty")
	if err == nil {
		t.Fatal("expected error for empty pool")
	}
	if !errors.Is(err, services.ErrPoolEmpty) {
		t.Fatalf("expected pool-empty marker, got %v", err)
	}
}

func TestAllocateNextEvenDistributionUnderConcurrency(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	const poolSize = 3
	for i := 0; i < poolSize; i++ {
		if err := st.AddSourceAsset(ctx, "channel-1", fmt.Sprintf("clip-%d", i), fmt.Sprintf("https://cdn.example/clip-%d.mp4", i)); err != nil {
			t.Fatalf("AddSourceAsset failed: %v", err)
		}
	}

	const rounds = 4
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		counts = map[string]int{}
	)
	for i := 0; i < poolSize*rounds; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			asset, err := st.AllocateNext(ctx, "channel-1")
			if err != nil {
				t.Errorf("AllocateNext failed: %v", err)
				return
			}
			mu.Lock()
			counts[asset.Name]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	for name, count := range counts {
		if count != rounds {
			t.Fatalf("expected each asset allocated %d times, %s got %d (counts %v)", rounds, name, count, counts)
		}
	}
}
