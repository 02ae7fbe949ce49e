package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"reelforge/internal/store"
	"reelforge/internal/testsupport"
)

func TestOpenAppliesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item, err := st.NewItem(ctx, "owner-1", "channel-1", "why the sky is blue", "fp-1")
	if err != nil {
		t.Fatalf("NewItem failed: %v", err)
	}
	if item.ID == "" {
		t.Fatal("expected item ID to be assigned")
	}
	if item.Stage != store.StageNew {
		t.Fatalf("expected new stage, got %s", item.Stage)
	}

	fetched, err := st.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if fetched == nil || fetched.Idea != "why the sky is blue" {
		t.Fatalf("unexpected fetched item: %#v", fetched)
	}

	found, err := st.FindByFingerprint(ctx, "fp-1")
	if err != nil {
		t.Fatalf("FindByFingerprint failed: %v", err)
	}
	if found == nil || found.ID != item.ID {
		t.Fatalf("expected to find inserted item, got %#v", found)
	}
}

func TestClaimStageCompareAndSet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item := testsupport.NewItem(t, st, "owner-1", "channel-1", "idea")

	claimed, err := st.ClaimStage(ctx, item.ID, store.StageNew, store.StageContentReady)
	if err != nil {
		t.Fatalf("ClaimStage failed: %v", err)
	}
	if !claimed {
		t.Fatal("expected first claim to succeed")
	}

	again, err := st.ClaimStage(ctx, item.ID, store.StageNew, store.StageContentReady)
	if err != nil {
		t.Fatalf("ClaimStage failed: %v", err)
	}
	if again {
		t.Fatal("expected second claim from stale stage to fail")
	}

	fetched, err := st.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if fetched.Stage != store.StageContentReady {
		t.Fatalf("expected content_ready, got %s", fetched.Stage)
	}
}

func TestClaimStageOnlyOneWinnerUnderContention(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item := testsupport.NewItem(t, st, "owner-1", "channel-1", "idea")

	const workers = 8
	var wg sync.WaitGroup
	wins := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := st.ClaimStage(ctx, item.ID, store.StageNew, store.StageContentReady)
			if err != nil {
				t.Errorf("ClaimStage failed: %v", err)
				return
			}
			wins <- claimed
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for claimed := range wins {
		if claimed {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestItemsByStageOldestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	var ids []string
	for i := 0; i < 4; i++ {
		item, err := st.NewItem(ctx, "owner-1", "channel-1", fmt.Sprintf("idea %d", i), fmt.Sprintf("fp-order-%d", i))
		if err != nil {
			t.Fatalf("NewItem failed: %v", err)
		}
		ids = append(ids, item.ID)
	}

	items, err := st.ItemsByStage(ctx, store.StageNew, 3)
	if err != nil {
		t.Fatalf("ItemsByStage failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected batch of 3, got %d", len(items))
	}
	for i, item := range items {
		if item.ID != ids[i] {
			t.Fatalf("expected oldest-first ordering, position %d got %s want %s", i, item.ID, ids[i])
		}
	}
}

func TestRetryFailedResetsOneStage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item := testsupport.NewItem(t, st, "owner-1", "channel-1", "idea")

	if err := st.MarkFailed(ctx, item.ID, store.StageFailedVoice, "synthesis exploded"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	reset, err := st.RetryFailed(ctx, item.ID)
	if err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if !reset {
		t.Fatal("expected failed item to reset")
	}

	fetched, err := st.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if fetched.Stage != store.StageContentReady {
		t.Fatalf("expected content_ready after retry, got %s", fetched.Stage)
	}
	if fetched.ErrorMessage != "" {
		t.Fatalf("expected error cleared, got %q", fetched.ErrorMessage)
	}

	reset, err = st.RetryFailed(ctx, item.ID)
	if err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if reset {
		t.Fatal("expected retry of non-failed item to be a no-op")
	}
}

func TestRegenerateKeepsScript(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item := testsupport.NewItem(t, st, "owner-1", "channel-1", "idea")
	item.Stage = store.StageArchived
	item.Script = "final script"
	item.VoiceAudioURL = "https://cdn.example/audio.mp3"
	if err := st.UpdateItem(ctx, item); err != nil {
		t.Fatalf("UpdateItem failed: %v", err)
	}

	if err := st.Regenerate(ctx, item.ID); err != nil {
		t.Fatalf("Regenerate failed: %v", err)
	}

	fetched, err := st.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if fetched.Stage != store.StageContentReady {
		t.Fatalf("expected content_ready, got %s", fetched.Stage)
	}
	if fetched.Script != "final script" {
		t.Fatalf("expected script preserved, got %q", fetched.Script)
	}
}

func TestStatsCountsByStage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		testsupport.NewItem(t, st, "owner-1", "channel-1", fmt.Sprintf("idea %d", i))
	}
	failed := testsupport.NewItem(t, st, "owner-1", "channel-1", "doomed idea")
	if err := st.MarkFailed(ctx, failed.ID, store.StageFailedContent, "nope"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[store.StageNew] != 3 {
		t.Fatalf("expected 3 new items, got %d", stats[store.StageNew])
	}
	if stats[store.StageFailedContent] != 1 {
		t.Fatalf("expected 1 failed item, got %d", stats[store.StageFailedContent])
	}
}

func TestUpdateItemIfRequiresExpectedStage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item, err := st.NewItem(ctx, "owner-1", "channel-1", "idea", "")
	if err != nil {
		t.Fatalf("NewItem failed: %v", err)
	}
	if claimed, err := st.ClaimStage(ctx, item.ID, store.StageNew, store.StageVoicePending); err != nil || !claimed {
		t.Fatalf("ClaimStage failed: claimed=%v err=%v", claimed, err)
	}

	item.Stage = store.StageVoiceReady
	item.VoiceAudioURL = "https://cdn.example/audio.mp3"
	flipped, err := st.UpdateItemIf(ctx, item, store.StageVoicePending)
	if err != nil {
		t.Fatalf("UpdateItemIf failed: %v", err)
	}
	if !flipped {
		t.Fatal("expected flip from the expected stage to succeed")
	}

	// A second writer holding a stale view must not overwrite.
	stale := *item
	stale.Stage = store.StageFailedVoice
	flipped, err = st.UpdateItemIf(ctx, &stale, store.StageVoicePending)
	if err != nil {
		t.Fatalf("UpdateItemIf failed: %v", err)
	}
	if flipped {
		t.Fatal("expected stale flip rejected")
	}

	fetched, err := st.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if fetched.Stage != store.StageVoiceReady {
		t.Fatalf("expected voice_ready preserved, got %s", fetched.Stage)
	}
	if fetched.VoiceAudioURL != "https://cdn.example/audio.mp3" {
		t.Fatalf("expected audio url preserved, got %q", fetched.VoiceAudioURL)
	}
}
