package ingest_test

import (
	"context"
	"errors"
	"testing"

	"github.com/vartanbeno/go-reddit/v2/reddit"

	"reelforge/internal/ingest"
	"reelforge/internal/store"
	"reelforge/internal/testsupport"
)

type fakeSource struct {
	posts map[string][]*reddit.Post
	err   error
	calls int
}

func (f *fakeSource) TopPosts(ctx context.Context, subreddit string, opts *reddit.ListPostOptions) ([]*reddit.Post, *reddit.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.posts[subreddit], nil, nil
}

func seedSubredditChannel(t *testing.T, st *store.Store, id, subreddit string) *store.Channel {
	t.Helper()

	channel := testsupport.SeedChannel(t, st, id, "owner-1")
	channel.Subreddit = subreddit
	if err := st.UpsertChannel(context.Background(), channel); err != nil {
		t.Fatalf("store.UpsertChannel: %v", err)
	}
	return channel
}

func TestRunCreatesItemsFromTopPosts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	seedSubredditChannel(t, st, "chan-1", "todayilearned")

	source := &fakeSource{posts: map[string][]*reddit.Post{
		"todayilearned": {
			{ID: "p1", Title: "TIL honey never spoils"},
			{ID: "p2", Title: "TIL octopuses have three hearts"},
			{ID: "p3", Title: "   "},
		},
	}}
	ing, err := ingest.New(st, cfg, nil, nil, ingest.WithPostSource(source))
	if err != nil {
		t.Fatalf("ingest.New: %v", err)
	}

	added, err := ing.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if added != 2 {
		t.Fatalf("expected 2 items created, got %d", added)
	}

	item, err := st.FindByFingerprint(context.Background(), ingest.Fingerprint("p1"))
	if err != nil {
		t.Fatalf("store.FindByFingerprint: %v", err)
	}
	if item == nil {
		t.Fatal("expected item for post p1")
	}
	if item.Idea != "TIL honey never spoils" {
		t.Fatalf("expected post title as idea, got %q", item.Idea)
	}
	if item.Stage != store.StageNew {
		t.Fatalf("expected new stage, got %s", item.Stage)
	}
}

func TestRunDeduplicatesBetweenSweeps(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	seedSubredditChannel(t, st, "chan-1", "todayilearned")

	source := &fakeSource{posts: map[string][]*reddit.Post{
		"todayilearned": {{ID: "p1", Title: "TIL honey never spoils"}},
	}}
	ing, err := ingest.New(st, cfg, nil, nil, ingest.WithPostSource(source))
	if err != nil {
		t.Fatalf("ingest.New: %v", err)
	}

	for sweep := 0; sweep < 2; sweep++ {
		if _, err := ing.Run(context.Background()); err != nil {
			t.Fatalf("Run sweep %d: %v", sweep, err)
		}
	}

	items, err := st.List(context.Background())
	if err != nil {
		t.Fatalf("store.List: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one item after repeated sweeps, got %d", len(items))
	}
}

func TestRunSkipsChannelsWithoutSubreddit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedChannel(t, st, "chan-1", "owner-1")

	source := &fakeSource{}
	ing, err := ingest.New(st, cfg, nil, nil, ingest.WithPostSource(source))
	if err != nil {
		t.Fatalf("ingest.New: %v", err)
	}

	added, err := ing.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if added != 0 {
		t.Fatalf("expected no items, got %d", added)
	}
	if source.calls != 0 {
		t.Fatalf("expected no reddit calls, got %d", source.calls)
	}
}

func TestRunContinuesPastFailingChannel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	seedSubredditChannel(t, st, "chan-bad", "banned")
	seedSubredditChannel(t, st, "chan-good", "worldnews")

	failing := &fakeSource{err: errors.New("403 forbidden")}
	good := map[string][]*reddit.Post{
		"worldnews": {{ID: "w1", Title: "A headline"}},
	}
	source := &splitSource{failFor: "banned", inner: &fakeSource{posts: good}, failing: failing}
	ing, err := ingest.New(st, cfg, nil, nil, ingest.WithPostSource(source))
	if err != nil {
		t.Fatalf("ingest.New: %v", err)
	}

	added, err := ing.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if added != 1 {
		t.Fatalf("expected one item from the healthy channel, got %d", added)
	}
}

type splitSource struct {
	failFor string
	inner   *fakeSource
	failing *fakeSource
}

func (s *splitSource) TopPosts(ctx context.Context, subreddit string, opts *reddit.ListPostOptions) ([]*reddit.Post, *reddit.Response, error) {
	if subreddit == s.failFor {
		return s.failing.TopPosts(ctx, subreddit, opts)
	}
	return s.inner.TopPosts(ctx, subreddit, opts)
}
