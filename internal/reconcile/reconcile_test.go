package reconcile_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"reelforge/internal/config"
	"reelforge/internal/logging"
	"reelforge/internal/notifications"
	"reelforge/internal/reconcile"
	"reelforge/internal/services/speech"
	"reelforge/internal/services/videosynth"
	"reelforge/internal/store"
	"reelforge/internal/testsupport"
)

type fakePoller struct {
	results map[string]speech.PollResult
	err     error
	calls   int
}

func (f *fakePoller) Poll(ctx context.Context, taskID string) (speech.PollResult, error) {
	f.calls++
	if f.err != nil {
		return speech.PollResult{}, f.err
	}
	result, ok := f.results[taskID]
	if !ok {
		return speech.PollResult{Outcome: speech.OutcomeInProgress}, nil
	}
	return result, nil
}

type fakeLister struct {
	recent []videosynth.RecentTask
	urls   map[string]string
	calls  int
}

func (f *fakeLister) Configured() bool { return true }

func (f *fakeLister) ListRecent(ctx context.Context) ([]videosynth.RecentTask, error) {
	f.calls++
	return f.recent, nil
}

func (f *fakeLister) DownloadURL(ctx context.Context, postID string) (string, error) {
	url, ok := f.urls[postID]
	if !ok {
		return "", errors.New("unknown post")
	}
	return url, nil
}

func newTestReconciler(t *testing.T, cfg *config.Config, st *store.Store, poller reconcile.SpeechPoller, lister reconcile.VideoLister, opts ...reconcile.Option) *reconcile.Reconciler {
	t.Helper()
	return reconcile.New(st, cfg, logging.NewNop(), notifications.NewService(cfg), poller, lister, opts...)
}

func seedPendingItem(t *testing.T, st *store.Store, stage store.Stage, kind store.TaskKind, providerRef string, submittedAt time.Time) (*store.WorkItem, *store.ExternalTask) {
	t.Helper()

	ctx := context.Background()
	item := testsupport.NewItem(t, st, "owner-1", "channel-1", "idea")
	item.Stage = stage
	task := &store.ExternalTask{
		ID:          uuid.NewString(),
		ProviderRef: providerRef,
		Kind:        kind,
		ItemID:      item.ID,
		OwnerID:     "owner-1",
		SubmittedAt: submittedAt,
	}
	if err := st.InsertTask(ctx, task); err != nil {
		t.Fatalf("InsertTask failed: %v", err)
	}
	if kind == store.TaskVoice {
		item.VoiceTaskID = task.ID
	} else {
		item.VideoTaskID = task.ID
	}
	if err := st.UpdateItem(ctx, item); err != nil {
		t.Fatalf("UpdateItem failed: %v", err)
	}
	return item, task
}

func TestReconcileVoiceSuccessFlipsItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	item, task := seedPendingItem(t, st, store.StageVoicePending, store.TaskVoice, "speech-1", time.Now().UTC())

	poller := &fakePoller{results: map[string]speech.PollResult{
		"speech-1": {Outcome: speech.OutcomeSuccess, AudioURL: "https://cdn.example/audio.mp3"},
	}}
	rec := newTestReconciler(t, cfg, st, poller, &fakeLister{})

	ctx := context.Background()
	resolved, err := rec.ReconcileVoice(ctx)
	if err != nil {
		t.Fatalf("ReconcileVoice failed: %v", err)
	}
	if resolved != 1 {
		t.Fatalf("expected 1 task resolved, got %d", resolved)
	}

	fetched, err := st.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if fetched.Stage != store.StageVoiceReady {
		t.Fatalf("expected voice_ready, got %s", fetched.Stage)
	}
	if fetched.VoiceAudioURL != "https://cdn.example/audio.mp3" {
		t.Fatalf("expected audio url recorded, got %q", fetched.VoiceAudioURL)
	}

	stored, err := st.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if stored.ProviderStatus != store.TaskStatusSuccess || stored.ArtifactURL == "" {
		t.Fatalf("expected artifact recorded on task, got %#v", stored)
	}
}

func TestReconcileVoiceProviderErrorFailsItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	item, _ := seedPendingItem(t, st, store.StageVoicePending, store.TaskVoice, "speech-1", time.Now().UTC())

	poller := &fakePoller{results: map[string]speech.PollResult{
		"speech-1": {Outcome: speech.OutcomeError, Message: "voice model rejected input"},
	}}
	rec := newTestReconciler(t, cfg, st, poller, &fakeLister{})

	ctx := context.Background()
	if _, err := rec.ReconcileVoice(ctx); err != nil {
		t.Fatalf("ReconcileVoice failed: %v", err)
	}

	fetched, err := st.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if fetched.Stage != store.StageFailedVoice {
		t.Fatalf("expected failed_voice, got %s", fetched.Stage)
	}
	if fetched.ErrorMessage != "voice model rejected input" {
		t.Fatalf("unexpected error message %q", fetched.ErrorMessage)
	}
}

func TestReconcileVideoVanishedTaskFailsExactlyOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	submitted := time.Now().UTC().Add(-20 * time.Minute)
	item, task := seedPendingItem(t, st, store.StageVideoPending, store.TaskVideo, "anim-gone", submitted)

	lister := &fakeLister{} // provider has no record of the job
	rec := newTestReconciler(t, cfg, st, &fakePoller{}, lister)

	ctx := context.Background()
	resolved, err := rec.ReconcileVideo(ctx)
	if err != nil {
		t.Fatalf("ReconcileVideo failed: %v", err)
	}
	if resolved != 1 {
		t.Fatalf("expected 1 task resolved, got %d", resolved)
	}

	fetched, err := st.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if fetched.Stage != store.StageFailedVideo {
		t.Fatalf("expected failed_video, got %s", fetched.Stage)
	}

	stored, err := st.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if stored.ProviderStatus != store.TaskStatusFailed {
		t.Fatalf("expected failed task, got %s", stored.ProviderStatus)
	}

	// A later sweep must not touch the already-resolved task again.
	resolved, err = rec.ReconcileVideo(ctx)
	if err != nil {
		t.Fatalf("second ReconcileVideo failed: %v", err)
	}
	if resolved != 0 {
		t.Fatalf("expected no further resolutions, got %d", resolved)
	}
}

func TestReconcileVideoWithinTimeoutLeavesTaskPending(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	item, _ := seedPendingItem(t, st, store.StageVideoPending, store.TaskVideo, "anim-slow", time.Now().UTC())

	rec := newTestReconciler(t, cfg, st, &fakePoller{}, &fakeLister{})

	ctx := context.Background()
	resolved, err := rec.ReconcileVideo(ctx)
	if err != nil {
		t.Fatalf("ReconcileVideo failed: %v", err)
	}
	if resolved != 0 {
		t.Fatalf("expected nothing resolved, got %d", resolved)
	}

	fetched, err := st.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if fetched.Stage != store.StageVideoPending {
		t.Fatalf("expected item still video_pending, got %s", fetched.Stage)
	}
}

func TestReconcileVideoSuccessRecordsArtifactBeforeFlip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	item, task := seedPendingItem(t, st, store.StageVideoPending, store.TaskVideo, "anim-1", time.Now().UTC())

	lister := &fakeLister{
		recent: []videosynth.RecentTask{{AnimateID: "anim-1", PostID: "post-1", WorkStatus: 200}},
		urls:   map[string]string{"post-1": "https://cdn.example/result.mp4"},
	}
	rec := newTestReconciler(t, cfg, st, &fakePoller{}, lister)

	ctx := context.Background()
	resolved, err := rec.ReconcileVideo(ctx)
	if err != nil {
		t.Fatalf("ReconcileVideo failed: %v", err)
	}
	if resolved != 1 {
		t.Fatalf("expected 1 task resolved, got %d", resolved)
	}

	stored, err := st.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if stored.ArtifactURL != "https://cdn.example/result.mp4" {
		t.Fatalf("expected artifact url on task, got %q", stored.ArtifactURL)
	}

	fetched, err := st.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if fetched.Stage != store.StageVideoReady {
		t.Fatalf("expected video_ready, got %s", fetched.Stage)
	}
}

func TestReconcileVideoClockOverride(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	_, task := seedPendingItem(t, st, store.StageVideoPending, store.TaskVideo, "anim-2", time.Now().UTC())

	future := time.Now().UTC().Add(time.Duration(cfg.Pipeline.PendingTimeoutMinutes+1) * time.Minute)
	rec := newTestReconciler(t, cfg, st, &fakePoller{}, &fakeLister{},
		reconcile.WithClock(func() time.Time { return future }))

	ctx := context.Background()
	resolved, err := rec.ReconcileVideo(ctx)
	if err != nil {
		t.Fatalf("ReconcileVideo failed: %v", err)
	}
	if resolved != 1 {
		t.Fatalf("expected timeout resolution, got %d", resolved)
	}
	stored, err := st.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if stored.ProviderStatus != store.TaskStatusFailed {
		t.Fatalf("expected failed, got %s", stored.ProviderStatus)
	}
}

func seedOrphanedItem(t *testing.T, st *store.Store, stage store.Stage) *store.WorkItem {
	t.Helper()

	ctx := context.Background()
	item := testsupport.NewItem(t, st, "owner-1", "channel-1", "idea")
	item.Stage = stage
	if err := st.UpdateItem(ctx, item); err != nil {
		t.Fatalf("UpdateItem failed: %v", err)
	}
	return item
}

func TestReconcileVoiceOrphanedItemFailsAfterTimeout(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	item := seedOrphanedItem(t, st, store.StageVoicePending)

	future := time.Now().UTC().Add(24 * time.Hour)
	rec := newTestReconciler(t, cfg, st, &fakePoller{}, &fakeLister{},
		reconcile.WithClock(func() time.Time { return future }))

	ctx := context.Background()
	resolved, err := rec.ReconcileVoice(ctx)
	if err != nil {
		t.Fatalf("ReconcileVoice failed: %v", err)
	}
	if resolved != 1 {
		t.Fatalf("expected orphan resolution, got %d", resolved)
	}

	fetched, err := st.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if fetched.Stage != store.StageFailedVoice {
		t.Fatalf("expected failed_voice, got %s", fetched.Stage)
	}
	if !strings.Contains(fetched.ErrorMessage, "no provider task") {
		t.Fatalf("expected orphan reason recorded, got %q", fetched.ErrorMessage)
	}

	resolved, err = rec.ReconcileVoice(ctx)
	if err != nil {
		t.Fatalf("second ReconcileVoice failed: %v", err)
	}
	if resolved != 0 {
		t.Fatalf("expected failure reported once, got %d", resolved)
	}
}

func TestReconcileVoiceOrphanedItemWithinTimeoutLeftPending(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	item := seedOrphanedItem(t, st, store.StageVoicePending)

	rec := newTestReconciler(t, cfg, st, &fakePoller{}, &fakeLister{})

	ctx := context.Background()
	resolved, err := rec.ReconcileVoice(ctx)
	if err != nil {
		t.Fatalf("ReconcileVoice failed: %v", err)
	}
	if resolved != 0 {
		t.Fatalf("expected nothing resolved, got %d", resolved)
	}

	fetched, err := st.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if fetched.Stage != store.StageVoicePending {
		t.Fatalf("expected item left pending, got %s", fetched.Stage)
	}
}

func TestReconcileVoiceReplaysLostFlip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	item, task := seedPendingItem(t, st, store.StageVoicePending, store.TaskVoice, "speech-1", time.Now().UTC())

	ctx := context.Background()
	if err := st.ResolveTaskSuccess(ctx, task.ID, "https://cdn.example/audio.mp3"); err != nil {
		t.Fatalf("ResolveTaskSuccess failed: %v", err)
	}

	poller := &fakePoller{}
	rec := newTestReconciler(t, cfg, st, poller, &fakeLister{})
	resolved, err := rec.ReconcileVoice(ctx)
	if err != nil {
		t.Fatalf("ReconcileVoice failed: %v", err)
	}
	if resolved != 1 {
		t.Fatalf("expected replayed flip counted, got %d", resolved)
	}
	if poller.calls != 0 {
		t.Fatalf("expected no provider polls for a resolved task, got %d", poller.calls)
	}

	fetched, err := st.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if fetched.Stage != store.StageVoiceReady {
		t.Fatalf("expected voice_ready, got %s", fetched.Stage)
	}
	if fetched.VoiceAudioURL != "https://cdn.example/audio.mp3" {
		t.Fatalf("expected audio url copied from task, got %q", fetched.VoiceAudioURL)
	}
}

func TestReconcileVideoOrphanedItemFailsAfterTimeout(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	item := seedOrphanedItem(t, st, store.StageVideoPending)

	future := time.Now().UTC().Add(24 * time.Hour)
	lister := &fakeLister{}
	rec := newTestReconciler(t, cfg, st, &fakePoller{}, lister,
		reconcile.WithClock(func() time.Time { return future }))

	ctx := context.Background()
	resolved, err := rec.ReconcileVideo(ctx)
	if err != nil {
		t.Fatalf("ReconcileVideo failed: %v", err)
	}
	if resolved != 1 {
		t.Fatalf("expected orphan resolution, got %d", resolved)
	}
	if lister.calls != 0 {
		t.Fatalf("expected no provider calls without unresolved tasks, got %d", lister.calls)
	}

	fetched, err := st.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if fetched.Stage != store.StageFailedVideo {
		t.Fatalf("expected failed_video, got %s", fetched.Stage)
	}
}

func TestReconcileVoiceSuccessRespectsOperatorMove(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	item, task := seedPendingItem(t, st, store.StageVoicePending, store.TaskVoice, "speech-1", time.Now().UTC())

	ctx := context.Background()
	item.Stage = store.StageContentReady
	if err := st.UpdateItem(ctx, item); err != nil {
		t.Fatalf("UpdateItem failed: %v", err)
	}

	poller := &fakePoller{results: map[string]speech.PollResult{
		"speech-1": {Outcome: speech.OutcomeSuccess, AudioURL: "https://cdn.example/audio.mp3"},
	}}
	rec := newTestReconciler(t, cfg, st, poller, &fakeLister{})
	if _, err := rec.ReconcileVoice(ctx); err != nil {
		t.Fatalf("ReconcileVoice failed: %v", err)
	}

	fetched, err := st.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if fetched.Stage != store.StageContentReady {
		t.Fatalf("expected operator stage preserved, got %s", fetched.Stage)
	}

	stored, err := st.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if stored.ProviderStatus != store.TaskStatusSuccess {
		t.Fatalf("expected artifact kept on task, got %s", stored.ProviderStatus)
	}
}
