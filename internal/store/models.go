package store

import (
	"strings"
	"time"
)

// Stage represents the lifecycle position of a work item.
type Stage string

const (
	StageNew          Stage = "new"
	StageContentReady Stage = "content_ready"
	StageVoicePending Stage = "voice_pending"
	StageVoiceReady   Stage = "voice_ready"
	StageVideoPending Stage = "video_pending"
	StageVideoReady   Stage = "video_ready"
	StageArchived     Stage = "archived"

	StageFailedContent Stage = "failed_content"
	StageFailedVoice   Stage = "failed_voice"
	StageFailedVideo   Stage = "failed_video"
	StageFailedArchive Stage = "failed_archive"
)

var allStages = []Stage{
	StageNew,
	StageContentReady,
	StageVoicePending,
	StageVoiceReady,
	StageVideoPending,
	StageVideoReady,
	StageArchived,
	StageFailedContent,
	StageFailedVoice,
	StageFailedVideo,
	StageFailedArchive,
}

var stageSet = func() map[Stage]struct{} {
	set := make(map[Stage]struct{}, len(allStages))
	for _, stage := range allStages {
		set[stage] = struct{}{}
	}
	return set
}()

var pendingStages = map[Stage]struct{}{
	StageVoicePending: {},
	StageVideoPending: {},
}

// retryTransitions maps each failed stage back to the state an operator
// retry re-enters.
var retryTransitions = map[Stage]Stage{
	StageFailedContent: StageNew,
	StageFailedVoice:   StageContentReady,
	StageFailedVideo:   StageVoiceReady,
	StageFailedArchive: StageVideoReady,
}

// AllStages returns the ordered list of known stages.
func AllStages() []Stage {
	cp := make([]Stage, len(allStages))
	copy(cp, allStages)
	return cp
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stageSet[normalized]
	return normalized, ok
}

// IsPending reports whether a stage reflects an in-flight external task.
func IsPending(stage Stage) bool {
	_, ok := pendingStages[stage]
	return ok
}

// IsFailed reports whether a stage is one of the failure branches.
func IsFailed(stage Stage) bool {
	_, ok := retryTransitions[stage]
	return ok
}

// RetryTarget returns the stage an operator retry resets a failed item to.
func RetryTarget(failed Stage) (Stage, bool) {
	target, ok := retryTransitions[failed]
	return target, ok
}

// WorkItem is one idea progressing through the pipeline.
type WorkItem struct {
	ID              string
	OwnerID         string
	ChannelID       string
	Stage           Stage
	Fingerprint     string
	Idea            string
	Script          string
	ScriptProvider  string
	VoiceTaskID     string
	VoiceAudioURL   string
	VideoTaskID     string
	ArchivedAssetID int64
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Channel defines whether automated progression is enabled for an owner's
// channel and supplies generation parameters. Read-only to the pipeline.
type Channel struct {
	ID             string
	OwnerID        string
	Name           string
	AutomationOn   bool
	VoiceID        string
	PromptTemplate string
	Subreddit      string
	CreatedAt      time.Time
}

// TaskKind distinguishes voice and video external tasks.
type TaskKind string

const (
	TaskVoice TaskKind = "voice"
	TaskVideo TaskKind = "video"
)

// Task statuses mirror the provider lifecycle as last observed.
const (
	TaskStatusQueued     = "queued"
	TaskStatusProcessing = "processing"
	TaskStatusSuccess    = "success"
	TaskStatusFailed     = "failed"
)

// ExternalTask is a handle to a provider-side asynchronous job.
type ExternalTask struct {
	ID             string
	ProviderRef    string
	Kind           TaskKind
	ItemID         string
	OwnerID        string
	ProviderStatus string
	ArtifactURL    string
	ErrorMessage   string
	SubmittedAt    time.Time
	UpdatedAt      time.Time
}

// SourceAsset is one reusable source video in a channel's pool.
type SourceAsset struct {
	ChannelID string
	Position  int
	Name      string
	URL       string
}

// ArchivedAsset is the durable record of a relocated result video.
type ArchivedAsset struct {
	ID          int64
	ChannelID   string
	TaskID      string
	StorageKey  string
	DisplayName string
	CreatedAt   time.Time
}

// ActivityEntry is one append-only log line attached to a work item.
type ActivityEntry struct {
	ID        int64
	ItemID    string
	Kind      string
	Message   string
	CreatedAt time.Time
}

// HealthSummary aggregates item counts by lifecycle group.
type HealthSummary struct {
	Total    int
	Waiting  int
	Pending  int
	Failed   int
	Archived int
}
