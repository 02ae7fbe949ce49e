// Package reconcile resolves in-flight external tasks against provider
// state. The engine only submits work; every voice_pending and
// video_pending item is moved forward or failed here. Artifacts are always
// recorded on the task before the item's stage flips, so a crash between
// the two writes re-runs the cheap stage flip instead of losing the
// artifact.
package reconcile
