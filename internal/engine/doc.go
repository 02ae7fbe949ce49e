// Package engine advances work items through the pipeline stages. Each
// advance pass claims a batch of items at one stage through a single-row
// compare-and-set, runs the stage handler on each item in isolation, and
// records the outcome. Items whose preconditions are not met yet are
// released back to their previous stage rather than failed.
package engine
