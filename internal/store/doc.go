// Package store provides typed access to the pipeline state backed by
// SQLite: work items, channels, external tasks, source asset pools, credit
// accounts, and the durable asset catalog.
//
// The store is the only synchronization primitive the pipeline has. Stage
// claims are single-row compare-and-set writes; the asset cursor and credit
// balance are mutated inside single transactions so concurrent worker
// invocations never observe the same allocation or overdraw a balance.
package store
