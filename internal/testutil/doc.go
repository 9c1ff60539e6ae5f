// Package testutil contains helpers shared by tests: draining event streams
// with a deadline and building conversations that satisfy the history
// invariants. Not intended for production usage.
package testutil
