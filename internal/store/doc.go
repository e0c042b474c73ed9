// Package store manages submission persistence backed by SQLite: attempts,
// the article packages they map to, and the checkpoint/notice audit trail.
package store
