// Package store provides the document store behind the risk register.
//
// The store holds named collections, each persisted as one serialized
// document that is replaced wholesale on every write:
//   - risks: every Risk record
//   - controls: every Control record
//   - activity: the activity log
//   - meta: store-level markers such as the data schema version
//
// # Guarantees
//
// Reads of an absent collection return an empty slice. A write replaces the
// whole collection. There are no cross-collection transactions, so callers
// that mutate both collections must order their writes and tolerate a
// partial sequence; see internal/linksync for the repair pass.
//
// # Backends
//
//   - SQLite (default): one row per collection, WAL mode, busy_timeout=5000,
//     schema tracked through PRAGMA user_version
//   - Badger: one key per collection, in-memory mode for tests
//   - Redis: one key per collection under a configurable prefix
package store
