// Package kv is the local persistent key to string store the engine writes
// through.
//
// The store has no notion of value types or sizes; callers own all
// serialization. Two implementations are provided:
//   - SQLite: durable, single-writer, used by the CLI and the remote service
//   - Memory: in-process, with failure injection for tests
//
// Get reports a missing key with ok=false and a nil error.
package kv
