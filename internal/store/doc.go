// Package store is the single read/write path to the local database.
//
// A Manager owns one storage key in a kv.Store and derives from it:
//   - <key>            canonical JSON of the current database
//   - <key>__tmp       transient write buffer
//   - <key>__snapshots capped most-recent-first snapshot list
//   - <key>__backups   capped most-recent-first pre-import exports
//
// Every read migrates and normalizes. Every write normalizes, goes through
// the tmp key, and may snapshot. Unparsable persisted state is replaced with
// a default database and puts the Manager into recovery mode; storage
// failures do the same with a different reason. Recovery stays set until
// ClearRecovery.
//
// Manager state is per instance. Public methods serialize on a mutex, so
// Update gives callers an atomic read-modify-write.
package store
