// Package schema defines the persisted record shapes of the point-of-sale
// database and the forward-only migration path between schema versions.
//
// The versions form a closed set (V0 through CurrentVersion). Every adjacent
// pair has exactly one migration step, and a step may only add the shape
// introduced at its version with safe defaults. Steps never delete user
// data, so a database written by any older release can always be read.
//
// Migration works on the raw decoded JSON (map[string]any) because older
// shapes are not representable by the current structs. Validation and
// normalization into a *Database happen afterwards, in package normalize.
package schema
