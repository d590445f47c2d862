// Package merge reconciles two generic database values without blind
// overwrite.
//
// Rules, applied recursively from the root:
//   - A key present on one side only is copied verbatim.
//   - Two arrays are unioned. Items are correlated by a fingerprint taken
//     from the first matching extractor of the collection's list, falling
//     back to the item's canonical JSON.
//   - Two objects are merged field by field.
//   - Two differing primitives are resolved by Prefer, and the pair is
//     recorded as a Conflict. The same rule applies at every depth.
//
// estoque is special: items are keyed strictly by cod, and qtd is summed
// (the default) or resolved by Prefer. Items without cod are dropped with a
// warning.
//
// meta is bookkeeping: createdAt keeps the earliest value, updatedAt the
// latest, and other fields follow Prefer without reporting conflicts.
package merge
