// Package normalize turns arbitrary decoded JSON into a well-typed
// schema.Database.
//
// NormalizeDB never fails. Every correction it makes is reported as a
// human-readable warning, and its output is a fixed point: normalizing the
// canonical serialization of a result yields byte-identical output.
//
// Numeric fields accept native JSON numbers and Brazilian-locale strings
// such as "1.234,56" or "R$ 10,00".
package normalize
