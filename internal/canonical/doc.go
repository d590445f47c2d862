// Package canonical provides the one serialization used for integrity
// checks over database values.
//
// Every checksum in the repository is computed over the output of Marshal:
//   - Object keys sorted by UTF-16 code units (RFC 8785 ordering)
//   - No HTML escaping, no insignificant whitespace
//   - Strings NFC normalized
//   - Numbers written as their JSON literal (json.Number is preserved as-is)
//
// Values are the generic JSON shapes produced by Decode: nil, bool, string,
// json.Number, []any and map[string]any. Typed structs are accepted and
// converted through ToValue first.
package canonical
