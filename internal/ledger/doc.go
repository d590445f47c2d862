// Package ledger implements the domain operations layered on the store:
// stock movements, cash register sessions, inventory counts, sale voids,
// and the catalog and checkout operations that feed them.
//
// Every mutation follows the same sequence inside one store.Manager.Update:
// read, validate, compute the event and its delta, append the event and
// update derived fields, save. An audit entry is then written in a separate
// best-effort save; audit failures are logged and never returned.
//
// Domain violations are returned as *Error values wrapping one of the
// sentinel errors, so callers can use errors.Is or CodeOf.
package ledger
