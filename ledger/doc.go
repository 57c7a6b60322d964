// Package ledger is the client side of the registry contract.
//
// Every call and transaction travels as a signed Envelope over a Backend. The
// Backend is the ledger's only surface: Call for reads, Transact for mutations,
// which return once the transaction is committed. A Contract binds a Backend to a
// signer and exposes the five contract entry points.
//
// Read replies are loosely typed rows ([]map[string]any). Callers coerce them with
// model.CoerceRecords and model.CoerceGrants.
package ledger
