// Package model defines stable boundary types for the registry core.
//
// FileRecord and AccessGrant are mirrors of ledger-owned truth. They are produced
// only by coercing ledger replies at the component boundary (see CoerceRecords and
// CoerceGrants) and are never patched locally. The error taxonomy shared by every
// component also lives here.
package model
