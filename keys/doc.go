// Package keys provides local account keys and the signers built from them.
//
// Stable:
//   - Pure, deterministic primitives: role-seed derivation, signer construction from
//     a seed, signature verification.
//
// Experimental:
//   - Filesystem-backed key storage (KeyStore) and the active-account marker. These
//     are local-first utilities for development wallets.
package keys
