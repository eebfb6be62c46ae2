// Package certledger implements the hash-linked certificate registry.
//
// The chain begins with a genesis record whose PreviousHash is GenesisHash
// (64 hex zeros). Every record stores the canonical content hash of its own
// identity fields and the Hash of its predecessor, so editing any stored
// record is detectable via VerifyIntegrity.
//
// Two implementations of the Ledger interface are provided:
//   - MemoryLedger: in-process, for testing and development.
//   - PostgresLedger: durable, for production use.
package certledger
