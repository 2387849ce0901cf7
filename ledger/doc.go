// Package ledger groups the implementations of interfaces.Ledger.
//
//   - memledger hosts a registry.Registry in process and mines blocks on demand
//     or on a timer. It backs development mode and tests.
//   - ethledger talks to a ProofRegistry contract on an EVM chain through go-ethereum.
//
// MockLedger is a testify mock of the full ledger surface (Ledger, CredentialLedger
// and RegistryReader) for handler and service tests.
package ledger
