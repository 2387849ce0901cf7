// Package storage provides keyed blob storage with pluggable backends.
//
// Backends implement interfaces.KVBackend and are created from location URIs:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//
//   - file:///var/lib/wallet/
//   - s3://bucket-name/prefix/?region=us-west-2
//   - ipfs://localhost:5001/wallet?timeout=30s
//   - vault://vault.example.com:8200/secret/wallets
//   - memory://
//
// Several locations combine into a MultiStorageBackend, which writes to every
// available backend and reads from the first one holding the key:
//
//	factory := storage.NewStorageBackendFactory(logger)
//	backend, err := factory.CreateMultiBackend(locations)
//
// The credential wallet (see Wallet) is the main consumer.
package storage
