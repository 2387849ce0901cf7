// Command httpserver runs the proof credential registry API.
//
// The ledger is either an in-process simulated chain (--ledger=memory) that
// mines a block every --block-interval, or a ProofRegistry contract reached
// over JSON-RPC (--ledger=ethereum). Submissions are tracked to finality in
// the background; minted credentials are written to every --wallet location
// and finalized statuses are published to Kafka when brokers are given, or
// logged otherwise.
//
// Example with the in-memory ledger:
//
//	registry-server --listen-addr=0.0.0.0:8080 \
//	    --owner=0x00000000000000000000000000000000000000aa \
//	    --validators=0x00000000000000000000000000000000000000bb \
//	    --wallet=file:///var/lib/registry/wallet --prover=groth16
//
// Example against a deployed contract:
//
//	registry-server --ledger=ethereum --rpc-addr=http://localhost:8545 \
//	    --registry-contract=0x5FbDB2315678afecb367f032d93F642f64180aa3 \
//	    --private-key=$KEY --chain-id=31337 \
//	    --kafka-brokers=localhost:9092
package main
