// Package main (cmd/registry_client) is a command-line client for the registry API.
//
// Every request is sent on behalf of --principal (or REGISTRY_PRINCIPAL).
// Mutating commands print the submission handle, or with --wait block until
// the submission is final and print its confirmation status:
//
//	registry-client --principal=0x...01 submit eth-summit --witness=secret --wait
//	registry-client --principal=0x...bb validate 1 --wait
//	registry-client --principal=0x...aa set-metadata eth-summit --name="ETH Summit"
//	registry-client status 0x<handle> --refresh
//	registry-client wallet 0x...01
package main
