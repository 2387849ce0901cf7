/*
Package api holds the wire types shared by the registry HTTP handler and its client.

Subpackages:

  - registryhandler: chi handler exposing proof submission, validation,
    registry queries, submission status and the credential wallet.
  - clients: HTTP client for the same surface, used by the CLI.

Principals are passed in the X-Registry-Principal header as 0x-prefixed hex.
Domain errors map to HTTP status codes with StatusCode and back with ErrorForStatus:

	400 empty input            404 unknown proof or resource
	403 unauthorized           409 duplicate commitment
	402 insufficient resources 422 submission rejected
	503 ledger unavailable     504 polling timeout
*/
package api
