// Package clients provides an HTTP client for the registry API served by
// api/registryhandler. Non-2xx responses are returned as errors wrapping the
// matching interfaces sentinel, so errors.Is works across the wire.
package clients
