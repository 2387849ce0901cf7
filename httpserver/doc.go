/*
Package httpserver runs the registry API together with operational endpoints.

Routes:

  - the registry API from api/registryhandler
  - GET /livez: liveness
  - GET /readyz: readiness, 503 while draining
  - GET /drain, GET /undrain: toggle readiness ahead of a shutdown
  - /debug/pprof when EnablePprof is set

Requests are logged with the flashbots httplogger middleware. Metrics are
served on a separate listener when MetricsAddr is set.
*/
package httpserver
