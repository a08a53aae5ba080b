// Package daemon contains the HTTP façade of the vltest daemon. Handlers are
// thin: they decode the request, call into the engine, and stream rpc chunks
// back. A type-safe client for this server lives in pkg/client.
package daemon
