// Package fleet defines the static description of the managed game servers:
// the per-server descriptors read from configuration, the settings they
// share, and the endpoint addressing used by every other package.
//
// # Overview
//
// A fleet is a set of independently running server processes reachable on
// one shared address, each on its own port. Every process exposes an HTML
// web administration UI and nothing else, so the endpoint (address + port)
// is the only handle the rotator ever holds on a server.
//
//	┌──────────────────────────────┐
//	│ GlobalSettings                │
//	│   ServerAddress http://host   │
//	│   Username / Password         │
//	│   PollInterval, Threshold     │
//	└──────────────┬───────────────┘
//	               │ shared by
//	   ┌───────────┼───────────┐
//	   ▼           ▼           ▼
//	 :8000       :8001       :8002     ServerDescriptor (one per port)
//
// # Immutability
//
// ServerDescriptor and GlobalSettings are plain values created once at
// startup. Mutable per-server state lives in the rotation package and is
// never stored on these types.
//
// # Endpoints
//
// Endpoint.Key is host:port. Cookie jars in the session package are
// partitioned on this key, which keeps two servers on the same host from
// seeing each other's session cookies (RFC 6265 cookies ignore the port).
package fleet
