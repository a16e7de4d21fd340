// Package session holds the cookie state that makes up a login session on a
// server's admin UI.
//
// # Overview
//
// The admin UI has no token API. A session is two cookies:
//
//	sessionid  issued by the login page on each visit
//	authcred   issued by a successful credential POST
//
// Both are scoped to one endpoint (host:port). The Jar type is an
// http.CookieJar that keeps one Partition per endpoint, each backed by a
// Store of named cookies with set/clear/has operations:
//
//	┌───────────────────────────────────────┐
//	│ Jar                                    │
//	│   192.168.1.222:8000 → {sessionid, authcred}
//	│   192.168.1.222:8001 → {sessionid}     │
//	│   192.168.1.222:8002 → {}              │
//	└───────────────────────────────────────┘
//
// The transport package installs the Jar on its http.Client so cookies set
// by any response are merged before the call returns, and presented on the
// next call to the same endpoint.
//
// # Thread Safety
//
// Jar and MemoryStore are safe for concurrent use. Partitions are created
// lazily and never removed for the life of the process.
package session
