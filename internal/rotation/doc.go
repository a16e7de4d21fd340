// Package rotation decides, once per poll cycle and per server, whether an
// idle game server should be switched back to its desired map.
//
// # Overview
//
// Each server moves through the same steps every cycle:
//
//	disabled? ──yes──▶ skip
//	   │no
//	down? ──────yes──▶ skip (no network calls)
//	   │no
//	liveness probe ──fail──▶ miss++ ; miss == threshold ⇒ down
//	   │ok (miss = 0)
//	authenticated? ──no──▶ refresh session ▶ token ▶ login (abort on failure)
//	   │yes
//	players, map ──▶ players > 0          ⇒ leave alone
//	                 players == 0, other  ⇒ switch to desired map
//	                 players == 0, same   ⇒ nothing
//	                 unknown              ⇒ nothing this cycle
//
// Nothing is retried inside a cycle. A failed step ends the cycle for that
// server and the next cycle starts again from the top.
//
// # Components
//
// Controller runs the steps for one server against an Admin (the web admin
// protocol client) and returns an Outcome.
//
// Registry owns one ServerRuntimeState per configured server, addressed by
// index, and hands out copies for status reporting.
//
// Scheduler runs cycles over the registry sequentially and waits the poll
// interval after each completed cycle.
//
// # Down servers
//
// A server whose liveness probe fails UnresponsiveThreshold times in a row
// is marked down and skipped for the rest of the process lifetime. The
// threshold exists because a server is briefly unreachable while it loads a
// new map. Recovering a down server requires a restart.
package rotation
