// Package occlock implements the persistent distributed occupation lock for
// spool and union work sessions. Locks are acquired with a two-phase
// SET-if-absent-with-safety-TTL followed by PERSIST, held without expiry for
// the length of a work session, garbage-collected lazily when abandoned, and
// rebuilt from the durable occupation records at process startup. When the
// lock store is unreachable the manager degrades to tokens that carry no
// exclusivity, keeping the workflow available at the cost of a documented
// race window.
package occlock
