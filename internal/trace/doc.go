// Package trace records store events in an append-only SQLite log.
//
// A Log implements store.Observer. Each event becomes one row:
//
//	seq         logical clock value from the store loop
//	run_id      store run id (UUIDv7 unless fixed)
//	kind        commit | dispatch | report | state.set
//	name        mutation or action name
//	key         changed field (state.set only)
//	payload     canonical JSON of the payload (new value for state.set)
//	state_hash  hash of the state snapshot after the event
//	error       report message
//	at          wall-clock time, RFC 3339, informational only
//
// Queries always order by seq ASC, id ASC so repeated reads are identical.
// The log is write-only from the store's point of view: nothing here rebuilds
// a store from its rows.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - one open connection (SQLite has a single writer)
package trace
