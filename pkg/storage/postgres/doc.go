// Package postgres implements the PostgreSQL event store.
//
// Writes go to the primary. Attempt numbers are assigned inside a transaction
// that first takes pg_advisory_xact_lock on a hash of the session and puzzle
// ids, so two concurrent requests for the same pair cannot both read the same
// prior count. A unique constraint on (session_id, puzzle_id, attempt_number)
// backs this up.
//
// Snapshot reads go to read replicas in round-robin order when any are
// configured, and to the primary otherwise. A snapshot read from a replica may
// trail the primary by the replication lag.
package postgres
