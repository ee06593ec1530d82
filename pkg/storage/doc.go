// Package storage provides the persistence backends for puzzle attempts and
// survey feedback.
//
// # Overview
//
// A Store does two jobs. On the write path it appends validated attempts and
// assigns each one its attempt number (one more than the number of earlier
// attempts for the same session and puzzle). On the read path it returns a
// fully materialized snapshot of events, optionally filtered, that the
// analytics aggregators consume without further I/O.
//
// # Backends
//
// MemoryStore keeps everything in process. Use it for development and tests.
//
// sqlite.Store writes to a single database file. Attempt numbering runs in an
// immediate transaction, so writers serialize on the file lock.
//
// postgres.Store is the production backend. Attempt numbering runs in a
// transaction holding a per-(session, puzzle) advisory lock, and snapshot
// reads go to read replicas when they are configured.
//
// # Opening a store
//
//	cfg := storage.DefaultConfig()
//	cfg.Type = storage.TypePostgres
//	cfg.PostgresURL = "postgres://localhost/puzzlelog?sslmode=disable"
//
//	store, err := storage.Open(ctx, cfg, logger)
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
// # Related Packages
//
//   - pkg/analytics: Consumes snapshots through analytics.EventSource
//   - pkg/ingest: Writes through ingest.EventAppender and ingest.FeedbackSaver
package storage
