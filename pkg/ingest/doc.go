// Package ingest validates incoming puzzle attempts and feedback and hands them
// to storage.
//
// # Attempts
//
// A LogRequest carries a session id, a puzzle id and the start and end
// timestamps of one play. Recorder.Record rejects requests that lack any of
// those, whose timestamps do not parse, or whose end precedes the start. The
// duration is computed once here, in whole seconds, and stored with the event.
// Attempt numbers are assigned by the EventAppender at write time so that
// concurrent writers for the same session and puzzle never collide.
//
// Accepted timestamp forms:
//
//	2025-03-01T12:00:00Z
//	2025-03-01T12:00:00.250+02:00
//	2025-03-01T12:00:00.250      (no zone, read as UTC)
//	2025-03-01 12:00:00          (no zone, read as UTC)
//
// # Feedback
//
// FeedbackRequest mirrors the end-of-game survey. The learned score may arrive
// as a JSON number or a numeric string.
//
// Every validation failure wraps ErrInvalidInput.
package ingest
