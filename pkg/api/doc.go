// Package api exposes the puzzle log over HTTP.
//
// Routes live under /api, matching the paths the game client already calls:
//
//	POST /api/log                          record one puzzle attempt
//	POST /api/feedback                     record the end-of-game survey
//	GET  /api/analytics                    overall stats
//	GET  /api/analytics/time-by-attempt    mean duration per attempt number
//	GET  /api/analytics/funnel             completion funnel
//	GET  /api/analytics/first-try          first-try success rates
//	GET  /api/analytics/improvement        first vs last attempt durations
//	GET  /api/analytics/report             every aggregate from one snapshot
//
// Analytics routes accept optional from and to (RFC 3339, inclusive, applied
// to start_time) and device_type query parameters.
//
// Errors are a JSON object with an "error" field: 400 for invalid input, 503
// when the event snapshot cannot be read, 500 otherwise.
package api
