// Package httputil holds the JSON response helpers, request parsing and
// middleware shared by the HTTP handlers.
//
// Errors are always written as a JSON object with a single "error" field:
//
//	httputil.WriteBadRequest(w, "Missing required fields")
//	// {"error":"Missing required fields"}
//
// Middleware composes with Chain, outermost first:
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.RecoveryMiddleware(logger),
//		httputil.LoggingMiddleware(logger),
//		httputil.CORSMiddleware([]string{"*"}),
//		httputil.MaxBytesMiddleware(1 << 20),
//	)(router)
package httputil
