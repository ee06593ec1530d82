// Package app assembles the long-lived components (store, report cache,
// analytics service, recorder, archiver, metrics and health checks) from a
// config.Config. Both binaries build on it.
package app
