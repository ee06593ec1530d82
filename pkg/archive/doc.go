// Package archive persists point-in-time analytics reports for later
// inspection.
//
// Reports are written as JSON under a date-partitioned key:
//
//	reports/2025/03/01/report-1740830400.json
//
// Two backends are provided: S3 (or any S3-compatible store such as MinIO)
// and a local directory. Each object carries a SHA-256 checksum of its body.
package archive
