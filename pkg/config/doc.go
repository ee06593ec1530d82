// Package config loads process configuration.
//
// Values are resolved in three layers: built-in defaults, then an optional
// YAML file named by PUZZLELOG_CONFIG_FILE, then PUZZLELOG_* environment
// variables. The result is validated once and treated as immutable.
//
// Server settings:
//
//	PUZZLELOG_HOST="0.0.0.0"
//	PUZZLELOG_PORT="5000"
//	PUZZLELOG_READ_TIMEOUT="15s"
//	PUZZLELOG_CORS_ORIGINS="*"
//
// Analytics settings:
//
//	PUZZLELOG_PUZZLE_ORDER="puzzle1,puzzle2,puzzle3,puzzle4,puzzle5,puzzle6"
//
// Storage settings:
//
//	PUZZLELOG_STORAGE_TYPE="postgres"  # memory, sqlite, postgres
//	PUZZLELOG_SQLITE_PATH="puzzlelog.db"
//	PUZZLELOG_POSTGRES_URL="postgres://localhost/puzzlelog?sslmode=disable"
//	PUZZLELOG_POSTGRES_REPLICA_URLS="postgres://replica1/puzzlelog,postgres://replica2/puzzlelog"
//
// Report cache settings:
//
//	PUZZLELOG_CACHE_ENABLED="true"
//	PUZZLELOG_CACHE_TTL="30s"
//	PUZZLELOG_CACHE_L1_SIZE="128"
//	PUZZLELOG_REDIS_URL="redis://localhost:6379/0"
//
// Archive settings:
//
//	PUZZLELOG_ARCHIVE_BACKEND="s3"  # none, filesystem, s3
//	PUZZLELOG_ARCHIVE_DIR="./archive"
//	PUZZLELOG_ARCHIVE_SCHEDULE="@hourly"
//	PUZZLELOG_S3_BUCKET="puzzlelog-reports"
//
// Observability settings:
//
//	PUZZLELOG_LOG_LEVEL="info"  # debug, info, warn, error
//	PUZZLELOG_OTEL_ENABLED="true"
//	PUZZLELOG_OTEL_ENDPOINT="otel-collector:4317"
package config
