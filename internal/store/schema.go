package store

import _ "embed"

// Schema is the full DDL for stop_contracts, order_records,
// queue_entries, and queue_history. Embedded so the migrate command
// never depends on a file path at runtime, following the teacher's
// scripts/run_migration.go file-based approach but packaged in.
//
//go:embed schema.sql
var Schema string
