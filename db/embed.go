// Package db embeds the order ledger schema applied by the postgres backend.
package db

import _ "embed"

// Schema creates the print_orders table and its indexes. It is idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string
