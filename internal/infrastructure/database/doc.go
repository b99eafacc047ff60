// Package database manages the SQLite connection for Hearth Core.
//
// It wraps database/sql with connection configuration (WAL mode, busy
// timeout, single-writer pool sizing), embedded-migration support, and
// health checks. All persistence packages receive the underlying *sql.DB.
package database
