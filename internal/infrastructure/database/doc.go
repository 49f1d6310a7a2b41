// Package database provides SQLite connectivity and schema migrations for
// Boardflow Core.
//
// It manages:
//   - the connection (WAL mode, busy timeout, foreign keys, single writer)
//   - embedded, versioned migrations (YYYYMMDD_HHMMSS_name.up.sql / .down.sql)
//   - a transaction helper used by multi-row writes such as order
//     normalization
//
// All queries use parameterised statements. The database file is created
// with 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
