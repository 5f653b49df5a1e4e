// Package database provides SQLite connectivity for Gray Logic Hub.
//
// It owns the connection (WAL mode, busy timeout, single connection) and the
// additive migration runner. Migration files are embedded by the top-level
// migrations package and registered through MigrationsFS.
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
//
// Tests use OpenMemory for a private, already migrated database.
package database
