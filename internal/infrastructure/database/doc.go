// Package database provides SQLite connectivity for the gateway's durable
// state.
//
// The only table the gateway owns is property_snapshots, which lets Things
// come back up with their last known values after a restart. Schema changes
// ship as embedded migrations.
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file is created with 0600 permissions
//
// Usage:
//
//	db, err := database.Open(database.FromConfig(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
