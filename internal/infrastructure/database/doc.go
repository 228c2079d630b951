// Package database wraps the SQLite file that backs the device server's
// status store: the worker_status table the supervisor upserts and the
// device_events history the status API reads back.
//
// The store is opened in WAL mode so status reads do not block behind
// supervision writes, with a single pooled connection to match SQLite's
// single-writer model. Schema changes ship as embedded migration files
// (see the migrations package) and are applied by Migrate on startup.
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// The database file is chmodded to 0600; driver error strings recorded
// in worker rows can mention device serial numbers and bus paths.
package database
