package database

import (
	"context"
	"embed"
	"testing"
)

// The fixtures mirror the real worker_status and device_events
// migrations so what the tests apply is the schema the server runs on.
//
//go:embed testdata/*.sql
var fixtureFS embed.FS

// useFixtures points the migration loader at the test schema for the
// duration of one test.
func useFixtures(t *testing.T) {
	t.Helper()
	origFS, origDir := MigrationsFS, MigrationsDir
	t.Cleanup(func() {
		MigrationsFS, MigrationsDir = origFS, origDir
	})
	MigrationsFS = fixtureFS
	MigrationsDir = "testdata"
}

func TestMigrateAppliesStatusSchema(t *testing.T) {
	useFixtures(t)
	db := openStore(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	for _, table := range []string{"worker_status", "device_events"} {
		var name string
		err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s not created: %v", table, err)
		}
	}

	applied, err := db.appliedVersions(ctx)
	if err != nil {
		t.Fatalf("appliedVersions() error = %v", err)
	}
	if len(applied) != 2 {
		t.Errorf("applied versions = %d, want 2", len(applied))
	}

	// A rerun has nothing to do and must not fail.
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrateDownRollsBackLatestOnly(t *testing.T) {
	useFixtures(t)
	db := openStore(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}

	// device_events is the newer migration and should be gone;
	// worker_status stays.
	var count int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='device_events'",
	).Scan(&count); err != nil {
		t.Fatalf("query error = %v", err)
	}
	if count != 0 {
		t.Error("device_events should have been dropped")
	}
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='worker_status'",
	).Scan(&count); err != nil {
		t.Fatalf("query error = %v", err)
	}
	if count != 1 {
		t.Error("worker_status should still exist")
	}

	applied, err := db.appliedVersions(ctx)
	if err != nil {
		t.Fatalf("appliedVersions() error = %v", err)
	}
	if len(applied) != 1 {
		t.Errorf("applied versions after rollback = %d, want 1", len(applied))
	}
}

func TestMigrateWithNoEmbeddedFiles(t *testing.T) {
	origFS, origDir := MigrationsFS, MigrationsDir
	t.Cleanup(func() {
		MigrationsFS, MigrationsDir = origFS, origDir
	})
	MigrationsFS = embed.FS{}
	MigrationsDir = "."

	db := openStore(t)
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() with no files error = %v", err)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantName    string
		wantUp      bool
		wantOk      bool
	}{
		{
			filename:    "20260815_100000_create_worker_status.up.sql",
			wantVersion: "20260815_100000",
			wantName:    "create_worker_status",
			wantUp:      true,
			wantOk:      true,
		},
		{
			filename:    "20260815_100000_create_worker_status.down.sql",
			wantVersion: "20260815_100000",
			wantName:    "create_worker_status",
			wantUp:      false,
			wantOk:      true,
		},
		{filename: "README.md", wantOk: false},
		{filename: "20260815_100000_missing_direction.sql", wantOk: false},
		{filename: "nodate.up.sql", wantOk: false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, up, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOk {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOk)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion {
				t.Errorf("version = %q, want %q", version, tt.wantVersion)
			}
			if name != tt.wantName {
				t.Errorf("name = %q, want %q", name, tt.wantName)
			}
			if up != tt.wantUp {
				t.Errorf("up = %v, want %v", up, tt.wantUp)
			}
		})
	}
}
