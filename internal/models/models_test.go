package models

import (
	"database/sql"
	"testing"

	"github.com/carpenike/reformer/internal/database"
)

// testDB creates a fresh in-memory SQLite database with migrations applied.
func testDB(t testing.TB) *sql.DB {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := database.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// seededDB is testDB plus the embedded class catalog and activity types.
func seededDB(t testing.TB) *sql.DB {
	t.Helper()
	db := testDB(t)
	if err := database.Seed(db); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return db
}

func seedUser(t testing.TB, db *sql.DB, username string) *User {
	t.Helper()
	u, err := CreateUser(db, username, "password123", "", false)
	if err != nil {
		t.Fatalf("create user %q: %v", username, err)
	}
	return u
}
