package repo

import (
	"errors"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// newTestDB opens a unique in-memory database per test (avoids schema
// leakage across tests) and migrates the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestOpenSQLite_MissingParentDir(t *testing.T) {
	if _, err := OpenSQLite("/definitely/not/a/dir/app.db"); err == nil {
		t.Fatal("expected error for missing parent directory")
	}
}

func TestOpenSQLite_CreatesAndMigrates(t *testing.T) {
	path := t.TempDir() + "/app.db"
	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	// Schema must be usable immediately.
	if err := db.Create(&domain.NewsletterIssue{ID: "i1", Subject: "s"}).Error; err != nil {
		t.Fatalf("insert after migrate: %v", err)
	}
}

func TestOpenDatabase_PrefersPostgresDSN(t *testing.T) {
	// A DATABASE_URL-style DSN must route to Postgres: an unreachable DSN
	// fails fast rather than silently falling back to SQLite.
	if _, err := OpenDatabase("host=127.0.0.1 port=1 user=x dbname=x connect_timeout=1", "ignored.db"); err == nil {
		t.Skip("unexpectedly connected; environment has a local postgres on port 1")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{gorm.ErrDuplicatedKey, true},
		{errors.New("UNIQUE constraint failed: subscribers.email"), true},
		{errors.New("constraint failed: UNIQUE constraint failed: x (1555)"), true},
		{errors.New(`ERROR: duplicate key value violates unique constraint "ux_subscribers_email" (SQLSTATE 23505)`), true},
		{errors.New("connection refused"), false},
	}
	for _, c := range cases {
		if got := isUniqueViolation(c.err); got != c.want {
			t.Errorf("isUniqueViolation(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
